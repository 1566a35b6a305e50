package pipeline

import (
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/IshaanNene/newscrawler/internal/types"
)

// --- Article Middleware ---

// HTMLSanitizeMiddleware collapses whitespace in the text fields, authors
// and captions. Values that still carry markup have their tags stripped and
// entities decoded; plain text is never unescaped a second time.
type HTMLSanitizeMiddleware struct {
	tagRe *regexp.Regexp
}

func NewHTMLSanitizeMiddleware() *HTMLSanitizeMiddleware {
	return &HTMLSanitizeMiddleware{
		tagRe: regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9]*(\s[^<>]*)?/?>`),
	}
}

func (m *HTMLSanitizeMiddleware) Name() string { return "html_sanitize" }

func (m *HTMLSanitizeMiddleware) Process(a *types.Article) (*types.Article, error) {
	a.Title = m.clean(a.Title)
	a.Description = m.clean(a.Description)
	a.KeyPoints = m.clean(a.KeyPoints)
	a.Text = m.clean(a.Text)
	for i := range a.Authors {
		a.Authors[i] = m.clean(a.Authors[i])
	}
	for i := range a.Captions {
		a.Captions[i] = m.clean(a.Captions[i])
	}
	return a, nil
}

func (m *HTMLSanitizeMiddleware) clean(s string) string {
	if s == "" {
		return s
	}
	if m.tagRe.MatchString(s) {
		s = html.UnescapeString(m.tagRe.ReplaceAllString(s, ""))
	}
	return strings.Join(strings.Fields(s), " ")
}

// DateNormalizeMiddleware rewrites date_published as RFC 3339 when it parses
// with one of the known layouts. Anything else is kept raw, including times
// whose zone is an abbreviation other than UTC or GMT: the offset of "EDT"
// cannot be known from the name alone.
type DateNormalizeMiddleware struct {
	outFormat string
	inFormats []string
	prefixRe  *regexp.Regexp
}

func NewDateNormalizeMiddleware() *DateNormalizeMiddleware {
	return &DateNormalizeMiddleware{
		outFormat: time.RFC3339,
		inFormats: []string{
			time.RFC3339,
			time.RFC3339Nano,
			"2006-01-02T15:04:05.000Z0700",
			"2006-01-02T15:04:05Z0700",
			"2006-01-02T15:04:05",
			"2006-01-02 15:04:05",
			"2006-01-02",
			time.RFC1123,
			time.RFC1123Z,
			time.RFC822,
			time.RFC822Z,
			"January 2, 2006 3:04 PM MST",
			"January 2, 2006 at 3:04 PM",
			"Jan 02, 2006 03:04 PM MST",
			"January 2, 2006",
			"Jan 2, 2006",
			"2 January 2006",
			"2 Jan 2006",
			"Mon, 02 Jan 2006",
			"02-Jan-2006",
			"2006/01/02",
		},
		prefixRe: regexp.MustCompile(`(?i)^(published|updated|last updated)( on)?:?\s*`),
	}
}

func (m *DateNormalizeMiddleware) Name() string { return "date_normalize" }

func (m *DateNormalizeMiddleware) Process(a *types.Article) (*types.Article, error) {
	raw := strings.TrimSpace(a.Date())
	if raw == "" {
		a.DatePublished = nil
		return a, nil
	}
	if t, ok := m.parse(raw); ok {
		a.SetDate(t.Format(m.outFormat))
	}
	return a, nil
}

func (m *DateNormalizeMiddleware) parse(raw string) (time.Time, bool) {
	s := strings.Join(strings.Fields(m.prefixRe.ReplaceAllString(raw, "")), " ")
	for _, format := range m.inFormats {
		t, err := time.Parse(format, s)
		if err != nil {
			continue
		}
		if strings.Contains(format, "MST") && !knownZone(t) {
			return time.Time{}, false
		}
		return t.UTC().In(zoneOf(t)), true
	}
	return time.Time{}, false
}

// knownZone reports whether an abbreviated zone parsed to a real offset.
// time.Parse fabricates a zero offset for abbreviations it cannot resolve
// and uses the host's offset for the local zone's own abbreviation.
func knownZone(t time.Time) bool {
	name, _ := t.Zone()
	switch name {
	case "UTC", "GMT", "Z":
		return true
	}
	return false
}

// zoneOf returns a fixed zone with t's offset so output never depends on
// the host's time zone database.
func zoneOf(t time.Time) *time.Location {
	_, off := t.Zone()
	if off == 0 {
		return time.UTC
	}
	return time.FixedZone("", off)
}

// CaptionNormalizeMiddleware makes captions a clean list. When the record
// has one caption per image, blank captions become the no_caption
// placeholder so the lists stay aligned; otherwise blanks are dropped.
type CaptionNormalizeMiddleware struct{}

func (m *CaptionNormalizeMiddleware) Name() string { return "caption_normalize" }

func (m *CaptionNormalizeMiddleware) Process(a *types.Article) (*types.Article, error) {
	if len(a.Captions) == 0 {
		return a, nil
	}
	aligned := len(a.Captions) == len(a.Images)

	captions := make([]string, 0, len(a.Captions))
	for _, c := range a.Captions {
		c = strings.Join(strings.Fields(c), " ")
		if c == "" {
			if !aligned {
				continue
			}
			c = types.NoCaption
		}
		captions = append(captions, c)
	}
	a.Captions = captions
	return a, nil
}
