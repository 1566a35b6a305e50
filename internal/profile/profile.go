// Package profile holds the table-driven site extraction profiles: per-site
// selectors, seeds, link filters and pagination rules, loaded from YAML and
// compiled once at startup.
package profile

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/IshaanNene/newscrawler/internal/frontier"
	"github.com/IshaanNene/newscrawler/internal/parser"
	"github.com/IshaanNene/newscrawler/internal/types"
)

// Field names an article field a profile can extract.
type Field int

const (
	FieldTitle Field = iota
	FieldDescription
	FieldKeyPoints
	FieldText
	FieldDate
	FieldAuthors
	FieldImages
	FieldCaptions
)

var fieldNames = map[Field]string{
	FieldTitle:       "title",
	FieldDescription: "description",
	FieldKeyPoints:   "key_points",
	FieldText:        "text",
	FieldDate:        "date",
	FieldAuthors:     "authors",
	FieldImages:      "images",
	FieldCaptions:    "captions",
}

func (f Field) String() string {
	if n, ok := fieldNames[f]; ok {
		return n
	}
	return "unknown"
}

// ParseField resolves a field name.
func ParseField(s string) (Field, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for f, n := range fieldNames {
		if n == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown field %q", s)
}

// DateFormat tells how the raw date value is encoded.
type DateFormat int

const (
	// DateRaw keeps the raw value; the pipeline normalizes it later.
	DateRaw DateFormat = iota
	// DateUnixMillis is a Unix timestamp in milliseconds.
	DateUnixMillis
	// DateAuto treats a 13-digit value as Unix milliseconds, anything else as raw.
	DateAuto
)

// ParseDateFormat resolves a date format name.
func ParseDateFormat(s string) (DateFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "raw":
		return DateRaw, nil
	case "unix_millis", "unix_ms":
		return DateUnixMillis, nil
	case "auto":
		return DateAuto, nil
	default:
		return 0, fmt.Errorf("unknown date format %q", s)
	}
}

// ImageMode selects how images and captions are extracted.
type ImageMode int

const (
	ImagesNone ImageMode = iota
	// ImagesFlat extracts independent image and caption lists.
	ImagesFlat
	// ImagesBlocks walks container blocks and yields aligned image/caption lists.
	ImagesBlocks
)

// ParseImageMode resolves an image mode name.
func ParseImageMode(s string) (ImageMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ImagesNone, nil
	case "flat":
		return ImagesFlat, nil
	case "blocks":
		return ImagesBlocks, nil
	default:
		return 0, fmt.Errorf("unknown image mode %q", s)
	}
}

// FetcherKind selects the fetcher a profile's requests go through.
type FetcherKind int

const (
	FetcherHTTP FetcherKind = iota
	FetcherBrowser
)

// ParseFetcherKind resolves a fetcher name.
func ParseFetcherKind(s string) (FetcherKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "http":
		return FetcherHTTP, nil
	case "browser":
		return FetcherBrowser, nil
	default:
		return 0, fmt.Errorf("unknown fetcher %q", s)
	}
}

func (k FetcherKind) String() string {
	if k == FetcherBrowser {
		return "browser"
	}
	return "http"
}

// Fields are the compiled article field selectors. A nil selector means the
// site does not publish that field.
type Fields struct {
	Title       *parser.Selector
	Description *parser.Selector
	KeyPoints   *parser.Selector
	Text        *parser.Selector
	Date        *parser.Selector
	Authors     *parser.Selector
	DateFormat  DateFormat
}

// Images is the compiled image extraction rule.
type Images struct {
	Mode ImageMode

	// Flat mode.
	Images   *parser.Selector
	Captions *parser.Selector

	// Blocks mode.
	Container   *parser.Selector
	Src         *parser.Selector
	Caption     *parser.Selector
	Extensions  []string
	Placeholder string
}

// Listing describes how article links and pagination are found on listing pages.
type Listing struct {
	Links      *parser.Selector
	Filter     LinkFilter
	Pagination Pagination
}

// Profile is a compiled, immutable site extraction profile.
type Profile struct {
	Name           string
	Source         string
	Domain         string
	AllowedDomains []string
	Seeds          frontier.Seeds
	SeedType       types.PageType

	Fields    Fields
	Matchable []Field
	Images    Images
	Listing   Listing
	// Sitemap filters <urlset> entries before they are requested as articles.
	Sitemap LinkFilter

	Headers         http.Header
	Cookies         []*http.Cookie
	Fetcher         FetcherKind
	FollowRedirects *bool
	TextFallback    bool
	Concurrency     int
	Delay           time.Duration
}

// SeedURLs expands the profile's seeds.
func (p *Profile) SeedURLs() ([]string, error) {
	return frontier.Generate(p.Seeds)
}

// AllowsHost reports whether host belongs to the profile's allowed domains.
// An empty allow list admits every host.
func (p *Profile) AllowsHost(host string) bool {
	if len(p.AllowedDomains) == 0 || host == "" {
		return true
	}
	host = strings.ToLower(host)
	for _, d := range p.AllowedDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Registry holds profiles by name.
type Registry struct {
	profiles map[string]*Profile
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{profiles: make(map[string]*Profile)}
}

// Add registers p, replacing any profile with the same name.
func (r *Registry) Add(p *Profile) {
	r.profiles[p.Name] = p
}

// Get returns the named profile or types.ErrUnknownSite.
func (r *Registry) Get(name string) (*Profile, error) {
	p, ok := r.profiles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownSite, name)
	}
	return p, nil
}

// Names returns all profile names sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for n := range r.profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered profiles.
func (r *Registry) Len() int { return len(r.profiles) }
