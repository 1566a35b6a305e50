package profile

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/markusmobius/go-trafilatura"
	"golang.org/x/net/html"

	"github.com/IshaanNene/newscrawler/internal/parser"
	"github.com/IshaanNene/newscrawler/internal/types"
)

// Extraction holds the raw field values pulled from one article page.
// Missing fields are empty, never an error.
type Extraction struct {
	URL         string
	Title       string
	Description string
	KeyPoints   string
	Text        string
	Date        string
	Authors     []string
	Images      []string
	Captions    []string
}

// Empty reports whether nothing at all was extracted.
func (e *Extraction) Empty() bool {
	return e.Title == "" && e.Description == "" && e.KeyPoints == "" && e.Text == "" &&
		e.Date == "" && len(e.Authors) == 0 && len(e.Images) == 0
}

// Extract evaluates every configured field independently. Problems with one
// field are returned as *types.ExtractError values and leave that field
// empty; the other fields are still extracted.
func (p *Profile) Extract(resp *types.Response) (Extraction, []error) {
	ex := Extraction{URL: resp.URL()}

	doc, err := resp.Node()
	if err != nil {
		return ex, []error{&types.ParseError{URL: ex.URL, Err: err}}
	}

	var errs []error
	field := func(name string, fn func()) {
		defer func() {
			if r := recover(); r != nil {
				errs = append(errs, &types.ExtractError{URL: ex.URL, Field: name, Err: fmt.Errorf("%v", r)})
			}
		}()
		fn()
	}

	field("title", func() { ex.Title = p.Fields.Title.Join(doc) })
	field("description", func() { ex.Description = p.Fields.Description.Join(doc) })
	field("key_points", func() { ex.KeyPoints = p.Fields.KeyPoints.Join(doc) })
	field("text", func() { ex.Text = p.Fields.Text.Join(doc) })
	field("date", func() { ex.Date = ConvertDate(p.Fields.Date.First(doc), p.Fields.DateFormat) })
	field("authors", func() { ex.Authors = p.Fields.Authors.Values(doc) })
	field("images", func() { ex.Images, ex.Captions = p.extractImages(doc, ex.URL) })

	if ex.Text == "" && p.TextFallback {
		field("text", func() {
			text, err := fallbackText(resp.Body, ex.URL)
			if err != nil {
				errs = append(errs, &types.ExtractError{URL: ex.URL, Field: "text", Err: err})
				return
			}
			ex.Text = text
		})
	}

	return ex, errs
}

// MatchableText joins the fields the profile designates for keyword scanning.
func (p *Profile) MatchableText(ex Extraction) string {
	parts := make([]string, 0, len(p.Matchable))
	for _, f := range p.Matchable {
		var v string
		switch f {
		case FieldTitle:
			v = ex.Title
		case FieldDescription:
			v = ex.Description
		case FieldKeyPoints:
			v = ex.KeyPoints
		case FieldText:
			v = ex.Text
		case FieldDate:
			v = ex.Date
		case FieldAuthors:
			v = strings.Join(ex.Authors, " ")
		case FieldCaptions:
			v = strings.Join(ex.Captions, " ")
		}
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

func (p *Profile) extractImages(doc *html.Node, pageURL string) ([]string, []string) {
	switch p.Images.Mode {
	case ImagesFlat:
		images := p.Images.Images.Values(doc)
		var captions []string
		if p.Images.Captions != nil {
			captions = p.Images.Captions.Values(doc)
		}
		return absoluteImages(pageURL, images), captions

	case ImagesBlocks:
		var images, captions []string
		seen := make(map[string]bool)
		for _, block := range p.Images.Container.Nodes(doc) {
			src := p.Images.Src.First(block)
			if src == "" || seen[src] || !p.allowedImage(src) {
				continue
			}
			seen[src] = true

			caption := ""
			if p.Images.Caption != nil {
				caption = p.Images.Caption.First(block)
			}
			if caption == "" {
				caption = p.Images.Placeholder
			}
			images = append(images, src)
			captions = append(captions, caption)
		}
		return absoluteImages(pageURL, images), captions
	}
	return nil, nil
}

// allowedImage checks src's extension (query string ignored) against the
// profile's extension list. An empty list allows everything.
func (p *Profile) allowedImage(src string) bool {
	if len(p.Images.Extensions) == 0 {
		return true
	}
	path := strings.ToLower(strings.SplitN(src, "?", 2)[0])
	for _, ext := range p.Images.Extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// absoluteImages resolves relative image URLs against the page. Values that
// cannot be resolved are kept as-is so image/caption lists stay aligned.
func absoluteImages(pageURL string, images []string) []string {
	base, err := url.Parse(pageURL)
	if err != nil || len(images) == 0 {
		return images
	}
	out := make([]string, len(images))
	for i, src := range images {
		out[i] = src
		if abs, ok := parser.ResolveLink(base, src); ok {
			out[i] = abs
		}
	}
	return out
}

// ConvertDate decodes a raw date according to format. Unix milliseconds
// become RFC 3339 UTC; everything else is returned trimmed and unchanged.
func ConvertDate(raw string, format DateFormat) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	switch format {
	case DateUnixMillis:
		if t, ok := unixMillis(raw); ok {
			return t.Format(time.RFC3339)
		}
	case DateAuto:
		if len(raw) == 13 {
			if t, ok := unixMillis(raw); ok {
				return t.Format(time.RFC3339)
			}
		}
	}
	return raw
}

func unixMillis(raw string) (time.Time, bool) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

// fallbackText runs readability-style extraction over the raw page.
func fallbackText(body []byte, pageURL string) (string, error) {
	opts := trafilatura.Options{}
	if u, err := url.Parse(pageURL); err == nil {
		opts.OriginalURL = u
	}
	result, err := trafilatura.Extract(bytes.NewReader(body), opts)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}
	return strings.TrimSpace(result.ContentText), nil
}
