package parser

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ArticleMetadata is what a page declares about itself in JSON-LD,
// OpenGraph and standard meta tags.
type ArticleMetadata struct {
	Headline      string
	Description   string
	DatePublished string
	Authors       []string
}

// Empty reports whether nothing was found.
func (m ArticleMetadata) Empty() bool {
	return m.Headline == "" && m.Description == "" && m.DatePublished == "" && len(m.Authors) == 0
}

var articleTypes = map[string]bool{
	"article":              true,
	"newsarticle":          true,
	"reportagenewsarticle": true,
	"analysisnewsarticle":  true,
	"liveblogposting":      true,
	"blogposting":          true,
	"webpage":              true,
}

// ExtractMetadata reads article metadata from doc. JSON-LD article objects
// win over OpenGraph, which wins over plain meta tags.
func ExtractMetadata(doc *goquery.Document) ArticleMetadata {
	var m ArticleMetadata

	for _, obj := range jsonLDObjects(doc) {
		if !articleTypes[strings.ToLower(typeName(obj["@type"]))] {
			continue
		}
		fillString(&m.Headline, obj["headline"])
		fillString(&m.Description, obj["description"])
		fillString(&m.DatePublished, obj["datePublished"])
		if len(m.Authors) == 0 {
			m.Authors = personNames(obj["author"])
		}
	}

	meta := func(selector string) string {
		v, _ := doc.Find(selector).First().Attr("content")
		return strings.TrimSpace(v)
	}
	if m.Headline == "" {
		m.Headline = meta(`meta[property="og:title"]`)
	}
	if m.Description == "" {
		m.Description = meta(`meta[property="og:description"]`)
	}
	if m.DatePublished == "" {
		m.DatePublished = meta(`meta[property="article:published_time"]`)
	}

	if m.Description == "" {
		m.Description = meta(`meta[name="description"]`)
	}
	if m.DatePublished == "" {
		m.DatePublished = meta(`meta[itemprop="datePublished"]`)
	}
	if len(m.Authors) == 0 {
		if a := meta(`meta[name="author"]`); a != "" {
			m.Authors = []string{a}
		}
	}
	return m
}

// jsonLDObjects parses every <script type="application/ld+json"> block and
// flattens top-level arrays and @graph lists into single objects.
func jsonLDObjects(doc *goquery.Document) []map[string]any {
	var out []map[string]any
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case []any:
			for _, e := range t {
				walk(e)
			}
		case map[string]any:
			out = append(out, t)
			if g, ok := t["@graph"]; ok {
				walk(g)
			}
		}
	}

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		raw := strings.TrimSpace(sel.Text())
		if raw == "" {
			return
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return
		}
		walk(v)
	})
	return out
}

// typeName returns the first @type; it may be a string or a list.
func typeName(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		if len(t) > 0 {
			s, _ := t[0].(string)
			return s
		}
	}
	return ""
}

func fillString(dst *string, v any) {
	if *dst != "" {
		return
	}
	if s, ok := v.(string); ok {
		*dst = strings.TrimSpace(s)
	}
}

// personNames accepts a name string, a Person object or a list of either.
func personNames(v any) []string {
	var names []string
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			names = append(names, s)
		}
	case map[string]any:
		if s, ok := t["name"].(string); ok && strings.TrimSpace(s) != "" {
			names = append(names, strings.TrimSpace(s))
		}
	case []any:
		for _, e := range t {
			names = append(names, personNames(e)...)
		}
	}
	return names
}
