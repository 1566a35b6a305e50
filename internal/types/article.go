package types

import (
	"encoding/json"
	"strings"
	"time"
)

// NoCaption is recorded for an image that has no caption so that the
// images and captions lists stay aligned.
const NoCaption = "no_caption"

// Article is a single emitted news record.
// Keywords and MatchedKeywords always hold the same values; downstream
// consumers read either name.
type Article struct {
	Title           string   `json:"title"                  bson:"title"`
	Description     string   `json:"description,omitempty"  bson:"description,omitempty"`
	KeyPoints       string   `json:"key_points,omitempty"   bson:"key_points,omitempty"`
	Text            string   `json:"text"                   bson:"text"`
	URL             string   `json:"url"                    bson:"url"`
	SourceDomain    string   `json:"source_domain"          bson:"source_domain"`
	DatePublished   *string  `json:"date_published"         bson:"date_published"`
	Authors         []string `json:"authors"                bson:"authors"`
	Keywords        []string `json:"keywords"               bson:"keywords"`
	MatchedKeywords []string `json:"matched_keywords"       bson:"matched_keywords"`
	Images          []string `json:"images,omitempty"       bson:"images,omitempty"`
	Captions        []string `json:"captions,omitempty"     bson:"captions,omitempty"`

	// Source is the site profile that produced the record.
	Source string `json:"-" bson:"source"`

	// ScrapedAt is when the record was built.
	ScrapedAt time.Time `json:"-" bson:"scraped_at"`
}

// Date returns the published date or "" when unknown.
func (a *Article) Date() string {
	if a.DatePublished == nil {
		return ""
	}
	return *a.DatePublished
}

// SetDate stores the published date; a blank value becomes null.
func (a *Article) SetDate(s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		a.DatePublished = nil
		return
	}
	a.DatePublished = &s
}

// ToFlatMap returns a flat map suitable for CSV export.
func (a *Article) ToFlatMap() map[string]string {
	list := func(v []string) string {
		b, _ := json.Marshal(v)
		return string(b)
	}
	return map[string]string{
		"title":            a.Title,
		"description":      a.Description,
		"key_points":       a.KeyPoints,
		"text":             a.Text,
		"url":              a.URL,
		"source_domain":    a.SourceDomain,
		"date_published":   a.Date(),
		"authors":          list(a.Authors),
		"keywords":         list(a.Keywords),
		"matched_keywords": list(a.MatchedKeywords),
		"images":           list(a.Images),
		"captions":         list(a.Captions),
	}
}

// Clone creates a deep copy of the article.
func (a *Article) Clone() *Article {
	clone := *a
	if a.DatePublished != nil {
		d := *a.DatePublished
		clone.DatePublished = &d
	}
	clone.Authors = cloneStrings(a.Authors)
	clone.Keywords = cloneStrings(a.Keywords)
	clone.MatchedKeywords = cloneStrings(a.MatchedKeywords)
	clone.Images = cloneStrings(a.Images)
	clone.Captions = cloneStrings(a.Captions)
	return &clone
}

func cloneStrings(src []string) []string {
	if src == nil {
		return nil
	}
	return append(make([]string, 0, len(src)), src...)
}
