package engine

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/IshaanNene/newscrawler/internal/keywords"
	"github.com/IshaanNene/newscrawler/internal/profile"
	"github.com/IshaanNene/newscrawler/internal/types"
)

// BuildArticle turns an extraction and its keyword matches into the emitted
// record. It has no side effects; ScrapedAt is left for the caller.
func BuildArticle(ex profile.Extraction, matches keywords.MatchSet, pageURL string, p *profile.Profile) *types.Article {
	kws := matches.Sorted()

	a := &types.Article{
		Title:           ex.Title,
		Description:     ex.Description,
		KeyPoints:       ex.KeyPoints,
		Text:            ex.Text,
		URL:             pageURL,
		SourceDomain:    SourceDomain(pageURL, p.Domain),
		Authors:         nonNil(ex.Authors),
		Keywords:        kws,
		MatchedKeywords: append([]string(nil), kws...),
		Images:          ex.Images,
		Captions:        ex.Captions,
		Source:          p.Source,
	}
	a.SetDate(ex.Date)
	return a
}

// SourceDomain returns configured when set, else the registrable domain of
// pageURL's host (www.bbc.co.uk -> bbc.co.uk).
func SourceDomain(pageURL, configured string) string {
	if configured != "" {
		return configured
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
