package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/klauspost/compress/gzip"

	"github.com/IshaanNene/newscrawler/internal/types"
)

// maxSitemapSize caps the inflated size of a gzipped sitemap.
const maxSitemapSize = 100 << 20

// SitemapKind tells a sitemap index apart from a URL set.
type SitemapKind int

const (
	SitemapURLSet SitemapKind = iota
	SitemapIndex
)

func (k SitemapKind) String() string {
	if k == SitemapIndex {
		return "sitemapindex"
	}
	return "urlset"
}

// SitemapEntry is one <url> or <sitemap> element. Only <loc> is read;
// article selection is done by the profile's URL rules.
type SitemapEntry struct {
	Loc string
}

// Sitemap is a parsed sitemap document.
type Sitemap struct {
	Kind    SitemapKind
	Entries []SitemapEntry
}

// Locs returns the entry locations in document order.
func (s *Sitemap) Locs() []string {
	locs := make([]string, 0, len(s.Entries))
	for _, e := range s.Entries {
		locs = append(locs, e.Loc)
	}
	return locs
}

// ParseSitemap parses a sitemap or sitemap index. Gzipped bodies are
// inflated first. A document whose root is neither <urlset> nor
// <sitemapindex> yields types.ErrNotSitemap.
func ParseSitemap(body []byte) (*Sitemap, error) {
	body, err := Decompress(body)
	if err != nil {
		return nil, err
	}

	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse sitemap: %w", err)
	}

	root := xmlquery.FindOne(doc, "/*")
	if root == nil {
		return nil, types.ErrNotSitemap
	}

	var (
		kind  SitemapKind
		child string
	)
	switch strings.ToLower(root.Data) {
	case "urlset":
		kind, child = SitemapURLSet, "url"
	case "sitemapindex":
		kind, child = SitemapIndex, "sitemap"
	default:
		return nil, fmt.Errorf("%w: root element <%s>", types.ErrNotSitemap, root.Data)
	}

	sm := &Sitemap{Kind: kind}
	for _, n := range xmlquery.Find(root, fmt.Sprintf("./*[local-name()='%s']", child)) {
		locNode := xmlquery.FindOne(n, "./*[local-name()='loc']")
		if locNode == nil {
			continue
		}
		loc := strings.TrimSpace(locNode.InnerText())
		if loc == "" {
			continue
		}

		sm.Entries = append(sm.Entries, SitemapEntry{Loc: loc})
	}
	return sm, nil
}

// Decompress inflates gzip data, detected by its magic bytes. Other input is
// returned unchanged.
func Decompress(body []byte) ([]byte, error) {
	if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
		return body, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gzip sitemap: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, maxSitemapSize))
	if err != nil {
		return nil, fmt.Errorf("inflate sitemap: %w", err)
	}
	return out, nil
}
