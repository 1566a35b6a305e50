package profile

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/IshaanNene/newscrawler/internal/frontier"
	"github.com/IshaanNene/newscrawler/internal/parser"
	"github.com/IshaanNene/newscrawler/internal/types"
)

//go:embed sites/*.yaml
var builtinSites embed.FS

// selectorSpec is a selector in a profile file. A bare string is an XPath
// expression.
type selectorSpec struct {
	Type    string `yaml:"type"`
	Expr    string `yaml:"expr"`
	Attr    string `yaml:"attr"`
	Pattern string `yaml:"pattern"`
}

func (s *selectorSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		s.Expr = value.Value
		return nil
	}
	type plain selectorSpec
	return value.Decode((*plain)(s))
}

type filterSpec struct {
	Kind        string   `yaml:"kind"`
	Patterns    []string `yaml:"patterns"`
	DatePattern string   `yaml:"date_pattern"`
	Start       string   `yaml:"start"`
	End         string   `yaml:"end"`
	RequireAny  []string `yaml:"require_any"`
	Exclude     []string `yaml:"exclude"`
}

type paginationSpec struct {
	Kind      string        `yaml:"kind"`
	Container *selectorSpec `yaml:"container"`
	LastPage  *selectorSpec `yaml:"last_page"`
	PageLinks *selectorSpec `yaml:"page_links"`
	Param     string        `yaml:"param"`
}

type fieldsSpec struct {
	Title       *selectorSpec `yaml:"title"`
	Description *selectorSpec `yaml:"description"`
	KeyPoints   *selectorSpec `yaml:"key_points"`
	Text        *selectorSpec `yaml:"text"`
	Date        *selectorSpec `yaml:"date"`
	Authors     *selectorSpec `yaml:"authors"`
	DateFormat  string        `yaml:"date_format"`
}

type imagesSpec struct {
	Mode        string        `yaml:"mode"`
	Images      *selectorSpec `yaml:"images"`
	Captions    *selectorSpec `yaml:"captions"`
	Container   *selectorSpec `yaml:"container"`
	Src         *selectorSpec `yaml:"src"`
	Caption     *selectorSpec `yaml:"caption"`
	Extensions  []string      `yaml:"extensions"`
	Placeholder string        `yaml:"placeholder"`
}

type listingSpec struct {
	Links      *selectorSpec  `yaml:"links"`
	Filter     filterSpec     `yaml:"filter"`
	Pagination paginationSpec `yaml:"pagination"`
}

type sitemapSpec struct {
	Filter filterSpec `yaml:"filter"`
}

// fileSpec is the on-disk profile layout.
type fileSpec struct {
	Name            string            `yaml:"name"`
	Source          string            `yaml:"source"`
	Domain          string            `yaml:"domain"`
	AllowedDomains  []string          `yaml:"allowed_domains"`
	SeedType        string            `yaml:"seed_type"`
	Seeds           frontier.Seeds    `yaml:"seeds"`
	Fields          fieldsSpec        `yaml:"fields"`
	Matchable       []string          `yaml:"matchable"`
	Images          imagesSpec        `yaml:"images"`
	Listing         listingSpec       `yaml:"listing"`
	Sitemap         sitemapSpec       `yaml:"sitemap"`
	Headers         map[string]string `yaml:"headers"`
	Cookies         map[string]string `yaml:"cookies"`
	Fetcher         string            `yaml:"fetcher"`
	FollowRedirects *bool             `yaml:"follow_redirects"`
	TextFallback    bool              `yaml:"text_fallback"`
	Concurrency     int               `yaml:"concurrency"`
	Delay           time.Duration     `yaml:"delay"`
}

// LoadBuiltin loads the profiles embedded in the binary.
func LoadBuiltin() (*Registry, error) {
	reg := NewRegistry()
	if err := loadFS(reg, builtinSites, "sites"); err != nil {
		return nil, err
	}
	return reg, nil
}

// LoadDir loads every *.yaml / *.yml profile in dir into reg, replacing
// profiles with the same name.
func LoadDir(reg *Registry, dir string) error {
	return loadFS(reg, os.DirFS(dir), ".")
}

// LoadFile loads one profile file into reg.
func LoadFile(reg *Registry, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &types.ConfigError{Source: path, Err: err}
	}
	p, err := Parse(data, path)
	if err != nil {
		return err
	}
	reg.Add(p)
	return nil
}

func loadFS(reg *Registry, fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return &types.ConfigError{Source: dir, Err: err}
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.ToSlash(filepath.Join(dir, name))
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return &types.ConfigError{Source: path, Err: err}
		}
		p, err := Parse(data, path)
		if err != nil {
			return err
		}
		reg.Add(p)
	}
	return nil
}

// Parse decodes and compiles a single profile document. Every string-keyed
// choice is resolved to its enum here; any invalid selector, pattern or date
// is a *types.ConfigError.
func Parse(data []byte, source string) (*Profile, error) {
	var spec fileSpec
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, &types.ConfigError{Source: source, Err: err}
	}
	c := &compiler{source: source}
	p := c.compile(&spec)
	if c.err != nil {
		return nil, c.err
	}
	if err := p.Validate(); err != nil {
		return nil, &types.ConfigError{Source: source, Err: err}
	}
	return p, nil
}

// compiler records the first error so compile can read top to bottom.
type compiler struct {
	source string
	err    error
}

func (c *compiler) fail(field string, err error) {
	if c.err == nil {
		c.err = &types.ConfigError{Source: c.source, Field: field, Err: err}
	}
}

func (c *compiler) selector(field string, s *selectorSpec) *parser.Selector {
	if s == nil || strings.TrimSpace(s.Expr) == "" {
		return nil
	}
	kind, err := parser.ParseKind(s.Type)
	if err != nil {
		c.fail(field, err)
		return nil
	}
	sel, err := parser.Compile(kind, s.Expr, s.Attr, s.Pattern)
	if err != nil {
		c.fail(field, err)
		return nil
	}
	return sel
}

func (c *compiler) regexps(field string, patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, pat := range patterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			c.fail(field, err)
			continue
		}
		out = append(out, re)
	}
	return out
}

func (c *compiler) filter(field string, s filterSpec) LinkFilter {
	kind, err := ParseFilterKind(s.Kind)
	if err != nil {
		c.fail(field+".kind", err)
		return LinkFilter{}
	}
	// A bare pattern list implies the pattern filter.
	if kind == FilterNone && len(s.Patterns) > 0 {
		kind = FilterPattern
	}

	f := LinkFilter{Kind: kind}
	switch kind {
	case FilterPattern:
		f.Patterns = c.regexps(field+".patterns", s.Patterns)
		if len(f.Patterns) == 0 {
			c.fail(field+".patterns", fmt.Errorf("pattern filter needs at least one pattern"))
		}
	case FilterDateWindow:
		if s.DatePattern != "" {
			re, err := regexp.Compile(s.DatePattern)
			if err != nil {
				c.fail(field+".date_pattern", err)
			} else if re.NumSubexp() < 3 {
				c.fail(field+".date_pattern", fmt.Errorf("need year, month and day groups"))
			}
			f.DatePattern = re
		}
		if f.Start, err = time.Parse(frontier.DateLayout, s.Start); err != nil {
			c.fail(field+".start", err)
		}
		if f.End, err = time.Parse(frontier.DateLayout, s.End); err != nil {
			c.fail(field+".end", err)
		}
		f.RequireAny = s.RequireAny
		f.Exclude = c.regexps(field+".exclude", s.Exclude)
	}
	return f
}

func (c *compiler) compile(s *fileSpec) *Profile {
	p := &Profile{
		Name:            strings.ToLower(strings.TrimSpace(s.Name)),
		Source:          strings.TrimSpace(s.Source),
		Domain:          strings.TrimSpace(s.Domain),
		Seeds:           s.Seeds,
		Headers:         make(http.Header),
		FollowRedirects: s.FollowRedirects,
		TextFallback:    s.TextFallback,
		Concurrency:     s.Concurrency,
		Delay:           s.Delay,
	}
	if p.Source == "" {
		p.Source = p.Name
	}
	for _, d := range s.AllowedDomains {
		p.AllowedDomains = append(p.AllowedDomains, strings.ToLower(strings.TrimSpace(d)))
	}

	var err error
	if p.SeedType, err = types.ParsePageType(defaultString(s.SeedType, "sitemap")); err != nil {
		c.fail("seed_type", err)
	}
	if p.Fetcher, err = ParseFetcherKind(s.Fetcher); err != nil {
		c.fail("fetcher", err)
	}

	p.Fields = Fields{
		Title:       c.selector("fields.title", s.Fields.Title),
		Description: c.selector("fields.description", s.Fields.Description),
		KeyPoints:   c.selector("fields.key_points", s.Fields.KeyPoints),
		Text:        c.selector("fields.text", s.Fields.Text),
		Date:        c.selector("fields.date", s.Fields.Date),
		Authors:     c.selector("fields.authors", s.Fields.Authors),
	}
	if p.Fields.DateFormat, err = ParseDateFormat(s.Fields.DateFormat); err != nil {
		c.fail("fields.date_format", err)
	}

	matchable := s.Matchable
	if len(matchable) == 0 {
		matchable = []string{"title", "description", "text"}
	}
	for _, name := range matchable {
		f, err := ParseField(name)
		if err != nil {
			c.fail("matchable", err)
			continue
		}
		p.Matchable = append(p.Matchable, f)
	}

	if p.Images.Mode, err = ParseImageMode(s.Images.Mode); err != nil {
		c.fail("images.mode", err)
	}
	p.Images.Images = c.selector("images.images", s.Images.Images)
	p.Images.Captions = c.selector("images.captions", s.Images.Captions)
	p.Images.Container = c.selector("images.container", s.Images.Container)
	p.Images.Src = c.selector("images.src", s.Images.Src)
	p.Images.Caption = c.selector("images.caption", s.Images.Caption)
	for _, ext := range s.Images.Extensions {
		p.Images.Extensions = append(p.Images.Extensions, strings.ToLower(ext))
	}
	p.Images.Placeholder = defaultString(s.Images.Placeholder, types.NoCaption)

	p.Listing.Links = c.selector("listing.links", s.Listing.Links)
	p.Listing.Filter = c.filter("listing.filter", s.Listing.Filter)
	if p.Listing.Pagination.Kind, err = ParsePaginationKind(s.Listing.Pagination.Kind); err != nil {
		c.fail("listing.pagination.kind", err)
	}
	p.Listing.Pagination.Container = c.selector("listing.pagination.container", s.Listing.Pagination.Container)
	p.Listing.Pagination.LastPage = c.selector("listing.pagination.last_page", s.Listing.Pagination.LastPage)
	p.Listing.Pagination.PageLinks = c.selector("listing.pagination.page_links", s.Listing.Pagination.PageLinks)
	p.Listing.Pagination.Param = defaultString(s.Listing.Pagination.Param, "page")

	p.Sitemap = c.filter("sitemap.filter", s.Sitemap.Filter)

	for k, v := range s.Headers {
		p.Headers.Set(k, v)
	}
	cookieNames := make([]string, 0, len(s.Cookies))
	for k := range s.Cookies {
		cookieNames = append(cookieNames, k)
	}
	sort.Strings(cookieNames)
	for _, k := range cookieNames {
		p.Cookies = append(p.Cookies, &http.Cookie{Name: k, Value: s.Cookies[k]})
	}

	return p
}

// Validate checks that the compiled profile is internally consistent.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if _, err := frontier.Generate(p.Seeds); err != nil {
		return fmt.Errorf("profile %s: %w", p.Name, err)
	}
	if p.Fields.Title == nil && p.Fields.Text == nil {
		return fmt.Errorf("profile %s: needs a title or text selector", p.Name)
	}
	if p.SeedType == types.PageListing && p.Listing.Links == nil {
		return fmt.Errorf("profile %s: listing seeds need listing.links", p.Name)
	}

	switch p.Images.Mode {
	case ImagesFlat:
		if p.Images.Images == nil {
			return fmt.Errorf("profile %s: flat images need images.images", p.Name)
		}
	case ImagesBlocks:
		if p.Images.Container == nil || p.Images.Src == nil {
			return fmt.Errorf("profile %s: image blocks need images.container and images.src", p.Name)
		}
	}

	pg := p.Listing.Pagination
	switch pg.Kind {
	case PaginationLastPage:
		if pg.Container == nil || pg.LastPage == nil {
			return fmt.Errorf("profile %s: last_page pagination needs container and last_page", p.Name)
		}
	case PaginationPageLinks:
		if pg.Container == nil || pg.PageLinks == nil {
			return fmt.Errorf("profile %s: page_links pagination needs container and page_links", p.Name)
		}
	}

	if p.Concurrency < 0 {
		return fmt.Errorf("profile %s: concurrency must be >= 0", p.Name)
	}
	if p.Delay < 0 {
		return fmt.Errorf("profile %s: delay must be >= 0", p.Name)
	}
	return nil
}

func defaultString(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
