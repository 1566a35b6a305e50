package pipeline

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/IshaanNene/newscrawler/internal/types"
)

// Middleware processes an article and returns the (possibly modified) article.
// Return nil to drop the article from the pipeline.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms an article. Return nil to drop it.
	Process(a *types.Article) (*types.Article, error)
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// Default returns the pipeline every crawl runs: sanitize, trim, normalize
// dates and captions, then drop records that carry no keyword match. Empty
// content fields never drop a matched record.
func Default(logger *slog.Logger) *Pipeline {
	p := New(logger)
	p.Use(NewHTMLSanitizeMiddleware())
	p.Use(&TrimMiddleware{})
	p.Use(NewDateNormalizeMiddleware())
	p.Use(&CaptionNormalizeMiddleware{})
	p.Use(&RequiredFieldsMiddleware{AnyOf: []string{"matched_keywords"}})
	p.Use(NewDedupMiddleware("url"))
	return p
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the article through all middleware in order. A nil result
// with a nil error means the article was dropped.
func (p *Pipeline) Process(a *types.Article) (*types.Article, error) {
	current := a

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			return nil, &types.PipelineError{
				Stage:   mw.Name(),
				Article: current,
				Err:     err,
			}
		}
		if result == nil {
			p.logger.Debug("article dropped", "stage", mw.Name(), "url", a.URL)
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

// --- Built-in Middleware ---

// RequiredFieldsMiddleware drops articles in which every one of AnyOf is
// empty. Field names are the JSON names.
type RequiredFieldsMiddleware struct {
	AnyOf []string
}

func (m *RequiredFieldsMiddleware) Name() string { return "required_fields" }

func (m *RequiredFieldsMiddleware) Process(a *types.Article) (*types.Article, error) {
	if len(m.AnyOf) == 0 {
		return a, nil
	}
	flat := a.ToFlatMap()
	for _, field := range m.AnyOf {
		if v := flat[field]; v != "" && v != "null" && v != "[]" {
			return a, nil
		}
	}
	return nil, nil
}

// DedupMiddleware drops articles whose key field was already seen.
type DedupMiddleware struct {
	mu   sync.Mutex
	seen map[string]struct{}
	key  string // JSON field used as dedup key
}

func NewDedupMiddleware(key string) *DedupMiddleware {
	return &DedupMiddleware{
		seen: make(map[string]struct{}),
		key:  key,
	}
}

func (m *DedupMiddleware) Name() string { return "dedup" }

func (m *DedupMiddleware) Process(a *types.Article) (*types.Article, error) {
	val := a.ToFlatMap()[m.key]
	if val == "" {
		val = a.URL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.seen[val]; exists {
		return nil, nil
	}
	m.seen[val] = struct{}{}
	return a, nil
}

// TrimMiddleware trims whitespace from the text fields and drops blank
// or repeated authors.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(a *types.Article) (*types.Article, error) {
	a.Title = strings.TrimSpace(a.Title)
	a.Description = strings.TrimSpace(a.Description)
	a.KeyPoints = strings.TrimSpace(a.KeyPoints)
	a.Text = strings.TrimSpace(a.Text)
	a.SetDate(a.Date())

	authors := make([]string, 0, len(a.Authors))
	seen := make(map[string]bool, len(a.Authors))
	for _, name := range a.Authors {
		name = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), "By "))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		authors = append(authors, name)
	}
	a.Authors = authors
	return a, nil
}
