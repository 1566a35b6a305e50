package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IshaanNene/newscrawler/internal/config"
	"github.com/IshaanNene/newscrawler/internal/keywords"
	"github.com/IshaanNene/newscrawler/internal/profile"
	"github.com/IshaanNene/newscrawler/internal/types"
)

// State represents the engine's current lifecycle state.
type State int32

const (
	StateIdle     State = 0
	StateRunning  State = 1
	StateStopping State = 2
	StateStopped  State = 3
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Reasons reported in the end-of-run summary.
const (
	ReasonFinished    = "finished"
	ReasonCancelled   = "cancelled"
	ReasonStopped     = "stopped"
	ReasonMaxRequests = "max_requests"
)

// Fetcher is the interface for all fetcher implementations.
type Fetcher interface {
	Fetch(ctx context.Context, req *types.Request) (*types.Response, error)
	Close() error
}

// Pipeline is the interface for the article processing pipeline.
type Pipeline interface {
	Process(a *types.Article) (*types.Article, error)
}

// Storage is the interface for all storage backends.
type Storage interface {
	Store(articles []*types.Article) error
	Close() error
}

// Engine runs one site profile to completion. Each site gets its own
// Engine; engines share no state.
type Engine struct {
	cfg        *config.Config
	profile    *profile.Profile
	logger     *slog.Logger
	frontier   *Frontier
	requested  *VisitedSet
	robots     *RobotsManager
	scheduler  *Scheduler
	controller *Controller
	fetchers   map[string]Fetcher
	pipeline   Pipeline
	storage    Storage

	state       atomic.Int32
	stopReason  atomic.Value
	stats       *RunStatistics
	articleChan chan *types.Article
	resultChan  chan *types.Article

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

// New creates an Engine for one site profile.
func New(cfg *config.Config, p *profile.Profile, m *keywords.Matcher, logger *slog.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	logger = logger.With("site", p.Name)
	stats := NewRunStatistics()

	workers := cfg.Engine.Concurrency
	if p.Concurrency > 0 {
		workers = p.Concurrency
	}

	userAgent := config.DefaultUserAgent
	if len(cfg.Engine.UserAgents) > 0 {
		userAgent = cfg.Engine.UserAgents[0]
	}

	e := &Engine{
		cfg:         cfg,
		profile:     p,
		logger:      logger,
		frontier:    NewFrontier(),
		requested:   NewVisitedSet(64 * 1024),
		robots:      NewRobotsManager(cfg.Engine.RespectRobotsTxt, userAgent, nil),
		controller:  NewController(p, m, stats, logger),
		fetchers:    make(map[string]Fetcher),
		stats:       stats,
		articleChan: make(chan *types.Article, workers*10),
		resultChan:  make(chan *types.Article, workers*10),
		ctx:         ctx,
		cancel:      cancel,
	}
	e.scheduler = NewScheduler(e, workers)
	return e
}

// SetFetcher registers a fetcher for a given type ("http", "browser", "file").
func (e *Engine) SetFetcher(fetcherType string, f Fetcher) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fetchers[fetcherType] = f
}

// SetPipeline sets the pipeline implementation.
func (e *Engine) SetPipeline(p Pipeline) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pipeline = p
}

// SetStorage sets the storage implementation.
func (e *Engine) SetStorage(s Storage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.storage = s
}

// AddSeed adds a seed URL of the profile's seed type to the frontier.
func (e *Engine) AddSeed(rawURL string) error {
	req, err := types.NewRequest(rawURL, e.profile.SeedType)
	if err != nil {
		return err
	}
	req.Priority = types.PriorityHighest
	req.Depth = 0
	for k, vs := range e.profile.Headers {
		for _, v := range vs {
			req.Headers.Add(k, v)
		}
	}
	if e.profile.Fetcher == profile.FetcherBrowser && req.FetcherType == "http" {
		req.FetcherType = "browser"
	}
	return e.AddRequest(req)
}

// AddSeeds generates the profile's seed URLs and adds them all. It returns
// the number of seeds enqueued.
func (e *Engine) AddSeeds() (int, error) {
	urls, err := e.profile.SeedURLs()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, u := range urls {
		if err := e.AddSeed(u); err != nil {
			e.logger.Warn("seed rejected", "url", u, "error", err)
			continue
		}
		n++
	}
	return n, nil
}

// AddRequest adds a request to the crawl frontier.
func (e *Engine) AddRequest(req *types.Request) error {
	urlStr := req.URLString()

	if maxDepth := e.cfg.Engine.MaxDepth; maxDepth > 0 && req.Depth > maxDepth {
		e.stats.URLsFiltered.Add(1)
		return fmt.Errorf("depth %d exceeds max depth %d", req.Depth, maxDepth)
	}

	if req.PageType == types.PageArticle && !e.profile.AllowsHost(req.Domain()) {
		e.stats.URLsFiltered.Add(1)
		return fmt.Errorf("domain %q is not allowed", req.Domain())
	}

	if !e.requested.MarkIfUnseen(urlStr) {
		e.stats.URLsFiltered.Add(1)
		return types.ErrDuplicate
	}

	if !e.robots.IsAllowed(e.ctx, urlStr) {
		e.stats.URLsFiltered.Add(1)
		return types.ErrBlocked
	}

	if e.cfg.Engine.MaxRetries > 0 {
		req.MaxRetries = e.cfg.Engine.MaxRetries
	}
	e.frontier.Push(req)
	e.stats.URLsEnqueued.Add(1)
	return nil
}

// Start begins crawling. Cancelling ctx stops the run; articles already
// extracted are still stored.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.RLock()
	nFetchers := len(e.fetchers)
	e.mu.RUnlock()
	if nFetchers == 0 {
		return types.ErrNoFetcher
	}

	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return fmt.Errorf("engine is in state %s, cannot start", State(e.state.Load()))
	}

	e.logger.Info("engine starting",
		"workers", e.scheduler.workers,
		"per_domain", e.cfg.Engine.ConcurrencyPerDomain,
		"delay", e.delay(),
		"respect_robots", e.cfg.Engine.RespectRobotsTxt,
		"queued", e.frontier.Len(),
	)

	e.stats.StartTime = time.Now()

	go func() {
		select {
		case <-ctx.Done():
			e.stop(ReasonCancelled)
		case <-e.ctx.Done():
		}
	}()

	e.wg.Add(1)
	go e.processArticles()

	e.wg.Add(1)
	go e.storeResults()

	e.scheduler.Start(e.ctx)
	return nil
}

// Wait blocks until all work is done, flushes storage and logs the run
// summary. It returns the reason the run ended.
func (e *Engine) Wait() string {
	e.scheduler.Wait()

	reason := ReasonFinished
	if r, ok := e.stopReason.Load().(string); ok {
		reason = r
	}
	e.cancel()

	close(e.articleChan)
	e.wg.Wait()
	e.state.Store(int32(StateStopped))

	e.mu.RLock()
	for name, f := range e.fetchers {
		if err := f.Close(); err != nil {
			e.logger.Error("fetcher close error", "fetcher", name, "error", err)
		}
	}
	e.mu.RUnlock()

	e.stats.LogSummary(e.logger, reason)
	return reason
}

// Run adds the profile's seeds, starts the engine and waits for it.
func (e *Engine) Run(ctx context.Context) (string, error) {
	n, err := e.AddSeeds()
	if err != nil {
		return "", err
	}
	e.logger.Info("seeds generated", "count", n)
	if err := e.Start(ctx); err != nil {
		return "", err
	}
	return e.Wait(), nil
}

// Stop gracefully stops the engine.
func (e *Engine) Stop() {
	e.stop(ReasonStopped)
}

func (e *Engine) stop(reason string) {
	if !e.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return
	}
	e.stopReason.Store(reason)
	e.logger.Info("engine stopping", "reason", reason)
	// Close the frontier first so workers polling TryPop() see IsClosed() and exit.
	e.frontier.Close()
	e.cancel()
}

// Stats returns the run statistics.
func (e *Engine) Stats() *RunStatistics {
	return e.stats
}

// QueueDepth is the number of requests waiting in the frontier.
func (e *Engine) QueueDepth() int {
	return e.frontier.Len()
}

// GetState returns the current engine state.
func (e *Engine) GetState() State {
	return State(e.state.Load())
}

// Profile returns the site profile this engine runs.
func (e *Engine) Profile() *profile.Profile {
	return e.profile
}

func (e *Engine) fetcher(fetcherType string) (Fetcher, error) {
	if fetcherType == "" {
		fetcherType = e.cfg.Fetcher.Type
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.fetchers[fetcherType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrNoFetcher, fetcherType)
	}
	return f, nil
}

// delay is the per-domain minimum interval between requests.
func (e *Engine) delay() time.Duration {
	if e.profile.Delay > 0 {
		return e.profile.Delay
	}
	return e.cfg.Engine.PolitenessDelay
}

// processArticles runs the pipeline on emitted articles.
func (e *Engine) processArticles() {
	defer e.wg.Done()
	for a := range e.articleChan {
		if e.pipeline != nil {
			processed, err := e.pipeline.Process(a)
			if err != nil {
				e.stats.ArticlesDropped.Add(1)
				e.logger.Warn("pipeline dropped article", "url", a.URL, "error", err)
				continue
			}
			if processed == nil {
				e.stats.ArticlesDropped.Add(1)
				continue
			}
			a = processed
		}
		e.resultChan <- a
	}
	close(e.resultChan)
}

// storeResults persists articles from the result channel in batches.
func (e *Engine) storeResults() {
	defer e.wg.Done()
	batchSize := e.cfg.Storage.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}
	batch := make([]*types.Article, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if e.storage != nil {
			if err := e.storage.Store(batch); err != nil {
				e.logger.Error("storage error", "error", err, "batch_size", len(batch))
			} else {
				e.stats.ArticlesStored.Add(int64(len(batch)))
			}
		}
		batch = batch[:0]
	}

	for a := range e.resultChan {
		batch = append(batch, a)
		if len(batch) >= batchSize {
			flush()
		}
	}
	flush()

	if e.storage != nil {
		if err := e.storage.Close(); err != nil {
			e.logger.Error("storage close error", "error", err)
		}
	}
}
