package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/IshaanNene/newscrawler/internal/types"
)

// Scheduler manages worker goroutines that dequeue from the frontier and dispatch fetches.
type Scheduler struct {
	engine      *Engine
	logger      *slog.Logger
	workers     int
	wg          sync.WaitGroup
	idleWorkers atomic.Int32

	domainsMu sync.Mutex
	domains   map[string]*domainGate
}

// domainGate enforces the per-domain minimum delay and concurrency cap.
type domainGate struct {
	limiter *rate.Limiter
	slots   *semaphore.Weighted
}

// NewScheduler creates a new Scheduler.
func NewScheduler(e *Engine, workers int) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		engine:  e,
		logger:  e.logger.With("component", "scheduler"),
		workers: workers,
		domains: make(map[string]*domainGate),
	}
}

// Start launches the worker pool and idle monitor.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("starting worker pool", "workers", s.workers)

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	go s.idleMonitor(ctx)
}

// Wait blocks until all workers are done.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// idleMonitor closes the frontier once every worker has been idle with an
// empty frontier for three consecutive checks.
func (s *Scheduler) idleMonitor(ctx context.Context) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	idleStreak := 0

	for {
		select {
		case <-ctx.Done():
			s.engine.frontier.Close()
			return
		case <-ticker.C:
			if s.engine.frontier.IsClosed() {
				return
			}
			if int(s.idleWorkers.Load()) >= s.workers && s.engine.frontier.Len() == 0 {
				idleStreak++
				if idleStreak >= 3 {
					s.logger.Info("all workers idle and frontier empty")
					s.engine.frontier.Close()
					return
				}
			} else {
				idleStreak = 0
			}
		}
	}
}

// worker is a single crawl worker goroutine.
func (s *Scheduler) worker(ctx context.Context, id int) {
	defer s.wg.Done()
	logger := s.logger.With("worker_id", id)

	for {
		s.idleWorkers.Add(1)

		var req *types.Request
		for {
			req = s.engine.frontier.TryPop()
			if req != nil {
				break
			}
			if s.engine.frontier.IsClosed() {
				s.idleWorkers.Add(-1)
				return
			}
			select {
			case <-ctx.Done():
				s.idleWorkers.Add(-1)
				return
			case <-time.After(50 * time.Millisecond):
			}
		}

		s.idleWorkers.Add(-1)

		s.engine.stats.ActiveWorkers.Add(1)
		s.processRequest(ctx, logger, req)
		s.engine.stats.ActiveWorkers.Add(-1)

		if limit := s.engine.cfg.Engine.MaxRequests; limit > 0 && s.engine.stats.RequestsSent.Load() >= int64(limit) {
			logger.Info("max requests reached, stopping")
			s.engine.stop(ReasonMaxRequests)
			return
		}
	}
}

// processRequest handles a single request: wait for the domain, fetch,
// hand the page to the controller, enqueue what it yields.
func (s *Scheduler) processRequest(ctx context.Context, logger *slog.Logger, req *types.Request) {
	logger = logger.With("url", req.URLString(), "page_type", req.PageType.String(), "depth", req.Depth)

	fetcher, err := s.engine.fetcher(req.FetcherType)
	if err != nil {
		s.engine.stats.RequestsFailed.Add(1)
		logger.Error("no fetcher for request", "fetcher_type", req.FetcherType, "error", err)
		return
	}

	release, err := s.acquire(ctx, req.Domain())
	if err != nil {
		return
	}
	defer release()

	timeout := s.engine.cfg.Engine.RequestTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	fetchCtx, fetchCancel := context.WithTimeout(ctx, timeout)
	defer fetchCancel()

	s.engine.stats.RequestsSent.Add(1)
	resp, err := fetcher.Fetch(fetchCtx, req)
	if err != nil {
		s.handleFetchError(ctx, logger, req, err)
		return
	}

	s.engine.stats.ResponsesOK.Add(1)
	s.engine.stats.BytesDownloaded.Add(resp.ContentLength)
	logger.Debug("fetched", "status", resp.StatusCode, "size", resp.ContentLength, "duration", resp.FetchDuration)

	result := s.engine.controller.Handle(resp)
	for _, a := range result.Articles {
		s.engine.articleChan <- a
	}
	for _, r := range result.Requests {
		if err := s.engine.AddRequest(r); err != nil && !errors.Is(err, types.ErrDuplicate) {
			logger.Debug("request not enqueued", "target", r.URLString(), "reason", err)
		}
	}
}

// handleFetchError re-queues retryable failures until the request runs out
// of retries. Retry-After from a 429 is honoured before re-queuing.
func (s *Scheduler) handleFetchError(ctx context.Context, logger *slog.Logger, req *types.Request, err error) {
	s.engine.stats.RequestsFailed.Add(1)

	var fetchErr *types.FetchError
	if errors.As(err, &fetchErr) && fetchErr.IsRetryable() && req.RetryCount < req.MaxRetries {
		req.RetryCount++
		req.Priority = types.PriorityLow
		logger.Warn("retrying request",
			"retry", req.RetryCount,
			"max_retries", req.MaxRetries,
			"status", fetchErr.StatusCode,
			"error", err,
		)
		if fetchErr.RetryAfter > 0 {
			logger.Info("rate limited, backing off", "retry_after", fetchErr.RetryAfter)
			select {
			case <-time.After(fetchErr.RetryAfter):
			case <-ctx.Done():
				return
			}
		}
		s.engine.frontier.Push(req)
		return
	}

	if ctx.Err() != nil {
		return
	}
	logger.Error("fetch failed permanently", "error", err, "retries", req.RetryCount)
}

// acquire waits for the domain's politeness delay and a free per-domain
// slot. The returned func releases the slot.
func (s *Scheduler) acquire(ctx context.Context, domain string) (func(), error) {
	g := s.gate(domain)
	if err := g.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if err := g.limiter.Wait(ctx); err != nil {
		g.slots.Release(1)
		return nil, err
	}
	return func() { g.slots.Release(1) }, nil
}

func (s *Scheduler) gate(domain string) *domainGate {
	s.domainsMu.Lock()
	defer s.domainsMu.Unlock()

	if g, ok := s.domains[domain]; ok {
		return g
	}

	delay := s.engine.delay()
	if crawlDelay := s.engine.robots.CrawlDelay(domain); crawlDelay > delay {
		delay = crawlDelay
	}
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	perDomain := int64(s.engine.cfg.Engine.ConcurrencyPerDomain)
	if perDomain < 1 {
		perDomain = 1
	}

	g := &domainGate{
		limiter: rate.NewLimiter(limit, 1),
		slots:   semaphore.NewWeighted(perDomain),
	}
	s.domains[domain] = g
	return g
}
