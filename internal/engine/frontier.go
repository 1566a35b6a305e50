package engine

import (
	"container/heap"
	"sync"

	"github.com/IshaanNene/newscrawler/internal/types"
)

// stageRank orders page types: article pages drain before the listings and
// sitemaps that discover more of them, which keeps the queue short on
// sites with large archives.
func stageRank(t types.PageType) int {
	switch t {
	case types.PageArticle:
		return 0
	case types.PageListing:
		return 1
	default:
		return 2
	}
}

// Frontier is a thread-safe queue of pending requests. Requests come out by
// page type, then Request.Priority, then insertion order.
type Frontier struct {
	mu      sync.Mutex
	pending requestHeap
	seq     uint64
	closed  bool
}

// NewFrontier creates an empty Frontier.
func NewFrontier() *Frontier {
	return &Frontier{pending: make(requestHeap, 0, 1024)}
}

// Push queues req. Pushes after Close are dropped.
func (f *Frontier) Push(req *types.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.seq++
	heap.Push(&f.pending, queued{
		req:      req,
		rank:     stageRank(req.PageType),
		priority: req.Priority,
		seq:      f.seq,
	})
}

// TryPop removes the next request without blocking. It returns nil when
// the frontier is empty.
func (f *Frontier) TryPop() *types.Request {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.pending) == 0 {
		return nil
	}
	return heap.Pop(&f.pending).(queued).req
}

// Len returns the number of queued requests.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// IsEmpty reports whether nothing is queued.
func (f *Frontier) IsEmpty() bool {
	return f.Len() == 0
}

// Close stops the frontier; workers polling TryPop exit once they see it.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// IsClosed reports whether Close has been called.
func (f *Frontier) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type queued struct {
	req      *types.Request
	rank     int
	priority int
	seq      uint64
}

// requestHeap implements heap.Interface over queued values.
type requestHeap []queued

func (h requestHeap) Len() int { return len(h) }

func (h requestHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.rank != b.rank {
		return a.rank < b.rank
	}
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.seq < b.seq
}

func (h requestHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *requestHeap) Push(x any) { *h = append(*h, x.(queued)) }

func (h *requestHeap) Pop() any {
	old := *h
	n := len(old) - 1
	q := old[n]
	old[n] = queued{}
	*h = old[:n]
	return q
}
