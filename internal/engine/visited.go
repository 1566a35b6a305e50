package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/purell"
)

const canonicalFlags = purell.FlagLowercaseScheme |
	purell.FlagLowercaseHost |
	purell.FlagUppercaseEscapes |
	purell.FlagDecodeUnnecessaryEscapes |
	purell.FlagEncodeNecessaryEscapes |
	purell.FlagRemoveDefaultPort |
	purell.FlagRemoveEmptyQuerySeparator |
	purell.FlagRemoveDotSegments |
	purell.FlagRemoveDuplicateSlashes |
	purell.FlagRemoveFragment |
	purell.FlagRemoveTrailingSlash |
	purell.FlagSortQuery |
	purell.FlagRemoveEmptyPortSeparator |
	purell.FlagRemoveUnnecessaryHostDots

// VisitedSet is a run-scoped set of canonical URLs. One set belongs to one
// site run and is never shared between runs.
type VisitedSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewVisitedSet creates a VisitedSet with the given estimated capacity.
func NewVisitedSet(estimatedCapacity int) *VisitedSet {
	return &VisitedSet{
		seen: make(map[string]struct{}, estimatedCapacity),
	}
}

// MarkIfUnseen records rawURL and reports whether it was new. The check and
// the insert happen under one lock, so of two concurrent callers with the
// same URL exactly one gets true.
func (v *VisitedSet) MarkIfUnseen(rawURL string) bool {
	key := hashURL(CanonicalizeURL(rawURL))

	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.seen[key]; ok {
		return false
	}
	v.seen[key] = struct{}{}
	return true
}

// Seen reports whether rawURL was already recorded.
func (v *VisitedSet) Seen(rawURL string) bool {
	key := hashURL(CanonicalizeURL(rawURL))

	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.seen[key]
	return ok
}

// Len returns the number of unique URLs recorded.
func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen)
}

// CanonicalizeURL normalizes a URL for deduplication: lowercase scheme and
// host, no fragment, no default port, sorted query, no trailing slash.
func CanonicalizeURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}
	return purell.NormalizeURL(u, canonicalFlags)
}

// hashURL creates a compact hash of a URL string.
func hashURL(canonicalURL string) string {
	h := sha256.Sum256([]byte(canonicalURL))
	return hex.EncodeToString(h[:16])
}
