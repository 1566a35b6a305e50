// Package keywords compiles a keyword taxonomy into word-boundary,
// case-insensitive patterns and scans text for matches.
package keywords

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/IshaanNene/newscrawler/internal/types"
)

// Taxonomy maps a category name to an ordered list of literal keywords.
type Taxonomy map[string][]string

// DefaultTaxonomy returns the built-in Israel/Palestine keyword set.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		"primary": {
			"palestine", "palestinian", "palestinians",
			"israel", "israeli", "israelis",
			"gaza",
			"hamas",
			"idf", "israeli defence force", "israeli defence forces", "israeli defense force", "israeli defense forces",
		},
		"date": {"october 7th", "7th october", "october 7", "7 october", "oct 7th", "7th oct", "oct 7", "7 oct"},
	}
}

type pattern struct {
	keyword string
	re      *regexp.Regexp
}

// Matcher holds one compiled pattern per distinct keyword.
// It is safe for concurrent use.
type Matcher struct {
	patterns []pattern
}

// Compile builds a Matcher from a taxonomy. Categories are walked in name
// order so the compiled set is the same on every run.
func Compile(t Taxonomy) (*Matcher, error) {
	categories := make([]string, 0, len(t))
	for c := range t {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	m := &Matcher{}
	seen := make(map[string]bool)
	for _, category := range categories {
		for i, kw := range t[category] {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				return nil, &types.ConfigError{
					Source: "keywords",
					Field:  fmt.Sprintf("%s[%d]", category, i),
					Err:    fmt.Errorf("blank keyword"),
				}
			}
			if seen[kw] {
				continue
			}
			seen[kw] = true

			re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
			if err != nil {
				return nil, &types.ConfigError{Source: "keywords", Field: category, Err: err}
			}
			m.patterns = append(m.patterns, pattern{keyword: kw, re: re})
		}
	}
	return m, nil
}

// Len returns the number of compiled patterns.
func (m *Matcher) Len() int { return len(m.patterns) }

// Keywords returns the compiled keywords in compile order.
func (m *Matcher) Keywords() []string {
	out := make([]string, len(m.patterns))
	for i, p := range m.patterns {
		out[i] = p.keyword
	}
	return out
}

// FindMatches returns every keyword whose pattern occurs anywhere in text.
// Empty text yields an empty set.
func (m *Matcher) FindMatches(text string) MatchSet {
	set := make(MatchSet)
	if m == nil || strings.TrimSpace(text) == "" {
		return set
	}
	for _, p := range m.patterns {
		if p.re.MatchString(text) {
			set[p.keyword] = struct{}{}
		}
	}
	return set
}

// MatchSet is a set of lowercased matched keywords.
type MatchSet map[string]struct{}

// Len returns the number of matched keywords.
func (s MatchSet) Len() int { return len(s) }

// Contains reports whether kw (case-insensitive) is in the set.
func (s MatchSet) Contains(kw string) bool {
	_, ok := s[strings.ToLower(kw)]
	return ok
}

// Sorted returns the matched keywords in lexical order.
func (s MatchSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for kw := range s {
		out = append(out, kw)
	}
	sort.Strings(out)
	return out
}
