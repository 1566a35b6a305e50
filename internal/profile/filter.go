package profile

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// FilterKind is the tag of a LinkFilter.
type FilterKind int

const (
	// FilterNone accepts every URL.
	FilterNone FilterKind = iota
	// FilterPattern accepts a URL when any pattern matches it.
	FilterPattern
	// FilterDateWindow accepts a URL whose path carries a date inside a window.
	FilterDateWindow
)

// ParseFilterKind resolves a filter kind name.
func ParseFilterKind(s string) (FilterKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return FilterNone, nil
	case "pattern", "rules":
		return FilterPattern, nil
	case "date_window":
		return FilterDateWindow, nil
	default:
		return 0, fmt.Errorf("unknown filter kind %q", s)
	}
}

// LinkFilter decides whether a discovered URL should be fetched as an
// article. Only the fields of the active Kind are used.
type LinkFilter struct {
	Kind FilterKind

	// FilterPattern.
	Patterns []*regexp.Regexp

	// FilterDateWindow.
	DatePattern *regexp.Regexp
	Start, End  time.Time
	RequireAny  []string
	Exclude     []*regexp.Regexp
}

// Accept applies the filter to rawURL.
func (f *LinkFilter) Accept(rawURL string) bool {
	switch f.Kind {
	case FilterPattern:
		for _, re := range f.Patterns {
			if re.MatchString(rawURL) {
				return true
			}
		}
		return false
	case FilterDateWindow:
		return f.acceptDateWindow(rawURL)
	default:
		return true
	}
}

var monthAbbrev = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// acceptDateWindow requires a /YYYY/mon/D/ date inside [Start, End], at least
// one RequireAny marker in the path and no Exclude match.
func (f *LinkFilter) acceptDateWindow(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := u.Path

	if len(f.RequireAny) > 0 {
		marked := false
		for _, m := range f.RequireAny {
			if strings.Contains(path, m) {
				marked = true
				break
			}
		}
		if !marked {
			return false
		}
	}

	for _, re := range f.Exclude {
		if re.MatchString(path) {
			return false
		}
	}

	if f.DatePattern == nil {
		return true
	}
	m := f.DatePattern.FindStringSubmatch(path)
	if len(m) < 4 {
		return false
	}
	d, ok := pathDate(m[1], m[2], m[3])
	if !ok {
		return false
	}
	return !d.Before(f.Start) && !d.After(f.End)
}

// pathDate builds a date from year, month (abbreviation or number) and day
// strings. Impossible dates such as feb/30 are rejected.
func pathDate(year, month, day string) (time.Time, bool) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return time.Time{}, false
	}
	dd, err := strconv.Atoi(day)
	if err != nil {
		return time.Time{}, false
	}
	mon, ok := monthAbbrev[strings.ToLower(month)]
	if !ok {
		n, err := strconv.Atoi(month)
		if err != nil || n < 1 || n > 12 {
			return time.Time{}, false
		}
		mon = time.Month(n)
	}
	t := time.Date(y, mon, dd, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || t.Month() != mon || t.Day() != dd {
		return time.Time{}, false
	}
	return t, true
}
