// Package frontier enumerates the seed URLs of a site run. It performs no
// I/O: every output is a pure function of the Seeds configuration.
package frontier

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/IshaanNene/newscrawler/internal/types"
)

// Granularity selects how seed URLs are enumerated.
type Granularity int

// The zero value is Static, matching an omitted granularity in a profile.
const (
	// Static yields a literal URL list.
	Static Granularity = iota
	// Monthly yields one URL per calendar month per template.
	Monthly
	// Daily yields one URL per calendar day per template.
	Daily
	// Range substitutes an integer sequence into the templates.
	Range
	// Search yields one URL per search term per template.
	Search
)

func (g Granularity) String() string {
	switch g {
	case Monthly:
		return "monthly"
	case Daily:
		return "daily"
	case Static:
		return "static"
	case Range:
		return "range"
	case Search:
		return "search"
	default:
		return "unknown"
	}
}

// ParseGranularity resolves a granularity name from configuration.
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monthly":
		return Monthly, nil
	case "daily":
		return Daily, nil
	case "static", "":
		return Static, nil
	case "range":
		return Range, nil
	case "search":
		return Search, nil
	default:
		return 0, fmt.Errorf("unknown granularity %q", s)
	}
}

// UnmarshalText lets Granularity be decoded straight from YAML.
func (g *Granularity) UnmarshalText(b []byte) error {
	v, err := ParseGranularity(string(b))
	if err != nil {
		return err
	}
	*g = v
	return nil
}

// DateLayout is the layout of Seeds.Start and Seeds.End.
const DateLayout = "2006-01-02"

// Seeds describes the seed URLs of one site.
//
// Templates may use {yyyy}, {mm}, {m}, {dd}, {d}, {month} (lowercase English
// month name), {Month} (capitalized), {n} (Range) and {q} (Search).
type Seeds struct {
	Granularity Granularity `yaml:"granularity"`
	Templates   []string    `yaml:"templates"`
	Start       string      `yaml:"start"`
	End         string      `yaml:"end"`
	From        int         `yaml:"from"`
	To          int         `yaml:"to"`
	URLs        []string    `yaml:"urls"`
	Terms       []string    `yaml:"terms"`
}

// Generate returns the ordered, duplicate-free seed URLs for s.
func Generate(s Seeds) ([]string, error) {
	var raw []string

	switch s.Granularity {
	case Static:
		if len(s.URLs) == 0 {
			return nil, configErr("urls", fmt.Errorf("static seeds need at least one URL"))
		}
		raw = s.URLs

	case Monthly, Daily:
		if len(s.Templates) == 0 {
			return nil, configErr("templates", fmt.Errorf("%s seeds need at least one template", s.Granularity))
		}
		start, end, err := s.window()
		if err != nil {
			return nil, err
		}
		if s.Granularity == Monthly {
			start = time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
			for d := start; !d.After(end); d = d.AddDate(0, 1, 0) {
				raw = appendExpanded(raw, s.Templates, dateVars(d))
			}
		} else {
			for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
				raw = appendExpanded(raw, s.Templates, dateVars(d))
			}
		}

	case Range:
		if len(s.Templates) == 0 {
			return nil, configErr("templates", fmt.Errorf("range seeds need at least one template"))
		}
		step := 1
		if s.From > s.To {
			step = -1
		}
		for n := s.From; ; n += step {
			raw = appendExpanded(raw, s.Templates, map[string]string{"{n}": strconv.Itoa(n)})
			if n == s.To {
				break
			}
		}

	case Search:
		if len(s.Templates) == 0 {
			return nil, configErr("templates", fmt.Errorf("search seeds need at least one template"))
		}
		if len(s.Terms) == 0 {
			return nil, configErr("terms", fmt.Errorf("search seeds need at least one term"))
		}
		for _, term := range s.Terms {
			term = strings.TrimSpace(term)
			if term == "" {
				continue
			}
			raw = appendExpanded(raw, s.Templates, map[string]string{"{q}": url.QueryEscape(term)})
		}

	default:
		return nil, configErr("granularity", fmt.Errorf("unknown granularity %d", s.Granularity))
	}

	return dedupe(raw), nil
}

// window parses and checks the date range.
func (s Seeds) window() (time.Time, time.Time, error) {
	start, err := time.Parse(DateLayout, strings.TrimSpace(s.Start))
	if err != nil {
		return time.Time{}, time.Time{}, configErr("start", err)
	}
	end, err := time.Parse(DateLayout, strings.TrimSpace(s.End))
	if err != nil {
		return time.Time{}, time.Time{}, configErr("end", err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, configErr("end", fmt.Errorf("end %s is before start %s", s.End, s.Start))
	}
	return start, end, nil
}

func dateVars(d time.Time) map[string]string {
	month := d.Month().String()
	return map[string]string{
		"{yyyy}":  strconv.Itoa(d.Year()),
		"{mm}":    fmt.Sprintf("%02d", int(d.Month())),
		"{m}":     strconv.Itoa(int(d.Month())),
		"{dd}":    fmt.Sprintf("%02d", d.Day()),
		"{d}":     strconv.Itoa(d.Day()),
		"{month}": strings.ToLower(month),
		"{Month}": month,
	}
}

func appendExpanded(dst, templates []string, vars map[string]string) []string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, k, v)
	}
	r := strings.NewReplacer(pairs...)
	for _, t := range templates {
		dst = append(dst, r.Replace(t))
	}
	return dst
}

func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func configErr(field string, err error) error {
	return &types.ConfigError{Source: "seeds", Field: field, Err: err}
}
