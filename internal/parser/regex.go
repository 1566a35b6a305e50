package parser

import "regexp"

// applyPattern filters values through re. With named groups every non-empty
// named group is kept, with unnamed groups the first group is kept, and
// without groups the whole match is kept. Values that do not match are
// dropped. A nil re returns values unchanged.
func applyPattern(re *regexp.Regexp, values []string) []string {
	if re == nil {
		return values
	}

	names := re.SubexpNames()
	hasNamedGroups := false
	for _, name := range names {
		if name != "" {
			hasNamedGroups = true
			break
		}
	}

	var out []string
	for _, v := range values {
		match := re.FindStringSubmatch(v)
		if match == nil {
			continue
		}

		switch {
		case hasNamedGroups:
			for i, name := range names {
				if name != "" && i < len(match) && match[i] != "" {
					out = append(out, match[i])
				}
			}
		case re.NumSubexp() > 0:
			if match[1] != "" {
				out = append(out, match[1])
			}
		default:
			out = append(out, match[0])
		}
	}
	return out
}
