package proofread

import (
	"regexp"
	"strings"

	"casefile-backend/normalize"
	"casefile-backend/rules"
)

// canonical is the comparison form shared by every strategy
func canonical(s string) string {
	return strings.ToLower(normalize.Number(normalize.Text(s)))
}

// Exact compares after numeric normalisation, case-insensitively
func Exact(value, expected string) bool {
	v, e := canonical(value), canonical(expected)
	return v != "" && v == e
}

// Masked treats every '*' in value as "any single character". A value
// without '*' falls back to Exact.
func Masked(value, expected string) bool {
	v := canonical(value)
	if !strings.Contains(v, "*") {
		return Exact(value, expected)
	}
	parts := strings.Split(v, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	re, err := regexp.Compile("^" + strings.Join(parts, ".") + "$")
	if err != nil {
		return false
	}
	return re.MatchString(canonical(expected))
}

// Strategy returns the comparison for a rule strategy name. The role-tagging
// strategies (contains, startswith, endswith) test whether the extracted
// value contains, starts with or ends with the party's value.
func Strategy(name string) func(value, expected string) bool {
	switch name {
	case rules.MatchFuzzy:
		return Masked
	case rules.MatchContains:
		return func(value, expected string) bool {
			e := canonical(expected)
			return e != "" && strings.Contains(canonical(value), e)
		}
	case rules.MatchStartsWith:
		return func(value, expected string) bool {
			e := canonical(expected)
			return e != "" && strings.HasPrefix(canonical(value), e)
		}
	case rules.MatchEndsWith:
		return func(value, expected string) bool {
			e := canonical(expected)
			return e != "" && strings.HasSuffix(canonical(value), e)
		}
	default:
		return Exact
	}
}
