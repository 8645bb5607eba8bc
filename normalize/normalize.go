// Package normalize holds the string canonicalisation shared by OCR, the LLM
// agents and the proofreader.
package normalize

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

// Unknown is the sentinel value agents emit for an absent field.
const Unknown = "未知"

var (
	whitespaceRe   = regexp.MustCompile(`\s+`)
	decimalRe      = regexp.MustCompile(`^[+-]?\d+\.\d+$`)
	integerRe      = regexp.MustCompile(`^[+-]?\d+$`)
	thousandsRe    = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d+)?$`)
	bracketReplace = strings.NewReplacer("(", "（", ")", "）")
)

// Number canonicalises a numeric string: thousands separators and a leading
// '+' are dropped, trailing fractional zeros are stripped ("1000.00" -> "1000",
// "1000.50" -> "1000.5"). Non-numeric input is returned trimmed. Integers are
// kept digit-for-digit so identity numbers and phone numbers are not altered.
func Number(s string) string {
	s = strings.TrimSpace(s)
	if thousandsRe.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	}
	switch {
	case decimalRe.MatchString(s):
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	case integerRe.MatchString(s):
	default:
		return s
	}
	s = strings.TrimPrefix(s, "+")
	if s == "-0" {
		s = "0"
	}
	return s
}

// IsNumeric reports whether s is a plain (optionally signed, optionally
// decimal) number once thousands separators are removed.
func IsNumeric(s string) bool {
	s = Number(s)
	return decimalRe.MatchString(s) || integerRe.MatchString(s)
}

// Text trims s and collapses internal whitespace runs to a single space.
func Text(s string) string {
	return whitespaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
}

// NoSpaces removes every whitespace character; used for addresses and credit codes.
func NoSpaces(s string) string {
	return whitespaceRe.ReplaceAllString(s, "")
}

// CompanyType folds full-width letters and digits to ASCII and renders
// brackets in their full-width Chinese form, e.g. "有限责任公司(自然人投资或控股)".
func CompanyType(s string) string {
	s = width.Narrow.String(NoSpaces(s))
	return bracketReplace.Replace(s)
}

// CreditCode canonicalises a unified social credit code.
func CreditCode(s string) string {
	return strings.ToUpper(width.Narrow.String(NoSpaces(s)))
}

// IsEmpty reports whether a slot value carries no information.
func IsEmpty(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == Unknown
}

// URLVariants returns the raw and percent-decoded forms of u, deduplicated.
func URLVariants(u string) []string {
	u = strings.TrimSpace(u)
	out := []string{u}
	if decoded, err := url.PathUnescape(u); err == nil && decoded != u {
		out = append(out, decoded)
	}
	return out
}

// URLKey is the canonical (percent-decoded) form used for URL matching.
func URLKey(u string) string {
	v := URLVariants(u)
	return v[len(v)-1]
}
