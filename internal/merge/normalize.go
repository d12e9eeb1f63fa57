package merge

import (
	"strings"
	"unicode"
)

// corporateSuffixes are dropped from the end of a normalized company key.
var corporateSuffixes = map[string]struct{}{
	"inc":         {},
	"corp":        {},
	"corporation": {},
	"llc":         {},
	"ltd":         {},
	"co":          {},
	"plc":         {},
	"gmbh":        {},
}

// CompanyKey returns the grouping key used for candidate lookup.
// Without normalization the key is the company name exactly as extracted.
func CompanyKey(name string, normalize bool) string {
	if !normalize {
		return name
	}
	return NormalizeCompanyName(name)
}

// NormalizeCompanyName casefolds name, strips punctuation and removes
// trailing corporate suffixes ("Acme, Inc." -> "acme").
func NormalizeCompanyName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		if r == '&' {
			return r
		}
		return ' '
	}, name)

	words := strings.Fields(cleaned)
	for len(words) > 1 {
		if _, ok := corporateSuffixes[words[len(words)-1]]; !ok {
			break
		}
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}
