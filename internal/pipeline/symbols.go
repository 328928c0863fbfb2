package pipeline

import (
	"strings"
	"unicode"
)

// Normalize splits free-text ticker input on commas, semicolons and whitespace,
// uppercases each token and drops empties and repeats. Order of first
// appearance is kept.
func Normalize(inputs ...string) []string {
	seen := make(map[string]bool)
	var symbols []string
	for _, in := range inputs {
		tokens := strings.FieldsFunc(in, func(r rune) bool {
			return r == ',' || r == ';' || unicode.IsSpace(r)
		})
		for _, tok := range tokens {
			sym := strings.ToUpper(strings.TrimSpace(tok))
			if sym == "" || seen[sym] {
				continue
			}
			seen[sym] = true
			symbols = append(symbols, sym)
		}
	}
	return symbols
}
