package search

import (
	"strings"
	"unicode"
)

const maxQueryRunes = 2000

// NormalizeQuery trims the query, collapses whitespace runs, drops control
// characters and caps its length.
func NormalizeQuery(input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}

	b := strings.Builder{}
	b.Grow(len(input))
	lastWasSpace := false
	n := 0

	for _, r := range input {
		if n >= maxQueryRunes {
			break
		}
		if unicode.IsSpace(r) {
			if lastWasSpace {
				continue
			}
			b.WriteByte(' ')
			lastWasSpace = true
			n++
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		lastWasSpace = false
		n++
	}
	return strings.TrimSpace(b.String())
}
