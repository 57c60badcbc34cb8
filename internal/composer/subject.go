package composer

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "of": {}, "in": {}, "on": {}, "at": {}, "to": {},
	"and": {}, "or": {}, "with": {}, "by": {}, "for": {}, "from": {}, "into": {},
	"over": {}, "under": {}, "near": {}, "its": {}, "their": {}, "is": {}, "are": {},
	"as": {}, "while": {}, "during": {}, "this": {}, "that": {}, "some": {}, "very": {},
}

// DeriveSubject picks a short subject tag from free text: the first two
// words that are not stop words, lowercased. Used for manual and vision
// prompts, which carry no subject trailer.
func DeriveSubject(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '\''
	})
	var picked []string
	for _, w := range words {
		w = strings.Trim(w, "-'")
		if len(w) < 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		picked = append(picked, w)
		if len(picked) == 2 {
			break
		}
	}
	return strings.Join(picked, " ")
}
