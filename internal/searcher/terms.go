package searcher

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// stopWords are dropped from keyword queries.
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		a about above after again against all also am an and any are as at
		be because been before being below between both but by
		can could did do does doing down during each few for from further
		had has have having he her here hers herself him himself his how
		i if in into is it its itself just me more most my myself
		no nor not now of off on once only or other our ours ourselves out over own
		same she should so some such than that the their theirs them themselves then
		there these they this those through to too under until up very
		was we were what when where which while who whom why will with would
		you your yours yourself yourselves`) {
		stopWords[w] = struct{}{}
	}
}

// minTermLength is the shortest term kept; shorter terms carry little signal.
const minTermLength = 3

// ExtractTerms lowercases query, splits it on anything that is not a letter
// or digit, and removes stop words, short terms and duplicates. Order of
// first appearance is kept.
func ExtractTerms(query string) []string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(words))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) < minTermLength {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		terms = append(terms, w)
	}
	return terms
}
