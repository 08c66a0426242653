package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// abbreviations end in a period that does not terminate a sentence.
// Keys are lowercase without the trailing period.
var abbreviations = map[string]struct{}{
	"dr": {}, "mr": {}, "mrs": {}, "ms": {}, "prof": {}, "sr": {}, "jr": {}, "st": {},
	"vs": {}, "etc": {}, "e.g": {}, "i.e": {}, "approx": {}, "fig": {}, "figs": {},
	"vol": {}, "no": {}, "inc": {}, "ltd": {}, "co": {}, "dept": {}, "est": {},
	"ca": {}, "cf": {}, "al": {}, "eq": {}, "ref": {}, "pp": {}, "ch": {}, "sec": {},
}

const (
	closingPunct = `"')]}”’»`
	openingPunct = `"'([{“‘«`
)

// splitSentences groups words into sentences. A word ending in '.', '!' or
// '?' (optionally followed by closing quotes or brackets) ends a sentence
// unless it is a known abbreviation or a single-letter initial.
func splitSentences(words []string) [][]string {
	var sentences [][]string
	start := 0
	for i, w := range words {
		if endsSentence(w) {
			sentences = append(sentences, words[start:i+1])
			start = i + 1
		}
	}
	if start < len(words) {
		sentences = append(sentences, words[start:])
	}
	return sentences
}

func endsSentence(word string) bool {
	core := strings.TrimRight(word, closingPunct)
	if core == "" {
		return false
	}

	last, _ := utf8.DecodeLastRuneInString(core)
	switch last {
	case '!', '?':
		return true
	case '.':
		return !isAbbreviation(core)
	}
	return false
}

func isAbbreviation(word string) bool {
	stem := strings.TrimLeft(strings.TrimSuffix(word, "."), openingPunct)
	if stem == "" {
		return false
	}

	// Single-letter initials such as "J." in "J. Smith".
	if utf8.RuneCountInString(stem) == 1 {
		r, _ := utf8.DecodeRuneInString(stem)
		return unicode.IsLetter(r)
	}

	_, ok := abbreviations[strings.ToLower(stem)]
	return ok
}
