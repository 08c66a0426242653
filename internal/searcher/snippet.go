package searcher

import (
	"sort"
	"strings"
	"unicode"
)

// Snippet formatting
const (
	DefaultSnippetLength = 200
	HighlightOpen        = "<mark>"
	HighlightClose       = "</mark>"
	Ellipsis             = "..."
)

// GenerateSnippet cuts a window of at most length runes from content,
// centered on the first case-insensitive occurrence of any term, and wraps
// every term occurrence inside the window in highlight markers. Without a
// match the leading window is returned unmarked. Ellipses mark a window that
// stops short of either end of content.
func GenerateSnippet(content string, terms []string, length int) string {
	runes := []rune(content)
	if len(runes) == 0 || length <= 0 {
		return ""
	}

	// Rune-wise lowering keeps indexes aligned with runes.
	lower := make([]rune, len(runes))
	for i, r := range runes {
		lower[i] = unicode.ToLower(r)
	}
	needles := termRunes(terms)

	start, end := 0, min(length, len(runes))
	if pos, n := firstMatch(lower, needles, 0); pos >= 0 {
		start = max(0, pos+n/2-length/2)
		end = min(len(runes), start+length)
		start = max(0, end-length)
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString(Ellipsis)
	}

	i := start
	for i < end {
		n := matchAt(lower[:end], needles, i)
		if n == 0 {
			b.WriteRune(runes[i])
			i++
			continue
		}
		b.WriteString(HighlightOpen)
		b.WriteString(string(runes[i : i+n]))
		b.WriteString(HighlightClose)
		i += n
	}

	if end < len(runes) {
		b.WriteString(Ellipsis)
	}
	return b.String()
}

// termRunes lowercases terms and orders them longest first so the longest
// match wins at any position.
func termRunes(terms []string) [][]rune {
	out := make([][]rune, 0, len(terms))
	for _, t := range terms {
		if t == "" {
			continue
		}
		r := []rune(t)
		for i := range r {
			r[i] = unicode.ToLower(r[i])
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

// firstMatch returns the position and length of the earliest needle
// occurrence at or after from, or -1.
func firstMatch(hay []rune, needles [][]rune, from int) (int, int) {
	for i := from; i < len(hay); i++ {
		if n := matchAt(hay, needles, i); n > 0 {
			return i, n
		}
	}
	return -1, 0
}

// matchAt returns the length of the longest needle that fits entirely in
// hay at position i, or 0.
func matchAt(hay []rune, needles [][]rune, i int) int {
	for _, needle := range needles {
		if i+len(needle) > len(hay) {
			continue
		}
		match := true
		for j, r := range needle {
			if hay[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return len(needle)
		}
	}
	return 0
}
