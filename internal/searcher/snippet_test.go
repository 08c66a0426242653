package searcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTerms(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"stop words and short terms", "What is the Cardiac output of the heart?", []string{"cardiac", "output", "heart"}},
		{"duplicates keep first", "valve VALVE Valve mitral", []string{"valve", "mitral"}},
		{"punctuation splits", "stroke-volume/heart_rate", []string{"stroke", "volume", "heart", "rate"}},
		{"digits kept", "ECG 12-lead", []string{"ecg", "lead"}},
		{"only stop words", "what is it to be", []string{}},
		{"unicode letters", "Über Ärzte", []string{"über", "ärzte"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTerms(tt.query))
		})
	}
}

func TestGenerateSnippetHighlightsTerms(t *testing.T) {
	got := GenerateSnippet("Cardiac output rises during exercise. Cardiac reserve matters.", []string{"cardiac"}, 200)
	assert.Equal(t, "<mark>Cardiac</mark> output rises during exercise. <mark>Cardiac</mark> reserve matters.", got)
}

func TestGenerateSnippetWithoutMatchUsesLeadingWindow(t *testing.T) {
	content := strings.Repeat("systole ", 40)
	got := GenerateSnippet(content, []string{"cardiac"}, 200)

	assert.NotContains(t, got, HighlightOpen)
	assert.True(t, strings.HasPrefix(got, "systole systole"))
	assert.True(t, strings.HasSuffix(got, Ellipsis))
	assert.Equal(t, 200+len(Ellipsis), len([]rune(got)))
}

func TestGenerateSnippetCentersOnFirstMatch(t *testing.T) {
	content := strings.Repeat("a", 300) + " mitral " + strings.Repeat("b", 300)
	got := GenerateSnippet(content, []string{"mitral"}, 100)

	assert.True(t, strings.HasPrefix(got, Ellipsis))
	assert.True(t, strings.HasSuffix(got, Ellipsis))
	assert.Contains(t, got, "<mark>mitral</mark>")

	inner := strings.TrimSuffix(strings.TrimPrefix(got, Ellipsis), Ellipsis)
	plain := strings.NewReplacer(HighlightOpen, "", HighlightClose, "").Replace(inner)
	assert.Len(t, []rune(plain), 100)

	idx := strings.Index(plain, "mitral")
	assert.InDelta(t, 50, idx+3, 2, "match sits in the middle of the window")
}

func TestGenerateSnippetAtContentEnd(t *testing.T) {
	content := strings.Repeat("x", 250) + " valve"
	got := GenerateSnippet(content, []string{"valve"}, 100)

	assert.True(t, strings.HasPrefix(got, Ellipsis))
	assert.True(t, strings.HasSuffix(got, "<mark>valve</mark>"))
}

func TestGenerateSnippetEdgeCases(t *testing.T) {
	assert.Equal(t, "", GenerateSnippet("", []string{"x"}, 200))
	assert.Equal(t, "short text", GenerateSnippet("short text", nil, 200))
	assert.Equal(t, "<mark>ÉCHO</mark> cardio", GenerateSnippet("ÉCHO cardio", []string{"écho"}, 200))
	assert.Equal(t, "<mark>heartbeat</mark>", GenerateSnippet("heartbeat", []string{"heart", "heartbeat"}, 200), "longest term wins")
}
