package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEndsSentence(t *testing.T) {
	tests := []struct {
		word string
		want bool
	}{
		{"theory.", true},
		{"really?", true},
		{"wow!", true},
		{`said."`, true},
		{"(see.)", true},
		{"Dr.", false},
		{"dr.", false},
		{"vs.", false},
		{"approx.", false},
		{"Fig.", false},
		{"Vol.", false},
		{"No.", false},
		{"e.g.", false},
		{"i.e.", false},
		{"(e.g.", false},
		{"J.", false},
		{"word", false},
		{"3.5", false},
		{"wait...", true},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, endsSentence(tt.word), "word %q", tt.word)
	}
}

func TestSplitSentences(t *testing.T) {
	words := strings.Fields("Dr. Smith arrived. See Fig. 3 for details! Is it clear? trailing words")
	got := splitSentences(words)

	assert.Equal(t, [][]string{
		{"Dr.", "Smith", "arrived."},
		{"See", "Fig.", "3", "for", "details!"},
		{"Is", "it", "clear?"},
		{"trailing", "words"},
	}, got)
}
