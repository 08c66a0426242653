package indexer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitFrontMatter(t *testing.T) {
	tests := []struct {
		name    string
		content string
		body    string
		title   string
		wantErr bool
	}{
		{"no header", "plain body", "plain body", "", false},
		{"header", "---\ntitle: Heart\n---\nbody", "\nbody", "Heart", false},
		{"byte order mark", "\uFEFF---\ntitle: Heart\n---\nbody", "\nbody", "Heart", false},
		{"empty header", "---\n---\nbody", "\nbody", "", false},
		{"unterminated", "---\ntitle: Heart\nbody", "---\ntitle: Heart\nbody", "", false},
		{"rule not header", "--- not yaml\nbody", "--- not yaml\nbody", "", false},
		{"invalid yaml", "---\ntitle: [oops\n---\nbody", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var meta FrontMatter
			body, err := splitFrontMatter([]byte(tt.content), &meta)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.body, string(body))
			assert.Equal(t, tt.title, meta.Title)
		})
	}
}

func TestLoadPagesText(t *testing.T) {
	dir := t.TempDir()
	path := createTestFile(t, dir, "notes.md", "---\nconcepts:\n  - name: Valve\n    definition: One-way gate\n---\nThe valves.")

	doc, err := LoadPages(context.Background(), path)
	require.NoError(t, err)

	require.Len(t, doc.Pages, 1)
	assert.Nil(t, doc.Pages[0].Number)
	assert.Equal(t, "\nThe valves.", doc.Pages[0].Text)
	assert.Equal(t, []ConceptInput{{Name: "Valve", Definition: "One-way gate"}}, doc.Meta.Concepts)
}

func TestLoadPagesRejectsUnknownFormat(t *testing.T) {
	path := createTestFile(t, t.TempDir(), "slides.pptx", "x")

	_, err := LoadPages(context.Background(), path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoadPagesInvalidPDF(t *testing.T) {
	path := createTestFile(t, t.TempDir(), "broken.pdf", "not a pdf")

	_, err := LoadPages(context.Background(), path)
	assert.Error(t, err)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("a.md"))
	assert.True(t, Supported("a.MARKDOWN"))
	assert.True(t, Supported("a.txt"))
	assert.True(t, Supported("a.pdf"))
	assert.False(t, Supported("a.docx"))
	assert.False(t, Supported("README"))
}
