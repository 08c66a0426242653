package indexer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"gopkg.in/yaml.v3"

	"github.com/dshills/studysearch/internal/chunker"
)

// ErrUnsupportedFormat is returned for files the loader cannot read.
var ErrUnsupportedFormat = errors.New("unsupported file format")

var frontMatterDelim = []byte("---")

// FrontMatter is the optional YAML header of a text or markdown lecture.
type FrontMatter struct {
	Title       string         `yaml:"title"`
	Description string         `yaml:"description"`
	Category    string         `yaml:"category"`
	Course      string         `yaml:"course"`
	CourseName  string         `yaml:"course_name"`
	PublishedAt *time.Time     `yaml:"published_at"`
	Concepts    []ConceptInput `yaml:"concepts"`
}

// Document is a loaded lecture file.
type Document struct {
	Pages []chunker.Page
	Meta  FrontMatter
}

// Supported reports whether path has an extension LoadPages can read.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown", ".pdf":
		return true
	}
	return false
}

// LoadPages reads a lecture file. Text and markdown files are a single
// unnumbered page; PDFs yield one numbered page per non-empty page.
func LoadPages(ctx context.Context, path string) (*Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown":
		return loadText(path)
	case ".pdf":
		return loadPDF(ctx, path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func loadText(path string) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	doc := &Document{}
	body, err := splitFrontMatter(content, &doc.Meta)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	doc.Pages = []chunker.Page{{Text: string(body)}}
	return doc, nil
}

// splitFrontMatter decodes a leading "---" delimited YAML block into meta
// and returns the remaining body. Content without a header is returned as is.
func splitFrontMatter(content []byte, meta *FrontMatter) ([]byte, error) {
	trimmed := bytes.TrimLeft(content, "\uFEFF")
	if !bytes.HasPrefix(trimmed, frontMatterDelim) {
		return content, nil
	}

	rest := trimmed[len(frontMatterDelim):]
	nl := bytes.IndexByte(rest, '\n')
	if nl < 0 || len(bytes.TrimSpace(rest[:nl])) != 0 {
		return content, nil
	}
	rest = rest[nl+1:]

	end := bytes.Index(rest, append([]byte("\n"), frontMatterDelim...))
	var header, body []byte
	switch {
	case bytes.HasPrefix(rest, frontMatterDelim):
		header, body = nil, rest[len(frontMatterDelim):]
	case end >= 0:
		header, body = rest[:end], rest[end+1+len(frontMatterDelim):]
	default:
		return content, nil
	}

	if err := yaml.Unmarshal(header, meta); err != nil {
		return nil, fmt.Errorf("invalid front matter: %w", err)
	}
	return body, nil
}

func loadPDF(ctx context.Context, path string) (*Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat PDF file: %w", err)
	}

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to parse PDF: %w", err)
	}

	doc := &Document{}
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p := reader.Page(pageNum)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract page %d: %w", pageNum, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		doc.Pages = append(doc.Pages, chunker.Page{Number: &pageNum, Text: text})
	}
	return doc, nil
}
