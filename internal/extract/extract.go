package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

// SegmentSeparator joins segments into the full text consumed by the chunker
// and the synthesis stages.
const SegmentSeparator = "\n\n"

var (
	// ErrUnsupportedFormat is returned for extensions without a loader.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrEmptyDocument is returned when a file yields no text.
	ErrEmptyDocument = errors.New("document contains no extractable text")
)

// Segment is one ordered unit of extracted text, such as a PDF page.
type Segment struct {
	Index    int
	Text     string
	Metadata map[string]any
}

// Document is the result of extracting one file.
type Document struct {
	Path     string
	Format   Format
	Segments []Segment
}

// FullText joins the non-empty segments in order.
func (d *Document) FullText() string {
	parts := make([]string, 0, len(d.Segments))
	for _, s := range d.Segments {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, SegmentSeparator)
}

// Format identifies the loader used for a file.
type Format string

const (
	FormatText Format = "text"
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatCSV  Format = "csv"
)

var extensions = map[string]Format{
	".txt":      FormatText,
	".text":     FormatText,
	".md":       FormatText,
	".markdown": FormatText,
	".log":      FormatText,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".pdf":      FormatPDF,
	".csv":      FormatCSV,
}

// FormatOf reports the format for path's extension.
func FormatOf(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	f, ok := extensions[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return f, nil
}

// SupportedExtensions lists the extensions Extract accepts, sorted.
func SupportedExtensions() []string {
	out := make([]string, 0, len(extensions))
	for ext := range extensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Extractor loads documents from the local filesystem.
type Extractor struct {
	// MaxFileSize rejects larger files when positive.
	MaxFileSize int64
}

// New returns an Extractor with no size limit.
func New() *Extractor {
	return &Extractor{}
}

// Extract reads path and returns its segments.
func (e *Extractor) Extract(ctx context.Context, path string) (*Document, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if e.MaxFileSize > 0 && info.Size() > e.MaxFileSize {
		return nil, fmt.Errorf("%s exceeds max size (%d > %d bytes)", path, info.Size(), e.MaxFileSize)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var loader documentloaders.Loader
	switch format {
	case FormatText:
		loader = documentloaders.NewText(f)
	case FormatHTML:
		loader = documentloaders.NewHTML(f)
	case FormatPDF:
		loader = documentloaders.NewPDF(f, info.Size())
	case FormatCSV:
		loader = documentloaders.NewCSV(f)
	}

	docs, err := loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s as %s: %w", path, format, err)
	}

	doc := &Document{Path: path, Format: format, Segments: toSegments(docs)}
	if strings.TrimSpace(doc.FullText()) == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDocument, path)
	}
	return doc, nil
}

func toSegments(docs []schema.Document) []Segment {
	segments := make([]Segment, 0, len(docs))
	for i, d := range docs {
		segments = append(segments, Segment{
			Index:    i,
			Text:     d.PageContent,
			Metadata: d.Metadata,
		})
	}
	return segments
}
