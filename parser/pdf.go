package parser

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFParser reads page text and metadata from PDF files.
type PDFParser struct{}

func (p *PDFParser) SupportedFormats() []string { return []string{"pdf"} }

func (p *PDFParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	totalPages := reader.NumPage()
	pages := make([]string, 0, totalPages)

	for i := 1; i <= totalPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}

		text, err := extractPageTextOrdered(page)
		if err != nil {
			pages = append(pages, "")
			continue
		}

		pages = append(pages, filterASCII(text))
	}

	return &ParseResult{
		Pages:    pages,
		Metadata: readMetadata(reader, totalPages),
	}, nil
}

// readMetadata pulls the standard Info dictionary fields out of the PDF
// trailer. Any field absent from the document is left empty.
func readMetadata(reader *pdf.Reader, pageCount int) Metadata {
	m := Metadata{PageCount: pageCount}

	info := reader.Trailer().Key("Info")
	if info.IsNull() {
		return m
	}

	m.Title = info.Key("Title").RawString()
	m.Author = info.Key("Author").RawString()
	m.Subject = info.Key("Subject").RawString()
	m.Keywords = info.Key("Keywords").RawString()
	m.Creator = info.Key("Creator").RawString()
	m.Producer = info.Key("Producer").RawString()
	return m
}

// filterASCII drops any byte at or above 128, matching the source
// system's ASCII-only text model. Multi-byte UTF-8 sequences are not
// reassembled; this is a known limitation, not a bug.
func filterASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] < 128 {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// extractPageTextOrdered extracts text from a PDF page sorted by visual
// position (top-to-bottom, left-to-right). The default GetPlainText reads
// text in PDF object order which can differ from visual layout — headings
// may appear after the body text they label.
//
// This function groups Content() elements into visual lines by Y proximity
// (preserving the content-stream order within each line — which GetPlainText
// relies on for correct character sequencing), then sorts the lines by Y so
// the result follows top-to-bottom reading order.
func extractPageTextOrdered(page pdf.Page) (string, error) {
	content := page.Content()
	if len(content.Text) == 0 {
		return page.GetPlainText(nil)
	}

	// Group consecutive text elements into visual lines by Y proximity.
	// We preserve the content-stream order within each line — sorting by X
	// would garble text because some PDFs use negative text matrices.
	const lineTolerance = 3.0

	type visualLine struct {
		y   float64 // representative Y (from first element)
		buf strings.Builder
	}

	var lines []*visualLine
	var cur *visualLine

	for _, t := range content.Text {
		if cur == nil || math.Abs(t.Y-cur.y) > lineTolerance {
			lines = append(lines, &visualLine{y: t.Y})
			cur = lines[len(lines)-1]
		}
		cur.buf.WriteString(t.S)
	}

	// Sort lines by Y descending — higher Y = higher on the page in PDF
	// coordinates (origin at bottom-left).
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].y > lines[j].y
	})

	// Build the result.
	var parts []string
	for _, l := range lines {
		text := strings.TrimSpace(l.buf.String())
		if text != "" {
			parts = append(parts, text)
		}
	}

	result := strings.Join(parts, "\n")
	if strings.TrimSpace(result) == "" {
		return page.GetPlainText(nil)
	}

	return result, nil
}
