// Package parser extracts page text and document metadata from source
// files. Only PDF is supported; anything beyond page text and metadata
// (images, layout, headings) is out of scope for the corpus engine.
package parser

import "context"

// Metadata holds document-level properties read from a PDF's info
// dictionary. Any field the PDF doesn't set is left as the empty string.
type Metadata struct {
	Title     string
	Author    string
	Subject   string
	Keywords  string
	Creator   string
	Producer  string
	PageCount int
}

// ParseResult is what a parser produces from a document file: one ASCII-
// filtered text string per page, in page order, plus document metadata.
type ParseResult struct {
	Pages    []string
	Metadata Metadata
}

// Parser can parse a specific document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParseResult, error)
	SupportedFormats() []string
}
