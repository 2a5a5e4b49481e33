package pipeline

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// LayoutDescriptor captures the structural hints the rebuilder needs to
// reproduce the document shape.
type LayoutDescriptor struct {
	Format string `json:"format"`
	Pages  int    `json:"pages"`
}

// Extraction is the OCR stage result.
type Extraction struct {
	Text       string
	Language   string
	Confidence float64
	Layout     LayoutDescriptor
}

// Extractor turns raw document bytes into text. Implementations are
// per-deployment collaborators; StubExtractor is the default.
type Extractor interface {
	Extract(ctx context.Context, data []byte, kind Kind) (*Extraction, error)
}

// StubExtractor is the trivial extractor: plain text is echoed through,
// binary formats yield synthesized placeholder text.
type StubExtractor struct{}

func (StubExtractor) Extract(ctx context.Context, data []byte, kind Kind) (*Extraction, error) {
	switch kind {
	case KindPlainText:
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("plain text payload is not valid UTF-8")
		}
		text := string(data)
		return &Extraction{
			Text:       text,
			Language:   detectLanguage(text),
			Confidence: 0.95,
			Layout:     LayoutDescriptor{Format: KindPlainText.String(), Pages: 1},
		}, nil

	case KindPDF:
		return &Extraction{
			Text:       fmt.Sprintf("Extracted text from PDF document (%d bytes)", len(data)),
			Language:   "en",
			Confidence: 0.85,
			Layout:     LayoutDescriptor{Format: KindPDF.String(), Pages: estimatePages(len(data))},
		}, nil

	case KindWord:
		return &Extraction{
			Text:       fmt.Sprintf("Extracted text from Word document (%d bytes)", len(data)),
			Language:   "en",
			Confidence: 0.80,
			Layout:     LayoutDescriptor{Format: KindWord.String(), Pages: estimatePages(len(data))},
		}, nil

	default:
		return nil, fmt.Errorf("no extractor for kind %s", kind)
	}
}

// detectLanguage is a placeholder heuristic; real deployments plug in a
// provider-backed extractor.
func detectLanguage(text string) string {
	if strings.TrimSpace(text) == "" {
		return "und"
	}
	return "en"
}

func estimatePages(size int) int {
	const bytesPerPage = 3000
	pages := size / bytesPerPage
	if pages < 1 {
		return 1
	}
	return pages
}
