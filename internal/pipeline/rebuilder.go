package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// Rebuilder turns translated text back into output bytes shaped for the
// original media kind. Returns the bytes and their content type.
type Rebuilder interface {
	Rebuild(ctx context.Context, translated string, kind Kind, layout LayoutDescriptor) ([]byte, string, error)
}

// StubRebuilder wraps translated text in a minimal per-kind envelope. Real
// deployments plug in format-preserving rebuilders.
type StubRebuilder struct{}

func (StubRebuilder) Rebuild(ctx context.Context, translated string, kind Kind, layout LayoutDescriptor) ([]byte, string, error) {
	switch kind {
	case KindPlainText:
		return []byte(translated), MimePlainText, nil

	case KindPDF:
		var b strings.Builder
		fmt.Fprintf(&b, "%%PDF-TRANSLATED pages=%d\n", layout.Pages)
		b.WriteString(translated)
		b.WriteString("\n%%EOF\n")
		return []byte(b.String()), MimePDF, nil

	case KindWord:
		var b strings.Builder
		fmt.Fprintf(&b, "<document pages=%q>\n", fmt.Sprint(layout.Pages))
		b.WriteString(translated)
		b.WriteString("\n</document>\n")
		return []byte(b.String()), MimeWord, nil

	default:
		return nil, "", fmt.Errorf("no rebuilder for kind %s", kind)
	}
}
