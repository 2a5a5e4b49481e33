package pipeline

import "strings"

// Kind is the tagged media variant the pipeline dispatches on. It is resolved
// from the declared MIME type once at pipeline entry; stages never re-match
// the raw string.
type Kind int

const (
	KindUnsupported Kind = iota
	KindPlainText
	KindPDF
	KindWord
)

const (
	MimePlainText = "text/plain"
	MimePDF       = "application/pdf"
	MimeWord      = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// ResolveKind maps a declared MIME type to a Kind by exact match. Anything
// unrecognized is KindUnsupported; the pipeline refuses to guess.
func ResolveKind(mimeType string) Kind {
	switch strings.TrimSpace(mimeType) {
	case MimePlainText:
		return KindPlainText
	case MimePDF:
		return KindPDF
	case MimeWord:
		return KindWord
	default:
		return KindUnsupported
	}
}

func (k Kind) String() string {
	switch k {
	case KindPlainText:
		return "plain_text"
	case KindPDF:
		return "pdf"
	case KindWord:
		return "word"
	default:
		return "unsupported"
	}
}
