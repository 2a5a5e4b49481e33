package enums

import "fmt"

// DocumentStatus describes where a document sits in the processing pipeline.
type DocumentStatus string

const (
	DocumentStatusUploaded              DocumentStatus = "uploaded"
	DocumentStatusProcessing            DocumentStatus = "processing"
	DocumentStatusOCRProcessing         DocumentStatus = "ocr_processing"
	DocumentStatusTranslationProcessing DocumentStatus = "translation_processing"
	DocumentStatusRebuilding            DocumentStatus = "rebuilding"
	DocumentStatusCompleted             DocumentStatus = "completed"
	DocumentStatusFailed                DocumentStatus = "failed"
)

// statusRank orders the forward path. Failed is terminal but unordered.
var statusRank = map[DocumentStatus]int{
	DocumentStatusUploaded:              0,
	DocumentStatusProcessing:            1,
	DocumentStatusOCRProcessing:         2,
	DocumentStatusTranslationProcessing: 3,
	DocumentStatusRebuilding:            4,
	DocumentStatusCompleted:             5,
}

var validDocumentStatuses = []DocumentStatus{
	DocumentStatusUploaded,
	DocumentStatusProcessing,
	DocumentStatusOCRProcessing,
	DocumentStatusTranslationProcessing,
	DocumentStatusRebuilding,
	DocumentStatusCompleted,
	DocumentStatusFailed,
}

// String returns the literal string for the status.
func (d DocumentStatus) String() string {
	return string(d)
}

// IsValid reports whether the status is known.
func (d DocumentStatus) IsValid() bool {
	for _, candidate := range validDocumentStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (d DocumentStatus) IsTerminal() bool {
	return d == DocumentStatusCompleted || d == DocumentStatusFailed
}

// CanTransitionTo reports whether moving from d to next respects the
// monotonic forward order. Failed is reachable from any non-terminal status.
func (d DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	if d.IsTerminal() {
		return false
	}
	if next == DocumentStatusFailed {
		return true
	}
	from, ok := statusRank[d]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// ParseDocumentStatus converts raw input into a DocumentStatus.
func ParseDocumentStatus(value string) (DocumentStatus, error) {
	for _, candidate := range validDocumentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid document status %q", value)
}
