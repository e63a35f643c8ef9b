package chat

import (
	"errors"
)

// Sentinel errors for the chat domain. Callers classify failures with
// errors.Is and map them to transport-level responses. Attachment
// admission failures live in the attach package.
var (
	// ErrValidation covers malformed or empty input. The client should
	// correct the input and resubmit; the operation is never retried as-is.
	ErrValidation = errors.New("invalid input")

	// ErrNotFound covers stale room references. The client should refresh
	// its room list.
	ErrNotFound = errors.New("room not found")

	// ErrConflict covers operations invalid for the room's current
	// lifecycle state, e.g. appending to a closed room or closing twice.
	ErrConflict = errors.New("room lifecycle conflict")

	// ErrSummarization is an external summarizer failure. The room stays
	// closed and the summary can be retried.
	ErrSummarization = errors.New("summarization failure")
)
