package attach

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedType and ErrTooLarge are per-file admission
	// failures. The client should drop or replace the offending file.
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")

	// ErrStorage wraps object-store failures. Safe to retry.
	ErrStorage = errors.New("storage failure")
)

// FileError reports a single file's admission failure by name so a
// client can retry only the files that were rejected.
type FileError struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
	Err      error  `json:"-"`
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %s", e.Filename, e.Reason)
}

func (e FileError) Unwrap() error {
	return e.Err
}

// BatchError aggregates per-file failures. A batch with any failure
// admits nothing.
type BatchError struct {
	Files []FileError
}

func (e *BatchError) Error() string {
	msgs := make([]string, len(e.Files))
	for i, fe := range e.Files {
		msgs[i] = fe.Error()
	}
	return "attachment admission failed: " + strings.Join(msgs, "; ")
}

// Unwrap exposes the individual file errors so errors.Is matches the
// underlying sentinels.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Files))
	for i, fe := range e.Files {
		errs[i] = fe
	}
	return errs
}
