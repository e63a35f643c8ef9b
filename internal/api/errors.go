package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/paperhub/course-chat/internal/attach"
	"github.com/paperhub/course-chat/internal/chat"
)

type ApiError struct {
	StatusCode int                `json:"status_code"`
	Message    string             `json:"message"`
	Files      []attach.FileError `json:"files,omitempty"`
	Err        error              `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func NewBadRequestError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    lower(http.StatusText(http.StatusBadRequest)),
	}
}

func NewNotFoundError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Message:    lower(http.StatusText(http.StatusNotFound)),
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

func NewUnauthorizedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnauthorized,
		Message:    lower(http.StatusText(http.StatusUnauthorized)),
	}
}

func NewServiceUnavailableError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusServiceUnavailable,
		Message:    lower(http.StatusText(http.StatusServiceUnavailable)),
		Err:        err,
	}
}

func NewMethodNotAllowedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusMethodNotAllowed,
		Message:    lower(http.StatusText(http.StatusMethodNotAllowed)),
	}
}

// NewDomainError maps a chat/attach domain failure to its HTTP shape.
// Validation and conflict errors keep their message so clients can
// render it inline; admission batch failures carry the per-file list so
// only the rejected files need resubmitting.
func NewDomainError(err error) *ApiError {
	var batchErr *attach.BatchError
	if errors.As(err, &batchErr) {
		status := http.StatusBadRequest
		switch {
		case allFilesAre(batchErr, attach.ErrTooLarge):
			status = http.StatusRequestEntityTooLarge
		case allFilesAre(batchErr, attach.ErrUnsupportedType):
			status = http.StatusUnsupportedMediaType
		case allFilesAre(batchErr, attach.ErrStorage):
			status = http.StatusBadGateway
		}
		return &ApiError{
			StatusCode: status,
			Message:    "attachment admission failed",
			Files:      batchErr.Files,
			Err:        err,
		}
	}

	switch {
	case errors.Is(err, chat.ErrValidation):
		return &ApiError{StatusCode: http.StatusBadRequest, Message: err.Error(), Err: err}
	case errors.Is(err, chat.ErrNotFound):
		return &ApiError{StatusCode: http.StatusNotFound, Message: err.Error(), Err: err}
	case errors.Is(err, chat.ErrConflict):
		return &ApiError{StatusCode: http.StatusConflict, Message: err.Error(), Err: err}
	case errors.Is(err, attach.ErrTooLarge):
		return &ApiError{StatusCode: http.StatusRequestEntityTooLarge, Message: err.Error(), Err: err}
	case errors.Is(err, attach.ErrUnsupportedType):
		return &ApiError{StatusCode: http.StatusUnsupportedMediaType, Message: err.Error(), Err: err}
	case errors.Is(err, attach.ErrStorage), errors.Is(err, chat.ErrSummarization):
		// external-dependency failures: retryable, distinct from
		// validation so clients offer a retry action
		return &ApiError{StatusCode: http.StatusBadGateway, Message: err.Error(), Err: err}
	default:
		return NewInternalServerError(err)
	}
}

func allFilesAre(batchErr *attach.BatchError, sentinel error) bool {
	for _, fe := range batchErr.Files {
		if !errors.Is(fe, sentinel) {
			return false
		}
	}
	return len(batchErr.Files) > 0
}
