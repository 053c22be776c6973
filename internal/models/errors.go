package models

import "fmt"

// AppError is a structured application error with HTTP status code.
type AppError struct {
	Code    string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
}

func (e *AppError) Error() string { return e.Message }

// Is matches any AppError carrying the same code, so callers can use errors.Is
// against the shared sentinels below.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// Error constructors.
var (
	ErrNotFound = func(msg string) *AppError {
		return &AppError{Code: "NOT_FOUND", Message: msg, Status: 404}
	}
	ErrBadRequest = func(msg string) *AppError {
		return &AppError{Code: "BAD_REQUEST", Message: msg, Status: 400}
	}
	ErrInternal = func(msg string) *AppError {
		return &AppError{Code: "INTERNAL", Message: msg, Status: 500}
	}
	ErrConflict = func(msg string) *AppError {
		return &AppError{Code: "CONFLICT", Message: msg, Status: 409}
	}
	ErrIndexOutOfRange = func(index, count int) *AppError {
		return &AppError{Code: "INDEX_OUT_OF_RANGE", Message: indexMessage(index, count), Field: "index", Status: 400}
	}
	ErrResourceExhausted = func(msg string) *AppError {
		return &AppError{Code: "RESOURCE_EXHAUSTED", Message: msg, Status: 507}
	}
	ErrTooLarge = func(msg string) *AppError {
		return &AppError{Code: "TOO_LARGE", Message: msg, Status: 413}
	}
	ErrUnsupportedMedia = func(msg string) *AppError {
		return &AppError{Code: "UNSUPPORTED_MEDIA", Message: msg, Status: 415}
	}

	ErrInvalidCredential = &AppError{Code: "INVALID_CREDENTIAL", Message: "invalid credential", Status: 401}
	ErrLocked            = &AppError{Code: "LOCKED", Message: "controls are locked", Status: 423}
	ErrTooManyAttempts   = &AppError{Code: "TOO_MANY_ATTEMPTS", Message: "too many unlock attempts, try again later", Status: 429}
)

func indexMessage(index, count int) string {
	if count == 0 {
		return "slide collection is empty"
	}
	return fmt.Sprintf("slide index %d out of range [0, %d]", index, count-1)
}
