package utils

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	ErrorKindNotFound       ErrorKind = "NOT_FOUND"
	ErrorKindInvalidRequest ErrorKind = "INVALID_REQUEST"
	ErrorKindForbidden      ErrorKind = "FORBIDDEN"
	ErrorKindConflict       ErrorKind = "CONFLICT"
	ErrorKindInternal       ErrorKind = "INTERNAL"
)

var ErrorRecordNotFound = NotFound("record not found")

// AppError is the error every service operation returns for an expected failure.
// Anything else reaching the HTTP layer is reported as internal.
type AppError struct {
	Kind    ErrorKind `json:"code"`
	Message string    `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

// Is matches on kind, so errors.Is(err, ErrorRecordNotFound) holds for any NotFound.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func NotFound(format string, args ...any) error {
	return &AppError{Kind: ErrorKindNotFound, Message: fmt.Sprintf(format, args...)}
}

func InvalidRequest(format string, args ...any) error {
	return &AppError{Kind: ErrorKindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) error {
	return &AppError{Kind: ErrorKindForbidden, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) error {
	return &AppError{Kind: ErrorKindConflict, Message: fmt.Sprintf(format, args...)}
}

func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ErrorKindInternal
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case ErrorKindNotFound:
		return http.StatusNotFound
	case ErrorKindInvalidRequest:
		return http.StatusBadRequest
	case ErrorKindForbidden:
		return http.StatusForbidden
	case ErrorKindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
