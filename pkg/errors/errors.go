// Package errors defines the error taxonomy shared by the index store, the
// query engine and the lifecycle controller, plus the HTTP status mapping used
// by the search handler.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrStorage           = errors.New("index storage failure")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrQuerySyntax       = errors.New("query syntax error")
	ErrResultSetTooLarge = errors.New("result set too large")
	ErrAccessDenied      = errors.New("access denied")
	ErrClosed            = errors.New("index closed")
	ErrNotOpen           = errors.New("index not open")
	ErrInvalidInput      = errors.New("invalid input")
	ErrRejected          = errors.New("task rejected: executor shut down")
)

// AppError attaches a message and an HTTP status to a sentinel.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// ResultSetTooLargeError reports a query whose true match count exceeds the
// configured cap. No partial result accompanies it.
type ResultSetTooLargeError struct {
	Total int
	Limit int
}

func (e *ResultSetTooLargeError) Error() string {
	return fmt.Sprintf("too many (%d) matched results found, limit is %d", e.Total, e.Limit)
}

func (e *ResultSetTooLargeError) Unwrap() error {
	return ErrResultSetTooLarge
}

// QuerySyntaxError reports malformed free-text input. Pos is a byte offset
// into Query, or -1 when the whole input is at fault.
type QuerySyntaxError struct {
	Query string
	Pos   int
	Msg   string
}

func (e *QuerySyntaxError) Error() string {
	if e.Pos < 0 {
		return fmt.Sprintf("cannot parse %q: %s", e.Query, e.Msg)
	}
	return fmt.Sprintf("cannot parse %q at offset %d: %s", e.Query, e.Pos, e.Msg)
}

func (e *QuerySyntaxError) Unwrap() error {
	return ErrQuerySyntax
}

// storageError keeps both ErrStorage and the underlying cause reachable
// through errors.Is.
type storageError struct {
	op  string
	err error
}

func (e *storageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorage.Error(), e.op, e.err)
}

func (e *storageError) Unwrap() []error {
	return []error{ErrStorage, e.err}
}

// Storage wraps an I/O failure against the index backing resource. A nil err
// yields nil. Errors that already carry ErrStorage are returned unchanged.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorage) {
		return err
	}
	return &storageError{op: op, err: err}
}

// IsFatal reports whether err must close the index immediately.
func IsFatal(err error) bool {
	return errors.Is(err, ErrResourceExhausted)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrQuerySyntax), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrResultSetTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrClosed), errors.Is(err, ErrNotOpen), errors.Is(err, ErrResourceExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
