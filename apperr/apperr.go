// Package apperr classifies failures crossing package boundaries so the HTTP
// layer and the retry policy can act on them without string matching.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindStoreIO        Kind = "store_io"
	KindLLMUnavailable Kind = "llm_unavailable"
	KindInternal       Kind = "internal"
)

// Error carries a Kind alongside the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so callers can write
// errors.Is(err, apperr.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
)

func Validation(op, msg string) error { return &Error{Kind: KindValidation, Op: op, Msg: msg} }

func NotFound(op, msg string) error { return &Error{Kind: KindNotFound, Op: op, Msg: msg} }

// StoreIO wraps an event-store or side-store failure. A nil err stays nil.
func StoreIO(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindStoreIO, Op: op, Err: err}
}

// LLMUnavailable wraps a gateway failure. A nil err stays nil.
func LLMUnavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindLLMUnavailable, Op: op, Err: err}
}

// KindOf returns the kind attached to err, or KindInternal for unclassified
// errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Retryable reports whether the caller-facing layer should retry once.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindStoreIO, KindInternal:
		return true
	}
	return false
}

// HTTPStatus maps a kind to the response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindStoreIO:
		return http.StatusServiceUnavailable
	case KindLLMUnavailable:
		return http.StatusOK
	}
	return http.StatusInternalServerError
}

// Message returns the user-facing part of err.
func Message(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		if ae.Msg != "" {
			return ae.Msg
		}
		if ae.Kind == KindStoreIO {
			return "event store unavailable, retry shortly"
		}
	}
	if KindOf(err) == KindInternal {
		return "internal error"
	}
	return err.Error()
}
