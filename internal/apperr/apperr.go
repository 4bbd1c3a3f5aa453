package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for boundary translation. Handlers map kinds to
// HTTP statuses; everything below the handlers only wraps and annotates.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindConfiguration
	KindUpstream
	KindStorage
)

type Error struct {
	Kind Kind
	Msg  string
	// Status carries the upstream HTTP status for KindUpstream errors.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error without a wrapped cause.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap annotates err with a kind and message.
func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Upstream records a non-success response from an LLM provider, keeping the
// provider's status code and body for the caller.
func Upstream(status int, body string) error {
	return &Error{Kind: KindUpstream, Msg: body, Status: status}
}

// KindOf extracts the kind from anywhere in the wrap chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// HTTPStatus translates an error into the status a handler should answer
// with. Upstream errors mirror the provider status when one was captured.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUpstream:
		if e.Status >= 400 {
			return e.Status
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
