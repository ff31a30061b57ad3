package services

import (
	"errors"
	"fmt"
)

// Kind classifies the outcome of a use-case so transports can map it
// without inspecting messages.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindForbidden
	KindConflict
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is a classified use-case failure. Message is safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindInternal
}

// MessageOf returns the client-safe message of a classified error.
func MessageOf(err error) string {
	var svcErr *Error
	if errors.As(err, &svcErr) && svcErr.Kind != KindInternal {
		return svcErr.Message
	}
	return "internal server error"
}

func badRequest(message string) error {
	return &Error{Kind: KindBadRequest, Message: message}
}

func forbidden() error {
	return &Error{Kind: KindForbidden, Message: "forbidden"}
}

func conflict(message string, err error) error {
	return &Error{Kind: KindConflict, Message: message, Err: err}
}

func notFound(message string, err error) error {
	return &Error{Kind: KindNotFound, Message: message, Err: err}
}
