package campaign

import (
	"errors"
	"fmt"
)

// Store-level sentinels.
var (
	ErrNotFound = errors.New("campaign: not found")
	ErrConflict = errors.New("campaign: already exists")
)

// Kind classifies failures for the single translation boundary in the HTTP
// layer.
type Kind int

const (
	KindInternal Kind = iota
	KindMissingField
	KindUnauthorized
	KindNotFound
	KindInvalid
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindMissingField:
		return "missing_field"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindInvalid:
		return "invalid"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a classified campaign failure. Msg is safe to show to clients.
type Error struct {
	Kind  Kind
	Field string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// MissingField reports a required request field that was absent or empty.
func MissingField(field string) error {
	return &Error{
		Kind:  KindMissingField,
		Field: field,
		Msg:   fmt.Sprintf("Bad Request -- missing field %q", field),
	}
}

func unauthorized(msg string) error {
	return &Error{Kind: KindUnauthorized, Msg: msg}
}

func notFound(msg string, err error) error {
	return &Error{Kind: KindNotFound, Msg: msg, Err: err}
}

// KindOf classifies any error returned by this package or its stores.
func KindOf(err error) Kind {
	var ce *Error
	switch {
	case err == nil:
		return KindInternal
	case errors.As(err, &ce):
		return ce.Kind
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}

// PublicMessage returns the client-facing text for err.
func PublicMessage(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Msg
	}
	switch KindOf(err) {
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "already exists"
	default:
		return "internal error"
	}
}
