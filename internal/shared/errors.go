package shared

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure so transports can pick a status code.
type Kind uint8

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindBadRequest
	KindUnauthorized
	KindForbidden
)

var (
	// ErrNotFound indicates a referenced record is absent.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = errors.New("conflict")
	// ErrBadRequest indicates validation or business-rule failure.
	ErrBadRequest = errors.New("bad request")
	// ErrUnauthorized indicates missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates an authenticated caller lacks access.
	ErrForbidden = errors.New("forbidden")
)

// Error carries a kind and a stable user-visible message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func (k Kind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindBadRequest:
		return ErrBadRequest
	case KindUnauthorized:
		return ErrUnauthorized
	case KindForbidden:
		return ErrForbidden
	default:
		return nil
	}
}

func newError(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a KindNotFound error.
func NotFound(format string, args ...any) error { return newError(KindNotFound, format, args...) }

// Conflict builds a KindConflict error.
func Conflict(format string, args ...any) error { return newError(KindConflict, format, args...) }

// BadRequest builds a KindBadRequest error.
func BadRequest(format string, args ...any) error { return newError(KindBadRequest, format, args...) }

// Unauthorized builds a KindUnauthorized error.
func Unauthorized(format string, args ...any) error {
	return newError(KindUnauthorized, format, args...)
}

// Forbidden builds a KindForbidden error.
func Forbidden(format string, args ...any) error { return newError(KindForbidden, format, args...) }

// WithCause attaches an underlying error to a kinded error without changing its message.
func WithCause(err, cause error) error {
	var e *Error
	if errors.As(err, &e) {
		return &Error{Kind: e.Kind, Message: e.Message, Err: cause}
	}
	return err
}

// KindOf extracts the kind of err, KindInternal when err is not a domain error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
