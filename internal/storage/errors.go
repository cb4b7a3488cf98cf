package storage

import (
	"errors"
	"fmt"
)

// Kind classifies failures surfaced by the store and the access layer.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindHashing
	KindResourceExhausted
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindHashing:
		return "hashing"
	case KindResourceExhausted:
		return "resource_exhausted"
	default:
		return "unknown"
	}
}

// ErrValidation indicates malformed caller input.
var ErrValidation = errors.New("validation failed")

// ErrConflict indicates a uniqueness conflict.
var ErrConflict = errors.New("record already exists")

// ErrNotFound indicates a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrHashing indicates the password could not be hashed.
var ErrHashing = errors.New("password hashing failed")

// ErrResourceExhausted indicates the pool or the database could not serve the call in time.
var ErrResourceExhausted = errors.New("resource exhausted")

var sentinels = map[Kind]error{
	KindValidation:        ErrValidation,
	KindConflict:          ErrConflict,
	KindNotFound:          ErrNotFound,
	KindHashing:           ErrHashing,
	KindResourceExhausted: ErrResourceExhausted,
}

// Error carries a failure kind, the operation that produced it and the cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// NewError builds an *Error. A nil cause falls back to the kind's sentinel.
func NewError(kind Kind, op string, err error) *Error {
	if err == nil {
		err = sentinels[kind]
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrConflict) match any *Error of KindConflict.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// KindOf reports the kind of err, looking through wrapping.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for kind, s := range sentinels {
		if errors.Is(err, s) {
			return kind
		}
	}
	return KindUnknown
}
