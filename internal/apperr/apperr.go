// Package apperr defines the error taxonomy shared by the ingestion engine
// and its callers.
//
// Every failure surfaced to a caller carries a Kind, a stable machine code,
// a human-readable message and, where one exists, a suggested remedy. The
// tool bridge and the CLI render these without knowing which component
// produced them.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error. Kinds are compared with errors.Is.
type Kind string

const (
	MalformedInput      Kind = "MALFORMED_INPUT"
	UnrecognizedSchema  Kind = "UNRECOGNIZED_SCHEMA"
	DuplicateNodeID     Kind = "DUPLICATE_NODE_ID"
	NodeNotFound        Kind = "NODE_NOT_FOUND"
	TagNotFound         Kind = "TAG_NOT_FOUND"
	SectionNotFound     Kind = "SECTION_NOT_FOUND"
	CircularInheritance Kind = "CIRCULAR_INHERITANCE"
	BackupFailed        Kind = "BACKUP_FAILED"
	SourceWriteFailed   Kind = "SOURCE_WRITE_FAILED"
	SourceNotFound      Kind = "SOURCE_NOT_FOUND"
	InvalidRequest      Kind = "INVALID_REQUEST"

	// CacheMiss never leaves the cache package; a miss is always resolved
	// by a reparse.
	CacheMiss Kind = "CACHE_MISS"
)

// Error is a typed failure with enough context for a caller to act on it.
type Error struct {
	Kind    Kind
	Message string
	Remedy  string
	Details map[string]any
	Cause   error
}

// New creates an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Code returns the stable machine-readable code.
func (e *Error) Code() string { return string(e.Kind) }

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same kind, or a bare Kind.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case *Error:
		return e.Kind == t.Kind
	case Kind:
		return e.Kind == t
	}
	return false
}

// Error lets a Kind be used directly as an errors.Is target.
func (k Kind) Error() string { return string(k) }

// WithRemedy sets the suggested remedy.
func (e *Error) WithRemedy(format string, args ...any) *Error {
	e.Remedy = fmt.Sprintf(format, args...)
	return e
}

// WithDetail attaches a key/value detail.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// KindOf extracts the Kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return ""
}

// As returns the *Error inside err, if any.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// Format renders err as "[CODE] message — remedy" for user-facing output.
func Format(err error) string {
	ae, ok := As(err)
	if !ok {
		return err.Error()
	}
	msg := fmt.Sprintf("[%s] %s", ae.Kind, ae.Message)
	if ae.Cause != nil {
		msg += fmt.Sprintf(": %v", ae.Cause)
	}
	if ae.Remedy != "" {
		msg += " — " + ae.Remedy
	}
	return msg
}
