package ir

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so the batch can decide whether they abort
// one item or the whole run.
type ErrorKind string

const (
	// KindParse covers malformed manifests, field names and archive XML.
	KindParse ErrorKind = "PARSE"

	// KindFilter covers bitstream filter configuration and evaluation.
	KindFilter ErrorKind = "FILTER"

	// KindValidation covers missing files and duplicate bitstreams.
	KindValidation ErrorKind = "VALIDATION"

	// KindResolution covers item and bitstream lookups.
	KindResolution ErrorKind = "RESOLUTION"

	// KindStore covers failures reported by the repository store.
	KindStore ErrorKind = "STORE"

	// KindConfig covers invalid run configuration. Always fatal.
	KindConfig ErrorKind = "CONFIG"
)

// Filter error codes.
const (
	CodeMissingProperty = "MISSING_PROPERTY"
	CodeInvalidProperty = "INVALID_PROPERTY"
	CodeLookupFailed    = "LOOKUP_FAILED"
)

// Error is the typed error returned by every itemupdate package.
type Error struct {
	// Kind is the error category.
	Kind ErrorKind

	// Code refines Kind where callers need to tell causes apart.
	Code string

	// Op names the operation or input that failed.
	Op string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Code != "" {
		prefix += "/" + e.Code
	}
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func NewParseError(op, message string) *Error {
	return &Error{Kind: KindParse, Op: op, Message: message}
}

func NewFilterError(code, op, message string, err error) *Error {
	return &Error{Kind: KindFilter, Code: code, Op: op, Message: message, Err: err}
}

func NewValidationError(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

func NewResolutionError(op, message string, err error) *Error {
	return &Error{Kind: KindResolution, Op: op, Message: message, Err: err}
}

// WrapStoreError tags a repository failure. Nil stays nil.
func WrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindStore, Op: op, Message: "store operation failed", Err: err}
}

func NewConfigError(op, message string, err error) *Error {
	return &Error{Kind: KindConfig, Op: op, Message: message, Err: err}
}
