package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure by its blast radius.
type ErrorKind string

const (
	// Feed-level kinds abort the whole import before any product is touched.
	KindFetchTimeout    ErrorKind = "FetchTimeout"
	KindFetchFailed     ErrorKind = "FetchFailed"
	KindNetworkError    ErrorKind = "NetworkError"
	KindMalformedFeed   ErrorKind = "MalformedFeed"
	KindUnexpectedShape ErrorKind = "UnexpectedShape"

	// KindMappingError skips a single record.
	KindMappingError ErrorKind = "MappingError"

	// Provider kinds degrade one enrichment stage to its fallback value.
	KindProviderCallFailed          ErrorKind = "ProviderCallFailed"
	KindProviderResponseUnparseable ErrorKind = "ProviderResponseUnparseable"

	// KindCategoryCreateConflict drops the category assignment of one product.
	KindCategoryCreateConflict ErrorKind = "CategoryCreateConflict"

	// KindUpsertFailed is counted per product.
	KindUpsertFailed ErrorKind = "UpsertFailed"
)

// Fatal reports whether a failure of this kind aborts the whole import.
func (k ErrorKind) Fatal() bool {
	switch k {
	case KindFetchTimeout, KindFetchFailed, KindNetworkError, KindMalformedFeed, KindUnexpectedShape:
		return true
	default:
		return false
	}
}

// Error is a typed pipeline error.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a typed error for the given operation.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first typed error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// IsKind reports whether err carries a typed error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
