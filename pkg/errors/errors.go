// Package errors defines the typed error kinds surfaced by the cache core.
//
// Only Kind InvalidArgument and Kind ValueAccessOnMiss are meant to escape
// the engine as real errors returned to callers; the other kinds are
// recorded in metrics/logs and converted to a Miss/Hit/Stale result instead.
package errors

import "fmt"

// Kind categorizes a CacheError.
type Kind string

const (
	// InvalidArgument covers empty key segments, malformed key strings, and
	// policies outside their documented bounds.
	InvalidArgument Kind = "INVALID_ARGUMENT"
	// LoaderFailed means the application-supplied loader returned an error.
	LoaderFailed Kind = "LOADER_FAILED"
	// StoreUnavailable means the remote store failed at a non-recoverable layer.
	StoreUnavailable Kind = "STORE_UNAVAILABLE"
	// LockTimeout means a per-key lock could not be acquired within policy.
	LockTimeout Kind = "LOCK_TIMEOUT"
	// ValueAccessOnMiss means Value() was called on a Miss ValueResult.
	ValueAccessOnMiss Kind = "VALUE_ACCESS_ON_MISS"
)

// CacheError is the single concrete error type produced by this module.
type CacheError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *CacheError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is and errors.As to see through to the cause.
func (e *CacheError) Unwrap() error {
	return e.Err
}

// New creates a CacheError of the given kind with no wrapped cause.
func New(kind Kind, message string) error {
	return &CacheError{Kind: kind, Message: message}
}

// Wrap creates a CacheError of the given kind wrapping err.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &CacheError{Kind: kind, Message: message, Err: err}
}

// NewInvalidArgument creates an InvalidArgument error.
func NewInvalidArgument(message string) error {
	return New(InvalidArgument, message)
}

// NewValueAccessOnMiss creates a ValueAccessOnMiss error.
func NewValueAccessOnMiss(message string) error {
	return New(ValueAccessOnMiss, message)
}

// Is reports whether err is a *CacheError of the given kind.
func Is(err error, kind Kind) bool {
	ce, ok := err.(*CacheError)
	return ok && ce.Kind == kind
}

// IsInvalidArgument reports whether err is an InvalidArgument CacheError.
func IsInvalidArgument(err error) bool { return Is(err, InvalidArgument) }

// IsLoaderFailed reports whether err is a LoaderFailed CacheError.
func IsLoaderFailed(err error) bool { return Is(err, LoaderFailed) }

// IsStoreUnavailable reports whether err is a StoreUnavailable CacheError.
func IsStoreUnavailable(err error) bool { return Is(err, StoreUnavailable) }

// IsLockTimeout reports whether err is a LockTimeout CacheError.
func IsLockTimeout(err error) bool { return Is(err, LockTimeout) }

// IsValueAccessOnMiss reports whether err is a ValueAccessOnMiss CacheError.
func IsValueAccessOnMiss(err error) bool { return Is(err, ValueAccessOnMiss) }
