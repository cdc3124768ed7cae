package sync

import (
	"errors"
	"fmt"
)

// Class buckets a sync failure into the handling categories the engine
// distinguishes: retry later, warn, alert, or abort the pass.
type Class int

const (
	// ClassTransient covers network timeouts and temporary remote
	// unavailability. The record stays pending and is retried on the next
	// trigger.
	ClassTransient Class = iota
	// ClassPermission covers authorization failures from the remote store.
	// The record stays pending; local data remains valid and usable.
	ClassPermission
	// ClassIntegrity covers owner-scope violations. The record is dropped
	// from the batch and never persisted.
	ClassIntegrity
	// ClassLocal covers record-store failures. Fatal to the current pass;
	// the caller must not assume partial state was committed.
	ClassLocal
)

// String names the class for logs and outcome reports.
func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermission:
		return "permission"
	case ClassIntegrity:
		return "integrity"
	case ClassLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Error is the typed failure every engine operation returns. It carries the
// handling class, the operation that failed, and the underlying cause.
type Error struct {
	Class Class
	Op    string
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Class)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Class, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps a cause as a retryable remote failure.
func Transient(op string, cause error) *Error {
	return &Error{Class: ClassTransient, Op: op, Err: cause}
}

// Permission wraps a cause as a remote authorization failure.
func Permission(op string, cause error) *Error {
	return &Error{Class: ClassPermission, Op: op, Err: cause}
}

// Integrity wraps a cause as an owner-scope violation.
func Integrity(op string, cause error) *Error {
	return &Error{Class: ClassIntegrity, Op: op, Err: cause}
}

// Local wraps a cause as a record-store failure.
func Local(op string, cause error) *Error {
	return &Error{Class: ClassLocal, Op: op, Err: cause}
}

// ClassOf extracts the failure class from err. Unclassified errors are treated
// as transient so an unknown remote fault is retried rather than dropped.
func ClassOf(err error) Class {
	var syncErr *Error
	if errors.As(err, &syncErr) {
		return syncErr.Class
	}
	return ClassTransient
}
