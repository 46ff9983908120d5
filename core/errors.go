package core

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable signals that a backing store could not be reached.
	// Admission treats this as fail-closed (abort, let the queue redeliver);
	// the abuse gate treats it as fail-open.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrConversationClosed is returned when a mutation is attempted on a
	// conversation whose terminal outcome has already been set.
	ErrConversationClosed = errors.New("conversation outcome already set")
)

// VersionConflictError reports a failed optimistic-concurrency save: the
// stored version moved past the version the caller loaded. Callers must
// reload, recompute the full decision and save again.
type VersionConflictError struct {
	ConversationID string
	Expected       int64
	Actual         int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict for conversation %s: expected %d, stored %d", e.ConversationID, e.Expected, e.Actual)
}

// IsVersionConflict reports whether err is (or wraps) a VersionConflictError.
func IsVersionConflict(err error) bool {
	var vc *VersionConflictError
	return errors.As(err, &vc)
}

// ChainConflictError reports that an audit append lost the race for the
// chain head: the supplied expected previous hash is no longer last-in-chain.
type ChainConflictError struct {
	ConversationID string
	ExpectedPrev   string
	ActualPrev     string
}

func (e *ChainConflictError) Error() string {
	return fmt.Sprintf("audit chain conflict for conversation %s: expected head %s, stored %s", e.ConversationID, e.ExpectedPrev, e.ActualPrev)
}

// IsChainConflict reports whether err is (or wraps) a ChainConflictError.
func IsChainConflict(err error) bool {
	var cc *ChainConflictError
	return errors.As(err, &cc)
}

// BackendErrorKind classifies reasoning-backend failures. Every kind is
// converted into the owning stage's deterministic fallback; none of them
// ever escapes the pipeline.
type BackendErrorKind string

const (
	// BackendTimeout covers deadline expiry on a backend call.
	BackendTimeout BackendErrorKind = "timeout"
	// BackendMalformed covers unparsable or out-of-contract responses
	// (bad JSON, confidence outside [0,1], unknown target state).
	BackendMalformed BackendErrorKind = "malformed"
	// BackendUnavailable covers transport-level failures.
	BackendUnavailable BackendErrorKind = "unavailable"
)

// BackendError is the only error shape the reasoning-backend boundary may
// produce. Stage identifies the calling stage for logs and audit detail.
type BackendError struct {
	Kind  BackendErrorKind
	Stage string
	Err   error
}

func (e *BackendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend %s (%s stage): %v", e.Kind, e.Stage, e.Err)
	}
	return fmt.Sprintf("backend %s (%s stage)", e.Kind, e.Stage)
}

func (e *BackendError) Unwrap() error { return e.Err }

// DispatchErrorClass separates transient transport failures (eligible for
// redelivery-driven retry under the same idempotency key) from permanent
// ones (terminal, never retried).
type DispatchErrorClass string

const (
	// DispatchRetryable marks failures a later redelivery may retry.
	DispatchRetryable DispatchErrorClass = "retryable"
	// DispatchPermanent marks terminal failures (e.g. invalid recipient).
	DispatchPermanent DispatchErrorClass = "permanent"
)

// DispatchError classifies an outbound transport failure.
type DispatchError struct {
	Class DispatchErrorClass
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch failed (%s): %v", e.Class, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// IsRetryableDispatch reports whether err is a dispatch failure that a
// future redelivery with the same idempotency key may retry. Unclassified
// errors are treated as retryable.
func IsRetryableDispatch(err error) bool {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Class == DispatchRetryable
	}
	return err != nil
}
