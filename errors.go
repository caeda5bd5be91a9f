package notehive

import (
	"errors"
	"fmt"
)

// Common errors returned by the notehive client.
var (
	// ErrNotFound is returned when a note or label is not found.
	ErrNotFound = errors.New("entity not found")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrOffline is returned when a remote-only operation is attempted with
	// no remote service configured.
	ErrOffline = errors.New("operation unavailable in offline mode")

	// ErrEmptyNote is returned when a note has neither title nor content.
	ErrEmptyNote = errors.New("note must have a title or content")

	// ErrEmptyLabelName is returned when a label name is empty.
	ErrEmptyLabelName = errors.New("label name cannot be empty")

	// ErrInvalidLabelName is returned when a label name contains the
	// delimiter used by the notes table's labels column.
	ErrInvalidLabelName = errors.New("label name cannot contain a comma")

	// ErrDuplicateLabel is returned when a label name already exists for the
	// user (case-insensitive).
	ErrDuplicateLabel = errors.New("label name already exists")

	// ErrNoUser is returned when an operation requires a current user and
	// none is set.
	ErrNoUser = errors.New("no current user")

	// ErrSyncInProgress is reserved for callers that want non-blocking sync;
	// the coordinator itself serializes sync operations.
	ErrSyncInProgress = errors.New("sync already in progress")
)

// ValidationError is returned when configuration validation fails.
// Extractable via errors.As().
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// SyncError is returned when a sync operation fails with details.
// Operation names the failed phase ("drain", "notes", "labels").
// Extractable via errors.As(). Supports Unwrap().
type SyncError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *SyncError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("sync: %s failed (status %d): %v", e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("sync: %s failed: %v", e.Operation, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// RemoteError is returned when the remote service answers with a non-success
// status. Extractable via errors.As().
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote: status %d", e.StatusCode)
	}
	return fmt.Sprintf("remote: status %d: %s", e.StatusCode, e.Body)
}
