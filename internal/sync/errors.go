package sync

import "errors"

var (
	// ErrCancelled is returned when an external actor has flagged the
	// run's state row as cancelled. It is a clean early exit, not a
	// failure.
	ErrCancelled = errors.New("sync cancelled")

	// ErrNoCredentials is returned when the connection has no usable
	// bearer token or account identifier. Fatal precondition, never
	// retried.
	ErrNoCredentials = errors.New("connection has no POS credentials")

	// ErrSyncInProgress is returned when a fresh running state row
	// already exists for the connection.
	ErrSyncInProgress = errors.New("a sync is already running for this connection")
)
