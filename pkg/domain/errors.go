package domain

import "errors"

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrUndeclaredKey is returned when a node writes a key the registry does not know.
var ErrUndeclaredKey = errors.New("undeclared state key")

// ErrMissingRequiredKey is returned when a required key is read before it was written.
var ErrMissingRequiredKey = errors.New("missing required state key")

// ErrTransient marks collaborator errors that are worth retrying in place.
var ErrTransient = errors.New("transient error")

// ErrNoActiveDatasource is returned when a scope has no active datasource.
var ErrNoActiveDatasource = errors.New("no active datasource")

// ErrNotSuspended is returned when resuming a session that is not waiting for review.
var ErrNotSuspended = errors.New("session is not awaiting review")

// ErrLockAcquire is returned when a distributed session lock cannot be taken.
var ErrLockAcquire = errors.New("failed to acquire distributed lock")
