package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a requested entity does not exist
	ErrNotFound = errors.New("not found")
	// ErrUnknownJob is returned when a job name is not registered
	ErrUnknownJob = errors.New("unknown job")
	// ErrJobRunning is returned when a job is triggered while a previous run is in flight
	ErrJobRunning = errors.New("job already running")
	// ErrJobDeferred is returned when a job's prerequisites have not completed yet
	ErrJobDeferred = errors.New("job deferred, prerequisites not complete")
)

// ExternalFetchError reports a failure of the price history provider for one asset
type ExternalFetchError struct {
	AssetID string
	Err     error
}

func (e *ExternalFetchError) Error() string {
	return fmt.Sprintf("fetch price history for %s: %v", e.AssetID, e.Err)
}

func (e *ExternalFetchError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a failed write of one entity
type PersistenceError struct {
	Op       string
	EntityID uuid.UUID
	Err      error
}

func (e *PersistenceError) Error() string {
	if e.EntityID == uuid.Nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.EntityID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
