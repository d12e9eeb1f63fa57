// Package store defines persistence for status events and provides a SQLite implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/workforce-signals/internal/types"
)

// DefaultCandidateLimit bounds how many candidates a merge considers.
const DefaultCandidateLimit = 5

var (
	// ErrNotFound is returned when an event does not exist.
	ErrNotFound = errors.New("status event not found")
	// ErrVersionConflict is returned when an update loses an optimistic-concurrency race.
	ErrVersionConflict = errors.New("status event version conflict")
	// ErrEmptySources is returned when a write would leave an event without sources.
	ErrEmptySources = errors.New("status event must have at least one source")
)

// Store is the persistence contract used by the merge engine and readers.
type Store interface {
	// FindCandidates returns events with the given company key and type whose start date is
	// on or after since, most recent first, at most limit rows.
	FindCandidates(ctx context.Context, companyKey string, statusType types.StatusType, since time.Time, limit int) ([]types.StatusEvent, error)
	// Insert persists a new event, assigning ID, Version, CreatedAt and UpdatedAt.
	Insert(ctx context.Context, event *types.StatusEvent) error
	// Update applies patch to the event if its stored version equals patch.ExpectedVersion.
	Update(ctx context.Context, id uuid.UUID, patch Patch) (*types.StatusEvent, error)
	// Get returns a single event.
	Get(ctx context.Context, id uuid.UUID) (*types.StatusEvent, error)
	// List returns events matching filters, most recent first.
	List(ctx context.Context, filters ListFilters) ([]types.StatusEvent, error)
	// Close releases resources.
	Close() error
}

// Patch is the set of mutations the merge engine may apply to an event.
type Patch struct {
	ExpectedVersion     int
	Sources             []types.ContributingSource
	Verified            bool
	Description         string
	EmployeeCountImpact *int
}

// ListFilters holds optional filters for listing events.
type ListFilters struct {
	CompanyKey   string
	StatusType   types.StatusType
	VerifiedOnly bool
	Limit        int
}

// DefaultListLimit is used when ListFilters.Limit is zero.
const DefaultListLimit = 50

// ValidatePatch enforces the append-only sources and monotonic verification invariants.
func ValidatePatch(current *types.StatusEvent, patch Patch) error {
	if len(patch.Sources) == 0 {
		return ErrEmptySources
	}
	if len(patch.Sources) < len(current.Sources) {
		return errors.New("status event sources cannot shrink")
	}
	if current.Verified && !patch.Verified {
		return errors.New("status event cannot be unverified")
	}
	return nil
}
