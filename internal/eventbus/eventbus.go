// Package eventbus publishes reconcile outcomes to downstream consumers.
package eventbus

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/workforce-signals/internal/types"
)

// SubjectPrefix is prepended to the outcome to form the subject.
const SubjectPrefix = "workforce.events."

// OutcomeEvent describes what a reconcile did to one status event.
type OutcomeEvent struct {
	Outcome     string           `json:"outcome"`
	EventID     uuid.UUID        `json:"event_id"`
	CompanyName string           `json:"company_name"`
	StatusType  types.StatusType `json:"status_type"`
	Verified    bool             `json:"verified"`
	Sources     int              `json:"sources"`
	Confidence  int              `json:"confidence"`
	SourceName  string           `json:"source_name"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

// Subject returns the subject an event is published on.
func (e OutcomeEvent) Subject() string {
	return SubjectPrefix + e.Outcome
}

// Validate checks the fields consumers rely on.
func (e OutcomeEvent) Validate() error {
	if e.Outcome == "" {
		return errors.New("outcome is required")
	}
	if e.EventID == uuid.Nil {
		return errors.New("event id is required")
	}
	return nil
}

// Publisher sends outcome events.
type Publisher interface {
	Publish(ctx context.Context, evt OutcomeEvent) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, OutcomeEvent) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }
