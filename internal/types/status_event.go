// Package types provides type definitions for structured data used throughout the workforce-signals system.
package types

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// StatusType is the kind of workforce change an event describes.
type StatusType string

// StatusType constants form a closed set.
const (
	StatusLayoff        StatusType = "layoff"
	StatusHiringFreeze  StatusType = "hiring_freeze"
	StatusMassHiring    StatusType = "mass_hiring"
	StatusRestructuring StatusType = "restructuring"
)

// StatusTypes lists every valid StatusType in a stable order.
func StatusTypes() []StatusType {
	return []StatusType{StatusLayoff, StatusHiringFreeze, StatusMassHiring, StatusRestructuring}
}

// Valid reports whether t is one of the known status types.
func (t StatusType) Valid() bool {
	return slices.Contains(StatusTypes(), t)
}

// ParseStatusType converts a string to a StatusType.
func ParseStatusType(s string) (StatusType, error) {
	t := StatusType(s)
	if !t.Valid() {
		names := make([]string, 0, len(StatusTypes()))
		for _, st := range StatusTypes() {
			names = append(names, string(st))
		}
		return "", fmt.Errorf("unknown status type %q (want one of %s)", s, strings.Join(names, ", "))
	}
	return t, nil
}

// Severity grades the size of the impact.
type Severity string

// Severity constants
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// DateLayout is the wire format for StartDate and EndDate.
const DateLayout = "2006-01-02"

// SourceDescriptor is one configured external source.
type SourceDescriptor struct {
	Name        string     `json:"name" yaml:"name" validate:"required"`
	FetchTarget string     `json:"fetch_target" yaml:"fetch_target" validate:"required"`
	Reliability int        `json:"reliability" yaml:"reliability" validate:"gte=0,lte=100"`
	Kind        SourceKind `json:"kind,omitempty" yaml:"kind,omitempty" validate:"omitempty,oneof=page feed"`
	Selectors   []string   `json:"selectors,omitempty" yaml:"selectors,omitempty"`
}

// SourceKind tells the fetcher how to read a source.
type SourceKind string

// SourceKind constants
const (
	SourceKindPage SourceKind = "page"
	SourceKindFeed SourceKind = "feed"
)

// ContributingSource is one piece of provenance attached to a StatusEvent.
type ContributingSource struct {
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Reliability int       `json:"reliability"`
	AddedAt     time.Time `json:"added_at"`
}

// StatusEvent is the persisted record of one real-world workforce change.
type StatusEvent struct {
	ID                  uuid.UUID            `json:"id"`
	CompanyName         string               `json:"company_name"`
	CompanyKey          string               `json:"company_key"`
	StatusType          StatusType           `json:"status_type"`
	Severity            Severity             `json:"severity"`
	AffectedDepartments []string             `json:"affected_departments,omitempty"`
	EmployeeCountImpact *int                 `json:"employee_count_impact,omitempty"`
	StartDate           time.Time            `json:"start_date"`
	EndDate             *time.Time           `json:"end_date,omitempty"`
	Description         string               `json:"description"`
	Verified            bool                 `json:"verified"`
	Sources             []ContributingSource `json:"sources"`
	Version             int                  `json:"version"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

// HasSource reports whether a source with the same name or URL is already recorded.
func (e *StatusEvent) HasSource(name, url string) bool {
	for _, s := range e.Sources {
		if s.Name == name {
			return true
		}
		if url != "" && s.URL == url {
			return true
		}
	}
	return false
}

// Summary returns the fields the classifier compares when judging identity.
func (e *StatusEvent) Summary() EventSummary {
	return EventSummary{
		CompanyName:         e.CompanyName,
		StatusType:          e.StatusType,
		Description:         e.Description,
		StartDate:           e.StartDate,
		EmployeeCountImpact: e.EmployeeCountImpact,
	}
}

// Draft is an extracted but not yet reconciled event.
type Draft struct {
	CompanyName         string           `json:"company_name" validate:"required"`
	StatusType          StatusType       `json:"status_type" validate:"required,oneof=layoff hiring_freeze mass_hiring restructuring"`
	Severity            Severity         `json:"severity" validate:"required,oneof=low medium high"`
	AffectedDepartments []string         `json:"affected_departments,omitempty"`
	EmployeeCountImpact *int             `json:"employee_count_impact,omitempty" validate:"omitempty,gte=0"`
	StartDate           time.Time        `json:"start_date" validate:"required"`
	EndDate             *time.Time       `json:"end_date,omitempty"`
	Description         string           `json:"description" validate:"required"`
	SourceURL           string           `json:"source_url,omitempty"`
	Source              SourceDescriptor `json:"source"`
}

var draftValidator = validator.New()

// Validate checks required fields and enum membership.
func (d *Draft) Validate() error {
	return draftValidator.Struct(d)
}

// ContributingSource builds the provenance entry this draft adds to an event.
func (d *Draft) ContributingSource(addedAt time.Time) ContributingSource {
	url := d.SourceURL
	if url == "" {
		url = d.Source.FetchTarget
	}
	return ContributingSource{
		Name:        d.Source.Name,
		URL:         url,
		Reliability: d.Source.Reliability,
		AddedAt:     addedAt,
	}
}

// Summary returns the fields the classifier compares when judging identity.
func (d *Draft) Summary() EventSummary {
	return EventSummary{
		CompanyName:         d.CompanyName,
		StatusType:          d.StatusType,
		Description:         d.Description,
		StartDate:           d.StartDate,
		EmployeeCountImpact: d.EmployeeCountImpact,
	}
}

// EventSummary is the subset of an event sent to the similarity check.
type EventSummary struct {
	CompanyName         string
	StatusType          StatusType
	Description         string
	StartDate           time.Time
	EmployeeCountImpact *int
}
