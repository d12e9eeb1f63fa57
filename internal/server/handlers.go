package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jonathan/workforce-signals/internal/merge"
	"github.com/jonathan/workforce-signals/internal/pipeline"
	"github.com/jonathan/workforce-signals/internal/scoring"
	"github.com/jonathan/workforce-signals/internal/store"
	"github.com/jonathan/workforce-signals/internal/types"
)

// maxListLimit caps the limit query parameter of GET /events.
const maxListLimit = 500

// RunResponse represents the response for /ingest/run
type RunResponse struct {
	Success          bool   `json:"success"`
	Message          string `json:"message,omitempty"`
	Error            string `json:"error,omitempty"`
	TotalFound       int    `json:"totalFound"`
	Inserted         int    `json:"inserted"`
	Merged           int    `json:"merged"`
	Skipped          int    `json:"skipped"`
	Errors           int    `json:"errors"`
	SourcesProcessed int    `json:"sourcesProcessed"`
	SourcesFailed    int    `json:"sourcesFailed"`
}

// NewRunResponse converts run stats to the response body.
func NewRunResponse(stats pipeline.Stats) RunResponse {
	msg := fmt.Sprintf("Processed %d sources: %d inserted, %d merged, %d skipped",
		stats.SourcesProcessed, stats.Inserted, stats.Merged, stats.Skipped)
	if stats.Cancelled {
		msg += " (cancelled)"
	}
	return RunResponse{
		Success:          true,
		Message:          msg,
		TotalFound:       stats.EventsFound,
		Inserted:         stats.Inserted,
		Merged:           stats.Merged,
		Skipped:          stats.Skipped,
		Errors:           stats.Errors,
		SourcesProcessed: stats.SourcesProcessed,
		SourcesFailed:    stats.SourcesFailed,
	}
}

// EventResponse is a status event plus its read-time confidence.
type EventResponse struct {
	types.StatusEvent
	StartDate  string       `json:"start_date"`
	EndDate    *string      `json:"end_date,omitempty"`
	Confidence int          `json:"confidence"`
	Tier       scoring.Tier `json:"tier"`
}

// NewEventResponse scores e for display.
func NewEventResponse(e *types.StatusEvent) EventResponse {
	score, tier := scoring.Evaluate(e)
	resp := EventResponse{
		StatusEvent: *e,
		StartDate:   e.StartDate.Format(types.DateLayout),
		Confidence:  score,
		Tier:        tier,
	}
	if e.EndDate != nil {
		end := e.EndDate.Format(types.DateLayout)
		resp.EndDate = &end
	}
	return resp
}

// ListEventsResponse represents the response for GET /events
type ListEventsResponse struct {
	Events []EventResponse `json:"events"`
	Count  int             `json:"count"`
}

// handleIngestRun executes one ingestion run synchronously
func (s *Server) handleIngestRun(w http.ResponseWriter, r *http.Request) {
	// A dropped client must not abort a run halfway through the registry.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.runTimeout)
	defer cancel()

	stats, err := s.runner.RunOnce(ctx)
	if err != nil {
		s.logger.Error("ingestion run failed to start", "err", err)
		s.jsonResponse(w, HTTPStatus(err), RunResponse{Success: false, Error: err.Error()})
		return
	}

	s.jsonResponse(w, http.StatusOK, NewRunResponse(stats))
}

// handleListEvents lists status events with optional filters
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	filters, err := s.parseListFilters(r)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	events, err := s.store.List(r.Context(), filters)
	if err != nil {
		s.logger.Error("failed to list events", "err", err)
		s.errorResponse(w, http.StatusInternalServerError, "Failed to list events")
		return
	}

	resp := ListEventsResponse{Events: make([]EventResponse, 0, len(events)), Count: len(events)}
	for i := range events {
		resp.Events = append(resp.Events, NewEventResponse(&events[i]))
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleGetEvent returns one status event
func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid event ID")
		return
	}

	event, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.errorResponse(w, http.StatusNotFound, "Event not found")
			return
		}
		s.logger.Error("failed to get event", "id", id, "err", err)
		s.errorResponse(w, http.StatusInternalServerError, "Failed to get event")
		return
	}

	s.jsonResponse(w, http.StatusOK, NewEventResponse(event))
}

func (s *Server) parseListFilters(r *http.Request) (store.ListFilters, error) {
	q := r.URL.Query()
	var filters store.ListFilters

	if company := q.Get("company"); company != "" {
		filters.CompanyKey = merge.CompanyKey(company, s.normalizeNames)
	}
	if t := q.Get("type"); t != "" {
		st, err := types.ParseStatusType(t)
		if err != nil {
			return filters, &ErrValidation{Field: "type", Message: err.Error()}
		}
		filters.StatusType = st
	}
	if v := q.Get("verified"); v != "" {
		verified, err := strconv.ParseBool(v)
		if err != nil {
			return filters, &ErrValidation{Field: "verified", Message: "must be true or false"}
		}
		filters.VerifiedOnly = verified
	}
	if l := q.Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit <= 0 {
			return filters, &ErrValidation{Field: "limit", Message: "must be a positive integer"}
		}
		filters.Limit = min(limit, maxListLimit)
	}
	return filters, nil
}
