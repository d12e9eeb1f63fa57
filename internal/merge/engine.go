// Package merge reconciles extracted drafts against persisted status events.
//
// Each draft is either inserted as a new event, merged into the first
// candidate the classifier judges to be the same event, or skipped when that
// candidate already carries the draft's source.
package merge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonathan/workforce-signals/internal/classifier"
	"github.com/jonathan/workforce-signals/internal/lock"
	"github.com/jonathan/workforce-signals/internal/logging"
	"github.com/jonathan/workforce-signals/internal/scoring"
	"github.com/jonathan/workforce-signals/internal/store"
	"github.com/jonathan/workforce-signals/internal/types"
)

// Defaults for Options
const (
	DefaultLookback    = 60 * 24 * time.Hour
	DefaultMaxAttempts = 3
)

// Outcome is the result kind of one reconcile.
type Outcome string

// Outcome constants
const (
	OutcomeInserted Outcome = "inserted"
	OutcomeMerged   Outcome = "merged"
	OutcomeSkipped  Outcome = "skipped"
)

// Result is the outcome of reconciling one draft and the event it touched.
type Result struct {
	Outcome Outcome
	Event   *types.StatusEvent
}

// Options configures an Engine. Zero values use the defaults.
type Options struct {
	Lookback          time.Duration
	CandidateLimit    int
	MaxAttempts       int
	NormalizeNames    bool
	DescriptionPolicy DescriptionPolicy
	Locker            lock.Locker
	Clock             func() time.Time
	Logger            *log.Logger
}

// Engine is the dedup and merge engine.
type Engine struct {
	store      store.Store
	classifier classifier.Classifier
	opts       Options
	logger     *log.Logger
}

// NewEngine creates an Engine over st using c for identity decisions.
func NewEngine(st store.Store, c classifier.Classifier, opts Options) *Engine {
	if opts.Lookback <= 0 {
		opts.Lookback = DefaultLookback
	}
	if opts.CandidateLimit <= 0 {
		opts.CandidateLimit = store.DefaultCandidateLimit
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.DescriptionPolicy == nil {
		opts.DescriptionPolicy = LongerDescription
	}
	if opts.Locker == nil {
		opts.Locker = lock.NewLocal()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{
		store:      st,
		classifier: c,
		opts:       opts,
		logger:     logging.OrDefault(opts.Logger).WithPrefix("merge"),
	}
}

// LockKey is the serialization key for drafts with this company key and type.
func LockKey(companyKey string, statusType types.StatusType) string {
	return companyKey + "|" + string(statusType)
}

// Reconcile inserts, merges or skips draft.
// Version conflicts are retried with fresh candidates up to MaxAttempts times.
func (e *Engine) Reconcile(ctx context.Context, draft *types.Draft) (Result, error) {
	if draft == nil {
		return Result{}, errors.New("draft is nil")
	}
	if draft.Source.Name == "" {
		return Result{}, errors.New("draft has no source")
	}

	companyKey := CompanyKey(draft.CompanyName, e.opts.NormalizeNames)
	unlock, err := e.opts.Locker.Lock(ctx, LockKey(companyKey, draft.StatusType))
	if err != nil {
		return Result{}, fmt.Errorf("failed to lock %s: %w", companyKey, err)
	}
	defer unlock()

	var lastErr error
	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		res, err := e.reconcileOnce(ctx, companyKey, draft)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return Result{}, err
		}
		lastErr = err
		e.logger.Debug("version conflict, retrying", "company", draft.CompanyName, "attempt", attempt)
	}
	return Result{}, fmt.Errorf("gave up after %d attempts: %w", e.opts.MaxAttempts, lastErr)
}

func (e *Engine) reconcileOnce(ctx context.Context, companyKey string, draft *types.Draft) (Result, error) {
	now := e.opts.Clock().UTC()

	candidates, err := e.store.FindCandidates(ctx, companyKey, draft.StatusType, now.Add(-e.opts.Lookback), e.opts.CandidateLimit)
	if err != nil {
		return Result{}, fmt.Errorf("failed to find candidates: %w", err)
	}

	source := draft.ContributingSource(now)
	incoming := draft.Summary()

	for i := range candidates {
		candidate := &candidates[i]

		same, err := e.classifier.SameEvent(ctx, candidate.Summary(), incoming)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, ctxErr
			}
			e.logger.Warn("similarity check failed, treating as different",
				"company", draft.CompanyName, "candidate", candidate.ID, "err", err)
			continue
		}
		if !same {
			continue
		}

		if candidate.HasSource(source.Name, source.URL) {
			return Result{Outcome: OutcomeSkipped, Event: candidate}, nil
		}
		return e.merge(ctx, candidate, draft, source)
	}

	return e.insert(ctx, companyKey, draft, source, now)
}

func (e *Engine) merge(ctx context.Context, candidate *types.StatusEvent, draft *types.Draft, source types.ContributingSource) (Result, error) {
	sources := make([]types.ContributingSource, 0, len(candidate.Sources)+1)
	sources = append(sources, candidate.Sources...)
	sources = append(sources, source)

	patch := store.Patch{
		ExpectedVersion: candidate.Version,
		Sources:         sources,
		Verified:        candidate.Verified || scoring.ShouldVerify(sources),
		Description:     e.opts.DescriptionPolicy(candidate.Description, draft.Description),
	}
	if candidate.EmployeeCountImpact == nil && draft.EmployeeCountImpact != nil {
		impact := *draft.EmployeeCountImpact
		patch.EmployeeCountImpact = &impact
	}

	updated, err := e.store.Update(ctx, candidate.ID, patch)
	if err != nil {
		return Result{}, fmt.Errorf("failed to merge into %s: %w", candidate.ID, err)
	}

	e.logger.Info("merged", "company", updated.CompanyName, "type", updated.StatusType,
		"id", updated.ID, "sources", len(updated.Sources), "verified", updated.Verified)
	return Result{Outcome: OutcomeMerged, Event: updated}, nil
}

func (e *Engine) insert(ctx context.Context, companyKey string, draft *types.Draft, source types.ContributingSource, now time.Time) (Result, error) {
	event := &types.StatusEvent{
		CompanyName:         draft.CompanyName,
		CompanyKey:          companyKey,
		StatusType:          draft.StatusType,
		Severity:            draft.Severity,
		AffectedDepartments: append([]string(nil), draft.AffectedDepartments...),
		EmployeeCountImpact: draft.EmployeeCountImpact,
		StartDate:           draft.StartDate,
		EndDate:             draft.EndDate,
		Description:         draft.Description,
		Verified:            scoring.SingleSourceVerified(source.Reliability),
		Sources:             []types.ContributingSource{source},
		CreatedAt:           now,
	}

	if err := e.store.Insert(ctx, event); err != nil {
		return Result{}, fmt.Errorf("failed to insert event for %s: %w", draft.CompanyName, err)
	}

	e.logger.Info("inserted", "company", event.CompanyName, "type", event.StatusType,
		"id", event.ID, "verified", event.Verified)
	return Result{Outcome: OutcomeInserted, Event: event}, nil
}
