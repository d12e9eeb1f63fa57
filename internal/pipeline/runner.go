// Package pipeline runs one ingestion pass over the source registry.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonathan/workforce-signals/internal/eventbus"
	"github.com/jonathan/workforce-signals/internal/fetch"
	"github.com/jonathan/workforce-signals/internal/logging"
	"github.com/jonathan/workforce-signals/internal/merge"
	"github.com/jonathan/workforce-signals/internal/scoring"
	"github.com/jonathan/workforce-signals/internal/types"
)

// DefaultCourtesyDelay separates consecutive sources.
const DefaultCourtesyDelay = 2 * time.Second

// ErrRunInProgress is returned when RunOnce is called while a run is active.
var ErrRunInProgress = errors.New("an ingestion run is already in progress")

// Extractor turns page text into drafts tagged with source.
type Extractor interface {
	Extract(ctx context.Context, text string, source types.SourceDescriptor) []types.Draft
}

// Reconciler persists a draft.
type Reconciler interface {
	Reconcile(ctx context.Context, draft *types.Draft) (merge.Result, error)
}

// Stats are the counters of one run.
type Stats struct {
	SourcesProcessed int           `json:"sources_processed"`
	SourcesFailed    int           `json:"sources_failed"`
	EventsFound      int           `json:"events_found"`
	Inserted         int           `json:"inserted"`
	Merged           int           `json:"merged"`
	Skipped          int           `json:"skipped"`
	Errors           int           `json:"errors"`
	Cancelled        bool          `json:"cancelled,omitempty"`
	Duration         time.Duration `json:"duration"`
}

// Options wires a Runner.
type Options struct {
	Sources       []types.SourceDescriptor
	Fetcher       fetch.PageFetcher
	Extractor     Extractor
	Reconciler    Reconciler
	Publisher     eventbus.Publisher
	Metrics       *Metrics
	CourtesyDelay time.Duration
	Logger        *log.Logger
	Clock         func() time.Time
}

// Runner is the pipeline orchestrator.
type Runner struct {
	opts    Options
	logger  *log.Logger
	running atomic.Bool
}

// NewRunner validates opts and returns a Runner.
// A negative CourtesyDelay disables the delay; zero uses the default.
func NewRunner(opts Options) (*Runner, error) {
	if len(opts.Sources) == 0 {
		return nil, errors.New("source registry is empty")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if opts.Extractor == nil {
		return nil, errors.New("extractor is required")
	}
	if opts.Reconciler == nil {
		return nil, errors.New("reconciler is required")
	}
	if opts.Publisher == nil {
		opts.Publisher = eventbus.Nop{}
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.CourtesyDelay == 0 {
		opts.CourtesyDelay = DefaultCourtesyDelay
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	sources := make([]types.SourceDescriptor, len(opts.Sources))
	copy(sources, opts.Sources)
	opts.Sources = sources

	return &Runner{opts: opts, logger: logging.OrDefault(opts.Logger).WithPrefix("pipeline")}, nil
}

// Sources returns the registry the runner iterates.
func (r *Runner) Sources() []types.SourceDescriptor {
	out := make([]types.SourceDescriptor, len(r.opts.Sources))
	copy(out, r.opts.Sources)
	return out
}

// RunOnce fetches, extracts and reconciles every source in registry order.
// Per-source and per-draft failures are counted, never returned. A cancelled
// context stops the run between sources and the partial stats are returned.
func (r *Runner) RunOnce(ctx context.Context) (Stats, error) {
	if !r.running.CompareAndSwap(false, true) {
		return Stats{}, ErrRunInProgress
	}
	defer r.running.Store(false)

	start := r.opts.Clock()
	r.opts.Metrics.runs.Inc()

	var stats Stats
	for i, source := range r.opts.Sources {
		if i > 0 && !r.pause(ctx) {
			stats.Cancelled = true
			break
		}
		if ctx.Err() != nil {
			stats.Cancelled = true
			break
		}
		r.processSource(ctx, source, &stats)
	}

	stats.Duration = r.opts.Clock().Sub(start)
	r.opts.Metrics.runDuration.Observe(stats.Duration.Seconds())
	if !stats.Cancelled {
		r.opts.Metrics.lastRunCompleted.Set(float64(r.opts.Clock().Unix()))
	}

	r.logger.Info("run complete",
		"sources", stats.SourcesProcessed, "failed", stats.SourcesFailed,
		"found", stats.EventsFound, "inserted", stats.Inserted, "merged", stats.Merged,
		"skipped", stats.Skipped, "errors", stats.Errors, "cancelled", stats.Cancelled)
	return stats, nil
}

func (r *Runner) processSource(ctx context.Context, source types.SourceDescriptor, stats *Stats) {
	stats.SourcesProcessed++
	logger := r.logger.With("source", source.Name)

	page, err := r.opts.Fetcher.Fetch(ctx, source)
	if err != nil {
		stats.SourcesFailed++
		r.opts.Metrics.sourceFailures.WithLabelValues(source.Name).Inc()
		logger.Warn("fetch failed, skipping source", "err", err)
		return
	}

	drafts := r.opts.Extractor.Extract(ctx, page.Text, source)
	stats.EventsFound += len(drafts)
	r.opts.Metrics.eventsFound.Add(float64(len(drafts)))
	logger.Debug("extracted drafts", "count", len(drafts), "rendered", page.Rendered)

	for i := range drafts {
		res, err := r.opts.Reconciler.Reconcile(ctx, &drafts[i])
		if err != nil {
			stats.Errors++
			r.opts.Metrics.reconcileErrs.Inc()
			logger.Error("reconcile failed", "company", drafts[i].CompanyName, "err", err)
			continue
		}

		switch res.Outcome {
		case merge.OutcomeInserted:
			stats.Inserted++
		case merge.OutcomeMerged:
			stats.Merged++
		case merge.OutcomeSkipped:
			stats.Skipped++
		}
		r.opts.Metrics.outcomes.WithLabelValues(string(res.Outcome)).Inc()
		r.publish(ctx, res, source)
	}
}

func (r *Runner) publish(ctx context.Context, res merge.Result, source types.SourceDescriptor) {
	if res.Event == nil {
		return
	}
	evt := eventbus.OutcomeEvent{
		Outcome:     string(res.Outcome),
		EventID:     res.Event.ID,
		CompanyName: res.Event.CompanyName,
		StatusType:  res.Event.StatusType,
		Verified:    res.Event.Verified,
		Sources:     len(res.Event.Sources),
		Confidence:  scoring.Score(res.Event),
		SourceName:  source.Name,
		OccurredAt:  r.opts.Clock().UTC(),
	}
	if err := r.opts.Publisher.Publish(ctx, evt); err != nil {
		r.logger.Warn("failed to publish outcome", "event", res.Event.ID, "err", err)
	}
}

// pause waits out the courtesy delay. It returns false if ctx ends first.
func (r *Runner) pause(ctx context.Context) bool {
	if r.opts.CourtesyDelay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(r.opts.CourtesyDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// String formats stats for log lines and CLI output.
func (s Stats) String() string {
	return fmt.Sprintf("sources=%d failed=%d found=%d inserted=%d merged=%d skipped=%d errors=%d",
		s.SourcesProcessed, s.SourcesFailed, s.EventsFound, s.Inserted, s.Merged, s.Skipped, s.Errors)
}
