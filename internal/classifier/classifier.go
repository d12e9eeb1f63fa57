// Package classifier turns article text into draft events and judges whether
// two reports describe the same real-world event.
package classifier

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonathan/workforce-signals/internal/llm"
	"github.com/jonathan/workforce-signals/internal/logging"
	"github.com/jonathan/workforce-signals/internal/prompts"
	"github.com/jonathan/workforce-signals/internal/schemas"
	"github.com/jonathan/workforce-signals/internal/types"
	"golang.org/x/time/rate"
)

// Classifier is the semantic collaborator used by extraction and merging.
type Classifier interface {
	// Extract returns the draft events described by text. Drafts carry no source.
	Extract(ctx context.Context, text string) ([]types.Draft, error)
	// SameEvent reports whether a and b describe the same real-world event.
	SameEvent(ctx context.Context, a, b types.EventSummary) (bool, error)
}

// LLM implements Classifier on top of an llm.Client.
type LLM struct {
	client  llm.Client
	limiter *rate.Limiter
	timeout time.Duration
	now     func() time.Time
	logger  *log.Logger
}

var _ Classifier = (*LLM)(nil)

// Option configures an LLM classifier.
type Option func(*LLM)

// WithRateLimit caps model calls at rps per second with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *LLM) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTimeout bounds each model call.
func WithTimeout(d time.Duration) Option {
	return func(c *LLM) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithClock overrides the clock used for the "today" hint in prompts.
func WithClock(now func() time.Time) Option {
	return func(c *LLM) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *LLM) { c.logger = l }
}

// NewLLM creates a classifier backed by client.
func NewLLM(client llm.Client, opts ...Option) *LLM {
	c := &LLM{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(2), 2),
		timeout: llm.DefaultCallTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDefault(c.logger).WithPrefix("classifier")
	return c
}

// extractedEvent is the wire shape of one event in the model response.
type extractedEvent struct {
	CompanyName         string   `json:"company_name"`
	StatusType          string   `json:"status_type"`
	Severity            string   `json:"severity"`
	AffectedDepartments []string `json:"affected_departments"`
	EmployeeCountImpact *int     `json:"employee_count_impact"`
	StartDate           string   `json:"start_date"`
	EndDate             *string  `json:"end_date"`
	Description         string   `json:"description"`
	SourceURL           *string  `json:"source_url"`
}

type extractionResponse struct {
	Events []extractedEvent `json:"events"`
}

// Extract asks the model for workforce events in text.
func (c *LLM) Extract(ctx context.Context, text string) ([]types.Draft, error) {
	preamble, err := prompts.Render(prompts.SignalsFile, prompts.KeyExtractEvents, map[string]string{
		"Today": c.now().UTC().Format(types.DateLayout),
	})
	if err != nil {
		return nil, &Error{Op: "extract", Message: "failed to render prompt", Cause: err}
	}
	prompt := llm.BuildExtractionPrompt(llm.StatusEventsSchema(preamble), text)

	raw, err := c.call(ctx, func(ctx context.Context) (string, error) {
		return c.client.GenerateJSON(ctx, prompt, llm.TierStandard)
	})
	if err != nil {
		return nil, &Error{Op: "extract", Message: "model call failed", Cause: err}
	}

	body := llm.CleanJSONBlock(raw)
	if err := schemas.Validate(schemas.StatusEvents, []byte(body)); err != nil {
		return nil, &Error{Op: "extract", Message: "response does not match schema", Cause: err}
	}

	var resp extractionResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, &Error{Op: "extract", Message: "failed to decode response", Cause: err}
	}

	drafts := make([]types.Draft, 0, len(resp.Events))
	for i, ev := range resp.Events {
		d, err := ev.toDraft()
		if err != nil {
			c.logger.Warn("dropping extracted event", "index", i, "company", ev.CompanyName, "err", err)
			continue
		}
		drafts = append(drafts, d)
	}
	return drafts, nil
}

func (ev extractedEvent) toDraft() (types.Draft, error) {
	start, err := time.Parse(types.DateLayout, ev.StartDate)
	if err != nil {
		return types.Draft{}, err
	}
	d := types.Draft{
		CompanyName:         strings.TrimSpace(ev.CompanyName),
		StatusType:          types.StatusType(ev.StatusType),
		Severity:            types.Severity(ev.Severity),
		AffectedDepartments: ev.AffectedDepartments,
		EmployeeCountImpact: ev.EmployeeCountImpact,
		StartDate:           start,
		Description:         strings.TrimSpace(ev.Description),
	}
	if ev.EndDate != nil && *ev.EndDate != "" {
		end, err := time.Parse(types.DateLayout, *ev.EndDate)
		if err != nil {
			return types.Draft{}, err
		}
		d.EndDate = &end
	}
	if ev.SourceURL != nil {
		d.SourceURL = strings.TrimSpace(*ev.SourceURL)
	}
	return d, nil
}

// SameEvent asks the model whether a and b are one event. Only an exact
// true/false answer is accepted; anything else is treated as false.
func (c *LLM) SameEvent(ctx context.Context, a, b types.EventSummary) (bool, error) {
	prompt, err := prompts.Render(prompts.SignalsFile, prompts.KeySameEvent, map[string]string{
		"CompanyA":     a.CompanyName,
		"TypeA":        string(a.StatusType),
		"StartA":       a.StartDate.Format(types.DateLayout),
		"ImpactA":      formatImpact(a.EmployeeCountImpact),
		"DescriptionA": a.Description,
		"CompanyB":     b.CompanyName,
		"TypeB":        string(b.StatusType),
		"StartB":       b.StartDate.Format(types.DateLayout),
		"ImpactB":      formatImpact(b.EmployeeCountImpact),
		"DescriptionB": b.Description,
	})
	if err != nil {
		return false, &Error{Op: "same-event", Message: "failed to render prompt", Cause: err}
	}

	raw, err := c.call(ctx, func(ctx context.Context) (string, error) {
		return c.client.GenerateContent(ctx, prompt, llm.TierLite)
	})
	if err != nil {
		return false, &Error{Op: "same-event", Message: "model call failed", Cause: err}
	}

	same := ParseVerdict(raw)
	c.logger.Debug("same-event verdict", "company", a.CompanyName, "type", a.StatusType, "same", same, "raw", raw)
	return same, nil
}

// call waits for the limiter and runs fn under the per-call timeout.
func (c *LLM) call(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(callCtx); err != nil {
			return "", err
		}
	}
	return fn(callCtx)
}

// ParseVerdict reads a similarity answer. Surrounding whitespace, quotes and
// code fences are ignored and case does not matter.
func ParseVerdict(raw string) bool {
	s := llm.StripFences(raw)
	s = strings.Trim(strings.TrimSpace(s), "\"'`")
	return strings.EqualFold(strings.TrimSpace(s), "true")
}

func formatImpact(n *int) string {
	if n == nil {
		return "unknown"
	}
	return strconv.Itoa(*n)
}
