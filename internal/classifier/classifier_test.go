package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonathan/workforce-signals/internal/llm"
	"github.com/jonathan/workforce-signals/internal/logging"
	"github.com/jonathan/workforce-signals/internal/schemas"
	"github.com/jonathan/workforce-signals/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockLLMClient implements llm.Client for testing
type MockLLMClient struct {
	GenerateContentFunc func(ctx context.Context, prompt string, tier llm.ModelTier) (string, error)
	GenerateJSONFunc    func(ctx context.Context, prompt string, tier llm.ModelTier) (string, error)
}

func (m *MockLLMClient) GenerateContent(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	if m.GenerateContentFunc != nil {
		return m.GenerateContentFunc(ctx, prompt, tier)
	}
	return "false", nil
}

func (m *MockLLMClient) GenerateJSON(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	if m.GenerateJSONFunc != nil {
		return m.GenerateJSONFunc(ctx, prompt, tier)
	}
	return `{"events": []}`, nil
}

func (m *MockLLMClient) Close() error { return nil }

var fixedNow = func() time.Time { return time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC) }

func newTestClassifier(client llm.Client, opts ...Option) *LLM {
	base := []Option{WithRateLimit(0, 0), WithClock(fixedNow), WithLogger(logging.Discard())}
	return NewLLM(client, append(base, opts...)...)
}

func TestExtract_Success(t *testing.T) {
	var gotPrompt string
	var gotTier llm.ModelTier
	client := &MockLLMClient{
		GenerateJSONFunc: func(_ context.Context, prompt string, tier llm.ModelTier) (string, error) {
			gotPrompt, gotTier = prompt, tier
			return "```json\n" + `{"events": [
				{"company_name": " Acme Corp ", "status_type": "layoff", "severity": "medium",
				 "affected_departments": ["Engineering"], "employee_count_impact": 300,
				 "start_date": "2026-02-01", "end_date": "2026-03-31",
				 "description": "Acme Corp cuts 300 engineering roles.",
				 "source_url": "https://news.example.com/acme"},
				{"company_name": "Globex", "status_type": "hiring_freeze", "severity": "low",
				 "start_date": "2026-01-20", "description": "Globex pauses hiring."}
			]}` + "\n```", nil
		},
	}

	drafts, err := newTestClassifier(client).Extract(context.Background(), "article body")
	require.NoError(t, err)
	require.Len(t, drafts, 2)

	assert.Equal(t, llm.TierStandard, gotTier)
	assert.Contains(t, gotPrompt, "Today is 2026-02-10.")
	assert.Contains(t, gotPrompt, "article body")

	acme := drafts[0]
	assert.Equal(t, "Acme Corp", acme.CompanyName)
	assert.Equal(t, types.StatusLayoff, acme.StatusType)
	assert.Equal(t, types.SeverityMedium, acme.Severity)
	assert.Equal(t, []string{"Engineering"}, acme.AffectedDepartments)
	require.NotNil(t, acme.EmployeeCountImpact)
	assert.Equal(t, 300, *acme.EmployeeCountImpact)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), acme.StartDate)
	require.NotNil(t, acme.EndDate)
	assert.Equal(t, time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), *acme.EndDate)
	assert.Equal(t, "https://news.example.com/acme", acme.SourceURL)

	globex := drafts[1]
	assert.Nil(t, globex.EmployeeCountImpact)
	assert.Nil(t, globex.EndDate)
	assert.Empty(t, globex.SourceURL)
}

func TestExtract_EmptyResult(t *testing.T) {
	drafts, err := newTestClassifier(&MockLLMClient{}).Extract(context.Background(), "nothing here")
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestExtract_DropsUnparseableDates(t *testing.T) {
	client := &MockLLMClient{
		GenerateJSONFunc: func(context.Context, string, llm.ModelTier) (string, error) {
			return `{"events": [
				{"company_name": "A", "status_type": "layoff", "severity": "low", "start_date": "2026-13-40", "description": "bad"},
				{"company_name": "B", "status_type": "layoff", "severity": "low", "start_date": "2026-01-05", "description": "good"}
			]}`, nil
		},
	}

	drafts, err := newTestClassifier(client).Extract(context.Background(), "text")
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "B", drafts[0].CompanyName)
}

func TestExtract_Failures(t *testing.T) {
	tests := []struct {
		name     string
		response string
		err      error
		check    func(t *testing.T, err error)
	}{
		{
			name: "transport error",
			err:  errors.New("connection reset"),
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "connection reset")
			},
		},
		{
			name:     "not json",
			response: "I could not find any events.",
		},
		{
			name:     "schema violation",
			response: `{"events": [{"company_name": "A", "status_type": "strike", "severity": "low", "start_date": "2026-01-01", "description": "d"}]}`,
			check: func(t *testing.T, err error) {
				var validationErr *schemas.ValidationError
				assert.True(t, errors.As(err, &validationErr))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &MockLLMClient{
				GenerateJSONFunc: func(context.Context, string, llm.ModelTier) (string, error) {
					return tt.response, tt.err
				},
			}

			drafts, err := newTestClassifier(client).Extract(context.Background(), "text")
			require.Error(t, err)
			assert.Nil(t, drafts)

			var clsErr *Error
			require.True(t, errors.As(err, &clsErr))
			assert.Equal(t, "extract", clsErr.Op)
			if tt.check != nil {
				tt.check(t, err)
			}
		})
	}
}

func TestExtract_Timeout(t *testing.T) {
	client := &MockLLMClient{
		GenerateJSONFunc: func(ctx context.Context, _ string, _ llm.ModelTier) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}

	_, err := newTestClassifier(client, WithTimeout(20*time.Millisecond)).Extract(context.Background(), "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSameEvent(t *testing.T) {
	impact := 200
	a := types.EventSummary{
		CompanyName:         "Acme Corp",
		StatusType:          types.StatusLayoff,
		Description:         "Acme Corp will lay off 200 people.",
		StartDate:           time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		EmployeeCountImpact: &impact,
	}
	b := a
	b.Description = "Acme trims 200 jobs."
	b.EmployeeCountImpact = nil

	var gotPrompt string
	var gotTier llm.ModelTier
	client := &MockLLMClient{
		GenerateContentFunc: func(_ context.Context, prompt string, tier llm.ModelTier) (string, error) {
			gotPrompt, gotTier = prompt, tier
			return " TRUE\n", nil
		},
	}

	same, err := newTestClassifier(client).SameEvent(context.Background(), a, b)
	require.NoError(t, err)
	assert.True(t, same)
	assert.Equal(t, llm.TierLite, gotTier)
	assert.Contains(t, gotPrompt, "Employees affected: 200")
	assert.Contains(t, gotPrompt, "Employees affected: unknown")
	assert.Contains(t, gotPrompt, "Start date: 2026-01-05")
	assert.False(t, strings.Contains(gotPrompt, "{{."))
}

func TestSameEvent_Error(t *testing.T) {
	client := &MockLLMClient{
		GenerateContentFunc: func(context.Context, string, llm.ModelTier) (string, error) {
			return "", errors.New("quota exceeded")
		},
	}

	same, err := newTestClassifier(client).SameEvent(context.Background(), types.EventSummary{}, types.EventSummary{})
	require.Error(t, err)
	assert.False(t, same)

	var clsErr *Error
	require.True(t, errors.As(err, &clsErr))
	assert.Equal(t, "same-event", clsErr.Op)
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"true", true},
		{"True", true},
		{"  true \n", true},
		{`"true"`, true},
		{"'TRUE'", true},
		{"```\ntrue\n```", true},
		{"```text\ntrue\n```", true},
		{"`true`", true},
		{"```true```", true},
		{"```true\n```", true},
		{"```json\n\"true\"\n```", true},
		{"false", false},
		{"FALSE", false},
		{"", false},
		{"yes", false},
		{"true.", false},
		{"true, they are the same", false},
		{"I think this is true", false},
		{"```\nfalse\ntrue\n```", false},
		{"```\nnot the same\ntrue\n```", false},
		{"```true\nfalse\n```", false},
		{"```false\n```", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseVerdict(tt.raw))
		})
	}
}

func TestError_Format(t *testing.T) {
	err := &Error{Op: "extract", Message: "model call failed", Cause: errors.New("boom")}
	assert.Equal(t, "classifier extract failed: model call failed: boom", err.Error())
	assert.Equal(t, "boom", errors.Unwrap(err).Error())

	assert.Equal(t, "classifier extract failed: bad", (&Error{Op: "extract", Message: "bad"}).Error())
}
