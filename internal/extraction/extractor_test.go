package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jonathan/workforce-signals/internal/logging"
	"github.com/jonathan/workforce-signals/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClassifier struct {
	drafts   []types.Draft
	err      error
	lastText string
}

func (s *stubClassifier) Extract(_ context.Context, text string) ([]types.Draft, error) {
	s.lastText = text
	return s.drafts, s.err
}

func (s *stubClassifier) SameEvent(context.Context, types.EventSummary, types.EventSummary) (bool, error) {
	return false, nil
}

var reuters = types.SourceDescriptor{Name: "Reuters", FetchTarget: "https://reuters.com/business", Reliability: 95}

func draft(company string) types.Draft {
	return types.Draft{
		CompanyName: company,
		StatusType:  types.StatusLayoff,
		Severity:    types.SeverityHigh,
		StartDate:   time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		Description: company + " cuts jobs",
	}
}

func TestExtract_TagsDraftsWithSource(t *testing.T) {
	withURL := draft("Globex")
	withURL.SourceURL = "https://reuters.com/globex"
	stub := &stubClassifier{drafts: []types.Draft{draft("Acme Corp"), withURL}}

	got := New(stub, logging.Discard()).Extract(context.Background(), "body", reuters)

	require.Len(t, got, 2)
	for _, d := range got {
		assert.Equal(t, reuters, d.Source)
	}
	assert.Equal(t, "https://reuters.com/business", got[0].SourceURL)
	assert.Equal(t, "https://reuters.com/globex", got[1].SourceURL)
}

func TestExtract_ClassifierFailureYieldsNothing(t *testing.T) {
	stub := &stubClassifier{err: errors.New("model unavailable")}

	got := New(stub, logging.Discard()).Extract(context.Background(), "body", reuters)
	assert.Empty(t, got)
}

func TestExtract_DropsInvalidDrafts(t *testing.T) {
	invalid := draft("")
	negative := draft("Initech")
	n := -4
	negative.EmployeeCountImpact = &n
	stub := &stubClassifier{drafts: []types.Draft{invalid, draft("Acme Corp"), negative}}

	got := New(stub, logging.Discard()).Extract(context.Background(), "body", reuters)
	require.Len(t, got, 1)
	assert.Equal(t, "Acme Corp", got[0].CompanyName)
}

func TestExtract_TruncatesInput(t *testing.T) {
	stub := &stubClassifier{}
	long := strings.Repeat("é", MaxInputChars+500)

	New(stub, logging.Discard()).Extract(context.Background(), long, reuters)

	assert.Equal(t, MaxInputChars, utf8.RuneCountInString(stub.lastText))
	assert.True(t, utf8.ValidString(stub.lastText))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "", Truncate("abc", 0))
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "日本", Truncate("日本語", 2))
	assert.Equal(t, "日本語", Truncate("日本語", 3))
}
