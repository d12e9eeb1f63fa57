// Package extraction prepares page text for the classifier and tags the
// resulting drafts with their source.
package extraction

import (
	"context"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/jonathan/workforce-signals/internal/classifier"
	"github.com/jonathan/workforce-signals/internal/logging"
	"github.com/jonathan/workforce-signals/internal/types"
)

// MaxInputChars is how much page text is sent to the classifier.
const MaxInputChars = 15000

// Extractor turns raw page text into validated drafts.
type Extractor struct {
	classifier classifier.Classifier
	logger     *log.Logger
}

// New creates an Extractor. A nil logger uses the default logger.
func New(c classifier.Classifier, logger *log.Logger) *Extractor {
	return &Extractor{classifier: c, logger: logging.OrDefault(logger)}
}

// Extract returns the drafts found in text, each tagged with source.
// Classifier failures are logged and yield no drafts.
func (e *Extractor) Extract(ctx context.Context, text string, source types.SourceDescriptor) []types.Draft {
	input := Truncate(text, MaxInputChars)

	drafts, err := e.classifier.Extract(ctx, input)
	if err != nil {
		e.logger.Warn("extraction failed", "source", source.Name, "err", err)
		return nil
	}

	out := make([]types.Draft, 0, len(drafts))
	for _, d := range drafts {
		d.Source = source
		if d.SourceURL == "" {
			d.SourceURL = source.FetchTarget
		}
		if err := d.Validate(); err != nil {
			e.logger.Warn("dropping invalid draft", "source", source.Name, "company", d.CompanyName, "err", err)
			continue
		}
		out = append(out, d)
	}

	e.logger.Debug("extracted drafts", "source", source.Name, "found", len(drafts), "kept", len(out),
		"chars", utf8.RuneCountInString(input))
	return out
}

// Truncate returns the first n characters of s without splitting a rune.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
