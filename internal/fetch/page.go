package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonathan/workforce-signals/internal/logging"
	"github.com/jonathan/workforce-signals/internal/types"
	"github.com/mmcdole/gofeed"
)

// DefaultMaxFeedItems bounds how many feed entries are turned into text.
const DefaultMaxFeedItems = 25

// Page is the text content of one source at fetch time.
type Page struct {
	Source    types.SourceDescriptor
	URL       string
	Text      string
	FetchedAt time.Time
	Rendered  bool
}

// PageFetcher retrieves the current content of a source.
type PageFetcher interface {
	Fetch(ctx context.Context, source types.SourceDescriptor) (*Page, error)
}

// HTTPFetcher fetches page sources over HTTP with an optional browser
// fallback, and feed sources with gofeed.
type HTTPFetcher struct {
	Options      *Options
	Render       RenderFunc
	MaxFeedItems int
	Logger       *log.Logger
	now          func() time.Time
}

var _ PageFetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a fetcher. A nil render disables the browser fallback.
func NewHTTPFetcher(opts *Options, render RenderFunc, logger *log.Logger) *HTTPFetcher {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTTPFetcher{
		Options:      opts,
		Render:       render,
		MaxFeedItems: DefaultMaxFeedItems,
		Logger:       logging.OrDefault(logger),
		now:          time.Now,
	}
}

// Fetch retrieves source and returns its text.
func (f *HTTPFetcher) Fetch(ctx context.Context, source types.SourceDescriptor) (*Page, error) {
	res, err := URL(ctx, source.FetchTarget, f.Options)
	if err != nil {
		return nil, err
	}

	page := &Page{Source: source, URL: source.FetchTarget, FetchedAt: f.now().UTC()}

	if source.Kind == types.SourceKindFeed {
		text, err := f.feedText(res.Body)
		if err != nil {
			return nil, &Error{URL: source.FetchTarget, Message: "failed to parse feed", Cause: err}
		}
		page.Text = text
		return page, nil
	}

	selectors := source.Selectors
	if len(selectors) == 0 {
		selectors = NewsSelectors()
	}

	text, err := ExtractMainText(res.Body, selectors)
	if err != nil {
		return nil, &Error{URL: source.FetchTarget, Message: "failed to extract text", Cause: err}
	}
	page.Text = text

	if f.Render != nil && ShouldUseBrowser(text) {
		f.Logger.Debug("short page, rendering in browser", "source", source.Name, "chars", len(text))
		html, err := f.Render(ctx, source.FetchTarget)
		if err != nil {
			f.Logger.Warn("browser fallback failed", "source", source.Name, "err", err)
		} else if rendered, err := ExtractMainText(html, selectors); err == nil && len(rendered) > len(text) {
			page.Text = rendered
			page.Rendered = true
		}
	}

	if strings.TrimSpace(page.Text) == "" {
		return nil, &Error{URL: source.FetchTarget, Message: "no text content"}
	}
	return page, nil
}

// feedText flattens the newest feed items into one text document.
func (f *HTTPFetcher) feedText(body string) (string, error) {
	feed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return "", err
	}

	limit := f.MaxFeedItems
	if limit <= 0 {
		limit = DefaultMaxFeedItems
	}

	var sb strings.Builder
	for i, item := range feed.Items {
		if i >= limit {
			break
		}
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(strings.TrimSpace(item.Title))
		sb.WriteString("\n")
		if item.PublishedParsed != nil {
			fmt.Fprintf(&sb, "Published: %s\n", item.PublishedParsed.UTC().Format(types.DateLayout))
		}
		if item.Link != "" {
			fmt.Fprintf(&sb, "URL: %s\n", item.Link)
		}
		summary := item.Description
		if item.Content != "" {
			summary = item.Content
		}
		sb.WriteString(HTMLToText(summary))
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("feed has no items")
	}
	return text, nil
}
