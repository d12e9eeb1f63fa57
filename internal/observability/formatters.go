// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonathan/workforce-signals/internal/pipeline"
	"github.com/jonathan/workforce-signals/internal/scoring"
	"github.com/jonathan/workforce-signals/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	inner := boxWidth - 4
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %s │\n", pad(title, inner))
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %s │\n", pad(line, inner))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// pad truncates or right-pads s to exactly width runes.
func pad(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n > width {
		r := []rune(s)
		return string(r[:width-3]) + "..."
	}
	return s + strings.Repeat(" ", width-n)
}

// PrintRunStats outputs the counters of one ingestion run.
func (p *Printer) PrintRunStats(stats pipeline.Stats) {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Sources:   %d processed, %d failed\n", stats.SourcesProcessed, stats.SourcesFailed))
	sb.WriteString(fmt.Sprintf("Found:     %d draft events\n", stats.EventsFound))
	sb.WriteString(fmt.Sprintf("Inserted:  %d\n", stats.Inserted))
	sb.WriteString(fmt.Sprintf("Merged:    %d\n", stats.Merged))
	sb.WriteString(fmt.Sprintf("Skipped:   %d\n", stats.Skipped))
	sb.WriteString(fmt.Sprintf("Errors:    %d\n", stats.Errors))
	sb.WriteString(fmt.Sprintf("Duration:  %s", stats.Duration.Round(time.Millisecond)))
	if stats.Cancelled {
		sb.WriteString("\n\n⚠ run was cancelled before all sources were processed")
	}

	p.printBox("INGESTION RUN", sb.String())
}

// PrintEvent outputs one status event with its computed confidence.
func (p *Printer) PrintEvent(event *types.StatusEvent) {
	if event == nil {
		return
	}

	score, tier := scoring.Evaluate(event)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Company:     %s\n", event.CompanyName))
	sb.WriteString(fmt.Sprintf("Type:        %s (%s)\n", event.StatusType, event.Severity))
	sb.WriteString(fmt.Sprintf("Start:       %s\n", event.StartDate.Format(types.DateLayout)))
	if event.EndDate != nil {
		sb.WriteString(fmt.Sprintf("End:         %s\n", event.EndDate.Format(types.DateLayout)))
	}
	if event.EmployeeCountImpact != nil {
		sb.WriteString(fmt.Sprintf("Impact:      %d employees\n", *event.EmployeeCountImpact))
	}
	if len(event.AffectedDepartments) > 0 {
		sb.WriteString(fmt.Sprintf("Departments: %s\n", strings.Join(event.AffectedDepartments, ", ")))
	}
	sb.WriteString(fmt.Sprintf("Verified:    %t\n", event.Verified))
	sb.WriteString(fmt.Sprintf("Confidence:  %d (%s)\n", score, tier))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("Sources (%d):\n", len(event.Sources)))
	count := min(len(event.Sources), maxItemsToShow)
	for i := 0; i < count; i++ {
		s := event.Sources[i]
		sb.WriteString(fmt.Sprintf("  • %s [%d]\n", s.Name, s.Reliability))
	}
	if len(event.Sources) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(event.Sources)-maxItemsToShow))
	}

	p.printBox("STATUS EVENT "+event.ID.String(), strings.TrimSuffix(sb.String(), "\n"))
}

// PrintEvents outputs a one-line summary per event.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintEvents(events []types.StatusEvent) {
	if len(events) == 0 {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %s │\n", pad("NO EVENTS FOUND", boxWidth-4))
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	for i := range events {
		e := &events[i]
		score, tier := scoring.Evaluate(e)
		mark := " "
		if e.Verified {
			mark = "✓"
		}
		sb.WriteString(fmt.Sprintf("%s %s  %-14s %3d %-6s %s\n", mark, e.StartDate.Format(types.DateLayout),
			e.StatusType, score, tier, e.CompanyName))
	}

	p.printBox(fmt.Sprintf("STATUS EVENTS (%d)", len(events)), strings.TrimSuffix(sb.String(), "\n"))
}

// PrintSources outputs the configured source registry.
func (p *Printer) PrintSources(sources []types.SourceDescriptor) {
	if len(sources) == 0 {
		return
	}

	var sb strings.Builder
	for _, s := range sources {
		kind := s.Kind
		if kind == "" {
			kind = types.SourceKindPage
		}
		sb.WriteString(fmt.Sprintf("%3d  %-5s %s\n", s.Reliability, kind, s.Name))
	}

	p.printBox("SOURCE REGISTRY", strings.TrimSuffix(sb.String(), "\n"))
}
