// Package ui renders CLI output: status badges, headers, and run summaries.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/zlyuan/issuedash/internal/record"
	"github.com/zlyuan/issuedash/internal/syncer"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	faintStyle  = lipgloss.NewStyle().Faint(true)

	statusStyles = map[record.Status]lipgloss.Style{
		record.StatusDone:       lipgloss.NewStyle().Foreground(lipgloss.Color("10")), // green
		record.StatusInProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("12")), // blue
		record.StatusPending:    lipgloss.NewStyle().Foreground(lipgloss.Color("11")), // yellow
		record.StatusBlocked:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")),  // red
	}

	outcomeStyles = map[string]lipgloss.Style{
		syncer.OutcomeSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		syncer.OutcomePartial: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		syncer.OutcomeFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
)

// ColorEnabled reports whether the terminal supports color output.
func ColorEnabled() bool {
	return termenv.EnvColorProfile() != termenv.Ascii
}

// Header renders a bold section header.
func Header(text string) string {
	return headerStyle.Render(text)
}

// Faint renders de-emphasized text.
func Faint(text string) string {
	return faintStyle.Render(text)
}

// RenderStatus renders a colored status badge.
func RenderStatus(s record.Status) string {
	if style, ok := statusStyles[s]; ok {
		return style.Render(string(s))
	}
	return string(s)
}

// RenderOutcome renders a colored sync outcome.
func RenderOutcome(outcome string) string {
	if style, ok := outcomeStyles[outcome]; ok {
		return style.Render(outcome)
	}
	return outcome
}

// IssueLine renders one issue as a single list row.
func IssueLine(iss *record.Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %-12s %s", iss.Date.Format(record.DateLayout), RenderStatus(iss.Status), iss.Description)
	if iss.Channel != "" {
		b.WriteString(Faint("  [" + iss.Channel + "]"))
	}
	if iss.Notes != "" {
		b.WriteString(Faint("  *"))
	}
	return b.String()
}

// SyncSummary renders a finished run for the terminal.
func SyncSummary(res *syncer.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", Header("Sync"), RenderOutcome(res.Outcome))
	fmt.Fprintf(&b, "  fetched:   %d\n", res.Fetched)
	fmt.Fprintf(&b, "  inserted:  %d\n", res.Inserted)
	fmt.Fprintf(&b, "  updated:   %d\n", res.Updated)
	fmt.Fprintf(&b, "  unchanged: %d\n", res.Unchanged)
	if res.Pruned > 0 {
		fmt.Fprintf(&b, "  pruned:    %d\n", res.Pruned)
	}
	if len(res.Rejections) > 0 {
		fmt.Fprintf(&b, "  rejected:  %d\n", len(res.Rejections))
		for _, rej := range res.Rejections {
			fmt.Fprintf(&b, "    %s\n", Faint(rej.String()))
		}
	}
	if res.Suspicious {
		b.WriteString("  warning: empty snapshot against populated store, nothing applied\n")
	}
	return b.String()
}
