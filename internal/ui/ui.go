// Package ui renders phase timelines and command results for the terminal.
package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/phase"
	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/store"
)

// Semantic color palette.
var (
	colorPrimary = lipgloss.Color("#00BFFF")
	colorSuccess = lipgloss.Color("#00E676")
	colorDanger  = lipgloss.Color("#FF5252")
	colorMuted   = lipgloss.Color("#8C8C8C")
	colorBlue    = lipgloss.Color("#5B8DEF")
)

var (
	styleHeader   = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	styleOpen     = lipgloss.NewStyle().Bold(true).Foreground(colorBlue)
	styleClosed   = lipgloss.NewStyle().Foreground(colorSuccess)
	styleUnopened = lipgloss.NewStyle().Foreground(colorMuted)
	styleError    = lipgloss.NewStyle().Bold(true).Foreground(colorDanger)
	styleOK       = lipgloss.NewStyle().Bold(true).Foreground(colorSuccess)
	styleDim      = lipgloss.NewStyle().Foreground(colorMuted)
)

// State icons.
const (
	iconOpen     = "◎"
	iconClosed   = "✓"
	iconUnopened = "·"
)

// Printer writes human-readable output. Results go to Out, diagnostics to Err.
type Printer struct {
	Out io.Writer
	Err io.Writer
}

// New returns a Printer writing to out and errOut.
func New(out, errOut io.Writer) *Printer {
	return &Printer{Out: out, Err: errOut}
}

// Error prints an error line.
func (p *Printer) Error(msg string) {
	fmt.Fprintf(p.Err, "%s %s\n", styleError.Render("error:"), msg)
}

// Success prints a confirmation line.
func (p *Printer) Success(msg string) {
	fmt.Fprintf(p.Err, "%s %s\n", styleOK.Render(iconClosed), msg)
}

// Info prints a de-emphasized line.
func (p *Printer) Info(msg string) {
	fmt.Fprintln(p.Err, styleDim.Render(msg))
}

// Challenge prints a challenge header followed by its timeline.
func (p *Printer) Challenge(c store.Challenge, phases []phase.Instance) {
	fmt.Fprintf(p.Out, "%s %s %s\n", styleHeader.Render("challenge"), c.ID, styleDim.Render("("+c.Status+")"))
	if c.Name != "" {
		fmt.Fprintf(p.Out, "  name:      %s\n", c.Name)
	}
	fmt.Fprintf(p.Out, "  template:  %s\n", c.TimelineTemplateID)
	fmt.Fprintf(p.Out, "  start:     %s\n\n", formatTime(c.StartDate))
	p.Timeline(phases)
}

// Timeline prints one row per phase: state, name, scheduled window,
// duration and predecessor.
func (p *Printer) Timeline(phases []phase.Instance) {
	if len(phases) == 0 {
		fmt.Fprintln(p.Out, styleDim.Render("  (no phases)"))
		return
	}
	width := 0
	for _, in := range phases {
		width = max(width, len(in.Name))
	}
	for _, in := range phases {
		pred := ""
		if !in.IsRoot() {
			pred = styleDim.Render(" after " + in.Predecessor)
		}
		fmt.Fprintf(p.Out, "  %s %-*s  %s → %s  %8s%s\n",
			stateIcon(in.State()), width, in.Name,
			formatTime(in.ScheduledStart), formatTime(in.ScheduledEnd),
			FormatDuration(in.Duration), pred)
		fmt.Fprintf(p.Out, "    %s\n", styleDim.Render(in.ID))
	}
}

// Definitions prints the phase definition catalog.
func (p *Printer) Definitions(defs []phase.Definition) {
	fmt.Fprintln(p.Out, styleHeader.Render("phase definitions"))
	for _, d := range defs {
		fmt.Fprintf(p.Out, "  %-36s %-24s %8s\n", d.ID, d.Name, FormatDuration(d.DefaultDuration))
	}
}

// Templates prints timeline templates and their entries in authoring order.
func (p *Printer) Templates(templates []phase.Template) {
	fmt.Fprintln(p.Out, styleHeader.Render("timeline templates"))
	for _, t := range templates {
		status := styleOK.Render("active")
		if !t.IsActive {
			status = styleDim.Render("inactive")
		}
		fmt.Fprintf(p.Out, "  %s %s %s\n", t.ID, t.Name, status)
		for _, e := range t.Entries {
			line := fmt.Sprintf("    - %s %s", e.PhaseID, FormatDuration(e.DefaultDuration))
			if e.Predecessor != "" {
				line += " after " + e.Predecessor
			}
			fmt.Fprintln(p.Out, line)
		}
	}
}

// FormatDuration renders seconds as a compact "1d2h3m" string.
func FormatDuration(secs int64) string {
	if secs == 0 {
		return "0s"
	}
	d := time.Duration(secs) * time.Second
	var b strings.Builder
	if days := d / (24 * time.Hour); days > 0 {
		fmt.Fprintf(&b, "%dd", days)
		d -= days * 24 * time.Hour
	}
	if h := d / time.Hour; h > 0 {
		fmt.Fprintf(&b, "%dh", h)
		d -= h * time.Hour
	}
	if m := d / time.Minute; m > 0 {
		fmt.Fprintf(&b, "%dm", m)
		d -= m * time.Minute
	}
	if s := d / time.Second; s > 0 {
		fmt.Fprintf(&b, "%ds", s)
	}
	return b.String()
}

func stateIcon(s phase.State) string {
	switch s {
	case phase.StateOpen:
		return styleOpen.Render(iconOpen)
	case phase.StateClosed:
		return styleClosed.Render(iconClosed)
	default:
		return styleUnopened.Render(iconUnopened)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04")
}
