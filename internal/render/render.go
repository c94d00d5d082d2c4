// Package render formats diffs, cards and deck statistics for a terminal.
package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/conorfennell/studydeck/internal/diff"
	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/srs"
)

var (
	colorAdd     = lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#25D366"}
	colorRemove  = lipgloss.AdaptiveColor{Light: "#D7263D", Dark: "#F25D94"}
	colorDim     = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#626262"}
	colorPrimary = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"}
)

// Printer writes styled output. Colors are dropped automatically when w is
// not a terminal.
type Printer struct {
	w io.Writer

	addStyle    lipgloss.Style
	removeStyle lipgloss.Style
	sameStyle   lipgloss.Style
	titleStyle  lipgloss.Style
	labelStyle  lipgloss.Style
}

func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:           w,
		addStyle:    r.NewStyle().Foreground(colorAdd),
		removeStyle: r.NewStyle().Foreground(colorRemove),
		sameStyle:   r.NewStyle().Foreground(colorDim),
		titleStyle:  r.NewStyle().Bold(true).Foreground(colorPrimary),
		labelStyle:  r.NewStyle().Foreground(colorDim),
	}
}

// Diff writes one line per diff entry, prefixed "+ ", "- " or two spaces,
// followed by a summary line.
func (p *Printer) Diff(lines []diff.Line) error {
	var b strings.Builder
	for _, l := range lines {
		switch l.Op {
		case diff.Add:
			b.WriteString(p.addStyle.Render("+ " + l.Text))
		case diff.Remove:
			b.WriteString(p.removeStyle.Render("- " + l.Text))
		default:
			b.WriteString(p.sameStyle.Render("  " + l.Text))
		}
		b.WriteByte('\n')
	}
	b.WriteString(p.labelStyle.Render(Summary(diff.CountChanges(lines))))
	b.WriteByte('\n')
	_, err := io.WriteString(p.w, b.String())
	return err
}

// Summary describes diff counts in one line.
func Summary(c diff.Counts) string {
	if !c.Changed() {
		return fmt.Sprintf("no changes (%d lines)", c.Same)
	}
	return fmt.Sprintf("%d added, %d removed, %d unchanged", c.Added, c.Removed, c.Same)
}

// Stats writes a one-line deck summary.
func (p *Printer) Stats(s srs.Stats) error {
	_, err := fmt.Fprintf(p.w, "%s %d cards: %d new, %d reviewing, %d mastered. %s\n",
		p.titleStyle.Render("deck"),
		s.Total, s.New, s.Reviewing, s.Mastered,
		p.titleStyle.Render(fmt.Sprintf("%d due", s.Due)),
	)
	return err
}

// Card writes a card's content and scheduling state.
func (p *Printer) Card(c domain.Flashcard, now time.Time) error {
	var b strings.Builder
	b.WriteString(p.titleStyle.Render(c.Front))
	b.WriteByte('\n')
	if c.Back != "" {
		b.WriteString(c.Back)
		b.WriteByte('\n')
	}
	if c.Context != "" {
		b.WriteString(p.labelStyle.Render(c.Context))
		b.WriteByte('\n')
	}
	b.WriteString(p.labelStyle.Render(fmt.Sprintf("id %s  deck %q  %s  interval %dd  ease %.2f  %s",
		shortID(c.ID), c.Deck, c.Status, c.Interval, c.EaseFactor, dueLabel(c, now))))
	b.WriteByte('\n')
	_, err := io.WriteString(p.w, b.String())
	return err
}

func dueLabel(c domain.Flashcard, now time.Time) string {
	due, ok := srs.DueDate(c)
	switch {
	case !ok:
		return "due now (never reviewed)"
	case !now.Before(due):
		return "due now"
	default:
		return "due " + due.Format(time.DateOnly)
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
