// Package tui renders conductor state for terminals.
package tui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Table renders sessions as aligned columns. The state is the last column
// so color codes never shift the alignment.
type Table struct {
	profile termenv.Profile
}

// NewTable returns a Table. Without color every cell is plain text, which
// keeps piped output greppable.
func NewTable(color bool) *Table {
	p := termenv.Ascii
	if color {
		p = termenv.ColorProfile()
	}
	return &Table{profile: p}
}

// Sessions writes one row per session.
func (t *Table) Sessions(w io.Writer, sessions []*domain.Session) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LOT\tEXPIRY\tINPUT\tUPDATED\tSTATE")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			s.Lot, s.Expiry, s.OriginInput, s.Updated.Local().Format(time.DateTime), t.state(s.State))
	}
	return tw.Flush()
}

// History writes one row per transition.
func (t *Table) History(w io.Writer, rows []domain.Transition) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tINPUT\tSTATE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", r.At.Local().Format(time.DateTime), r.OriginInput, t.state(r.State))
	}
	return tw.Flush()
}

// Run writes a one-line summary of a run.
func (t *Table) Run(w io.Writer, run *domain.Run) {
	status := t.profile.String(string(run.Status))
	switch run.Status {
	case domain.RunFinished:
		status = status.Foreground(t.profile.Color("#22c55e"))
	case domain.RunFailed:
		status = status.Foreground(t.profile.Color("#ef4444"))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "run %s input %d pipeline %s: %s", run.ID, run.Input, run.Pipeline, status)
	if run.Error != "" {
		fmt.Fprintf(&b, " (%s)", run.Error)
	}
	fmt.Fprintln(w, b.String())
}

func (t *Table) state(s domain.SessionState) string {
	out := t.profile.String(string(s))
	switch s {
	case domain.StateRunning:
		out = out.Foreground(t.profile.Color("#22c55e")).Bold()
	case domain.StatePaused:
		out = out.Foreground(t.profile.Color("#f59e0b"))
	case domain.StateFinished:
		out = out.Faint()
	}
	return out.String()
}
