// Package ui renders pipeline progress on the terminal.
package ui

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Stepper prints the phases of a broker run as they happen. Phase lines
// are cyan, detail lines plain, and the final outcome green or red.
type Stepper struct {
	writer  io.Writer
	phase   *color.Color
	success *color.Color
	failure *color.Color
}

// NewStepper creates a stepper writing to w. Colors are disabled when
// noColor is set, which tests and non-tty pipelines rely on.
func NewStepper(w io.Writer, noColor bool) *Stepper {
	s := &Stepper{
		writer:  w,
		phase:   color.New(color.FgCyan),
		success: color.New(color.FgGreen, color.Bold),
		failure: color.New(color.FgRed, color.Bold),
	}
	if noColor {
		s.phase.DisableColor()
		s.success.DisableColor()
		s.failure.DisableColor()
	}
	return s
}

// Phase announces the start of a pipeline phase.
func (s *Stepper) Phase(format string, args ...any) {
	s.phase.Fprintf(s.writer, "→ %s\n", fmt.Sprintf(format, args...))
}

// Detail prints an uncolored progress line under the current phase.
func (s *Stepper) Detail(format string, args ...any) {
	fmt.Fprintf(s.writer, "  %s\n", fmt.Sprintf(format, args...))
}

// Done marks the run as finished.
func (s *Stepper) Done(format string, args ...any) {
	s.success.Fprintf(s.writer, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Failed marks the run as failed with the causing error.
func (s *Stepper) Failed(err error) {
	s.failure.Fprintf(s.writer, "✗ %v\n", err)
}
