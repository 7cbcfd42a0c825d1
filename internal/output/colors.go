package output

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// ColorScheme defines the colors used for the parts of an event line.
type ColorScheme struct {
	Method      *color.Color
	URL         *color.Color
	StatusOK    *color.Color
	StatusWarn  *color.Color
	StatusError *color.Color
	Name        *color.Color
	Job         *color.Color
	Dim         *color.Color
}

// DefaultColorScheme returns the default color scheme.
func DefaultColorScheme() *ColorScheme {
	s := &ColorScheme{
		Method:      color.New(color.FgBlue, color.Bold),
		URL:         color.New(color.FgCyan),
		StatusOK:    color.New(color.FgGreen, color.Bold),
		StatusWarn:  color.New(color.FgYellow, color.Bold),
		StatusError: color.New(color.FgRed, color.Bold),
		Name:        color.New(color.FgMagenta, color.Bold),
		Job:         color.New(color.FgYellow),
		Dim:         color.New(color.Faint),
	}
	for _, c := range s.all() {
		c.EnableColor()
	}
	return s
}

// NoColorScheme returns a color scheme with all colors disabled.
func NoColorScheme() *ColorScheme {
	s := DefaultColorScheme()
	for _, c := range s.all() {
		c.DisableColor()
	}
	return s
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{s.Method, s.URL, s.StatusOK, s.StatusWarn, s.StatusError, s.Name, s.Job, s.Dim}
}

// ColorEnabled reports whether output written to w should be colored: w
// is a terminal, colors were not disabled and NO_COLOR is unset.
func ColorEnabled(w io.Writer, noColor bool) bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SuccessIcon returns a checkmark, green unless noColor.
func SuccessIcon(noColor bool) string { return icon("✓", color.FgGreen, noColor) }

// ErrorIcon returns a cross, red unless noColor.
func ErrorIcon(noColor bool) string { return icon("✗", color.FgRed, noColor) }

// InfoIcon returns an info sign, blue unless noColor.
func InfoIcon(noColor bool) string { return icon("ℹ", color.FgBlue, noColor) }

func icon(symbol string, fg color.Attribute, noColor bool) string {
	if noColor {
		return symbol
	}
	c := color.New(fg)
	c.EnableColor()
	return c.Sprint(symbol)
}
