// Package output renders SDK results and monitor events for the CLI, as
// colored text, JSON or YAML.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/maplink/internal/monitor"
)

// Format is an output format.
type Format string

const (
	// FormatText is the default human-readable text format
	FormatText Format = "text"
	// FormatJSON writes one JSON document per value
	FormatJSON Format = "json"
	// FormatYAML writes YAML documents separated by ---
	FormatYAML Format = "yaml"
)

// ParseFormat parses a format name. An empty name is FormatText.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", s)
	}
}

// Printer writes values and events to w. It is safe for concurrent use.
type Printer struct {
	Format  Format
	Verbose bool
	NoColor bool

	mu     sync.Mutex
	w      io.Writer
	scheme *ColorScheme
	docs   int
}

// NewPrinter creates a printer. Colors are used only when w is a terminal
// and noColor is false.
func NewPrinter(w io.Writer, format Format, verbose, noColor bool) *Printer {
	noColor = !ColorEnabled(w, noColor)
	scheme := DefaultColorScheme()
	if noColor {
		scheme = NoColorScheme()
	}
	return &Printer{
		Format:  format,
		Verbose: verbose,
		NoColor: noColor,
		w:       w,
		scheme:  scheme,
	}
}

// Value writes a result. Text output is indented JSON.
func (p *Printer) Value(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.Format {
	case FormatYAML:
		return p.writeYAML(v)
	case FormatJSON:
		return p.writeJSON(v, "")
	default:
		return p.writeJSON(v, "  ")
	}
}

// Fetch writes a monitor fetch event.
func (p *Printer) Fetch(ev monitor.FetchEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.Format {
	case FormatJSON:
		return p.writeJSON(ev, "")
	case FormatYAML:
		return p.writeYAML(ev)
	}

	s := p.scheme
	d := ev.Data

	var buf strings.Builder
	fmt.Fprintf(&buf, "%s %s %s", s.Name.Sprintf("[%s]", ev.Name), s.Method.Sprint(d.Request.Method), s.URL.Sprint(d.Request.URL))
	if d.JobID != "" {
		fmt.Fprintf(&buf, " %s", s.Job.Sprintf("job=%s", d.JobID))
	}
	buf.WriteString("\n")

	status := d.Response.Status
	if status == "" {
		status = d.Response.Type
	}
	fmt.Fprintf(&buf, "  ◀ %s %s\n", p.statusColor(d.Response).Sprint(status), s.Dim.Sprintf("(%dms)", d.Duration))

	if p.Verbose {
		if d.Request.Body != nil {
			buf.WriteString("  Request:\n")
			buf.WriteString(indentJSON(d.Request.Body))
			buf.WriteString("\n")
		}
		if d.Response.Data != nil {
			buf.WriteString("  Response:\n")
			buf.WriteString(indentJSON(d.Response.Data))
			buf.WriteString("\n")
		}
	}

	_, err := io.WriteString(p.w, buf.String())
	return err
}

// Callback writes a job callback.
func (p *Printer) Callback(ev monitor.CallbackEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.Format {
	case FormatJSON:
		return p.writeJSON(ev, "")
	case FormatYAML:
		return p.writeYAML(ev)
	}

	s := p.scheme
	icon := InfoIcon(p.NoColor)
	desc := ev.Description
	switch {
	case ev.Solved():
		icon = SuccessIcon(p.NoColor)
		desc = s.StatusOK.Sprint(desc)
	case ev.Final():
		icon = ErrorIcon(p.NoColor)
		desc = s.StatusError.Sprint(desc)
	}

	_, err := fmt.Fprintf(p.w, "%s %s %s %s %s\n",
		icon,
		s.Dim.Sprint(ev.Time().Format("15:04:05")),
		s.Job.Sprintf("job=%s", ev.JobID),
		ev.Type,
		desc)
	return err
}

func (p *Printer) statusColor(r monitor.ResponseData) interface{ Sprint(...any) string } {
	switch {
	case r.OK:
		return p.scheme.StatusOK
	case r.Type == monitor.TypeFailure && r.Code < 500:
		return p.scheme.StatusWarn
	default:
		return p.scheme.StatusError
	}
}

func (p *Printer) writeJSON(v any, indent string) error {
	enc := json.NewEncoder(p.w)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(v)
}

// writeYAML goes through JSON so json tags name the fields.
func (p *Printer) writeYAML(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}

	if p.docs > 0 {
		if _, err := io.WriteString(p.w, "---\n"); err != nil {
			return err
		}
	}
	p.docs++

	enc := yaml.NewEncoder(p.w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

// indentJSON pretty-prints v, indented under a section label.
func indentJSON(v any) string {
	var raw []byte
	switch b := v.(type) {
	case string:
		raw = []byte(b)
	case []byte:
		raw = b
	default:
		var err error
		if raw, err = json.Marshal(v); err != nil {
			return fmt.Sprintf("    %v", v)
		}
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "    ", "  "); err != nil {
		return "    " + string(raw)
	}
	return "    " + pretty.String()
}
