package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"
)

var templates = template.Must(
	template.New("page").Funcs(templateFuncs()).Parse(pageTemplate + cardTemplate),
)

// pageData is what the dashboard template renders.
type pageData struct {
	StreamURL string
	Stats     []NameStats
	Callbacks []CallbackEvent
	Events    []FetchEvent
}

// renderPage renders the dashboard, newest events first.
func renderPage(streamURL string, stats []NameStats, callbacks []CallbackEvent, events []FetchEvent) (string, error) {
	data := pageData{
		StreamURL: streamURL,
		Stats:     stats,
		Callbacks: reversed(callbacks),
		Events:    reversed(events),
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "page", data); err != nil {
		return "", fmt.Errorf("render monitor page: %w", err)
	}
	return buf.String(), nil
}

// renderCard renders the HTML card of one event.
func renderCard(ev FetchEvent) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "card", ev); err != nil {
		return "", fmt.Errorf("render event card: %w", err)
	}
	return buf.String(), nil
}

func reversed[T any](in []T) []T {
	out := make([]T, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatLatency": formatLatency,
		"formatTime":    formatTime,
		"outcomes":      outcomes,
		"toJSON":        toJSON,
	}
}

func formatLatency(d time.Duration) string {
	switch {
	case d == 0:
		return "0"
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000)
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("15:04:05.000")
}

// outcomes formats counts as "error 1, success 3".
func outcomes(byType map[string]int64) string {
	keys := make([]string, 0, len(byType))
	for k := range byType {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", k, byType[k]))
	}
	return strings.Join(parts, ", ")
}

func toJSON(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
