package server

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// Event is a server-sent event.
type Event struct {
	ID   string
	Name string
	Data any
}

// NewEvent creates an event with a random id.
func NewEvent(name string, data any) Event {
	return Event{ID: uuid.NewString(), Name: name, Data: data}
}

// String formats the event for the wire. Multi-line data is split over
// several data fields so that clients reassemble it unchanged.
func (e Event) String() string {
	var sb strings.Builder
	if e.ID != "" {
		sb.WriteString("id: " + e.ID + "\n")
	}
	if e.Name != "" {
		sb.WriteString("event: " + e.Name + "\n")
	}
	for _, line := range strings.Split(stringify(e.Data), "\n") {
		sb.WriteString("data: " + line + "\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

func stringify(v any) string {
	switch d := v.(type) {
	case nil:
		return ""
	case string:
		return d
	case []byte:
		return string(d)
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
