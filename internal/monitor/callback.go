package monitor

import (
	"time"

	"github.com/wesleyorama2/maplink/pkg/jsonschema"
)

// Callback event types and descriptions sent by the platform.
const (
	CallbackStatusChange = "STATUS_CHANGE"
	CallbackProgress     = "PROGRESS"

	StatusSolved    = "SOLVED"
	StatusTerminate = "TERMINATE"
	StatusFailed    = "FAILED"
)

// CallbackEvent is a job status notification posted by the platform.
type CallbackEvent struct {
	JobID       string `json:"jobId"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	CreatedAt   int64  `json:"createdAt,omitempty"` // unix milliseconds

	ReceivedAt time.Time `json:"receivedAt"`
}

// Time returns when the platform created the event, falling back to
// when it was received.
func (e CallbackEvent) Time() time.Time {
	if e.CreatedAt > 0 {
		return time.UnixMilli(e.CreatedAt)
	}
	return e.ReceivedAt
}

// Solved reports whether the event marks the job as solved.
func (e CallbackEvent) Solved() bool {
	return e.Type == CallbackStatusChange && e.Description == StatusSolved
}

// Final reports whether no further events are expected for the job.
func (e CallbackEvent) Final() bool {
	if e.Type != CallbackStatusChange {
		return false
	}
	switch e.Description {
	case StatusSolved, StatusTerminate, StatusFailed:
		return true
	}
	return false
}

// SolvedJob matches the SOLVED event of jobID.
func SolvedJob(jobID string) func(CallbackEvent) bool {
	return func(e CallbackEvent) bool {
		return e.JobID == jobID && e.Solved()
	}
}

// FinalJob matches the last event of jobID, whether solved or not.
func FinalJob(jobID string) func(CallbackEvent) bool {
	return func(e CallbackEvent) bool {
		return e.JobID == jobID && e.Final()
	}
}

const callbackSchemaDocument = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"jobId": { "type": "string", "minLength": 1 },
		"type": { "type": "string", "minLength": 1 },
		"description": { "type": ["string", "null"] },
		"createdAt": { "type": ["integer", "null"], "minimum": 0 }
	},
	"required": ["jobId", "type"]
}`

var callbackSchema = jsonschema.MustCompile("callback.json", callbackSchemaDocument)
