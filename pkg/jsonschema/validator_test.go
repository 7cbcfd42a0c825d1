package jsonschema

import (
	"errors"
	"strings"
	"testing"
)

const callbackSchema = `{
	"type": "object",
	"properties": {
		"jobId": { "type": "string", "minLength": 1 },
		"type": { "type": "string" },
		"description": { "type": "string" },
		"createdAt": { "type": "integer" }
	},
	"required": ["jobId", "type"]
}`

func TestSchema_Validate(t *testing.T) {
	s, err := Compile("callback.json", callbackSchema)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	tests := []struct {
		name      string
		body      string
		wantValid bool
		wantMsg   string
	}{
		{
			name:      "valid event",
			body:      `{"jobId": "abc", "type": "SOLVED", "createdAt": 1700000000000}`,
			wantValid: true,
		},
		{
			name:    "missing required property",
			body:    `{"type": "SOLVED"}`,
			wantMsg: "jobId",
		},
		{
			name:    "wrong type",
			body:    `{"jobId": "abc", "type": "SOLVED", "createdAt": "yesterday"}`,
			wantMsg: "/createdAt",
		},
		{
			name:    "empty job id",
			body:    `{"jobId": "", "type": "SOLVED"}`,
			wantMsg: "/jobId",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Validate([]byte(tt.body))
			if tt.wantValid {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}

			var ve ValidationErrors
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationErrors, got %T (%v)", err, err)
			}
			if !strings.Contains(ve.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", ve.Error(), tt.wantMsg)
			}
		})
	}
}

func TestSchema_ValidateMalformed(t *testing.T) {
	s := MustCompile("callback.json", callbackSchema)

	err := s.Validate([]byte(`{"jobId":`))
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	var ve ValidationErrors
	if errors.As(err, &ve) {
		t.Error("malformed JSON should not be reported as a schema violation")
	}
}

func TestCompile_InvalidSchema(t *testing.T) {
	if _, err := Compile("", `{"type": 12}`); err == nil {
		t.Error("expected error for invalid schema")
	}
}

func TestValidationErrors_Error(t *testing.T) {
	ve := ValidationErrors{errors.New("a"), errors.New("b")}
	if got := ve.Error(); got != "a; b" {
		t.Errorf("Error() = %q, want %q", got, "a; b")
	}
	if got := (ValidationErrors{}).Error(); got != "" {
		t.Errorf("empty Error() = %q", got)
	}
}
