package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadRequest reads a YAML or JSON request document into v, which is
// decoded with its json tags. Every {{NAME}} in the file is replaced by
// vars[NAME] first.
func LoadRequest(path string, vars map[string]string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read request file: %w", err)
	}
	return DecodeRequest([]byte(ProcessVariables(string(data), vars)), v)
}

// DecodeRequest decodes a YAML or JSON document into v through JSON, so
// json tags and json.RawMessage fields apply.
func DecodeRequest(data []byte, v any) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse request file: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("parse request file: empty document")
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("parse request file: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

// ProcessVariables replaces {{NAME}} placeholders.
func ProcessVariables(input string, vars map[string]string) string {
	result := input
	for key, value := range vars {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	return result
}

// MergeVariables merges two variable sets, the second taking precedence.
func MergeVariables(base, override map[string]string) map[string]string {
	result := make(map[string]string, len(base)+len(override))
	for key, value := range base {
		result[key] = value
	}
	for key, value := range override {
		result[key] = value
	}
	return result
}

// ParseVariables parses NAME=value pairs.
func ParseVariables(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid variable %q, want NAME=value", p)
		}
		out[strings.TrimSpace(name)] = value
	}
	return out, nil
}
