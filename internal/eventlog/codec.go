package eventlog

import (
	"encoding/json"
	"fmt"
)

// Nested values (tag lists, stat sheets) travel as JSON strings inside the flat
// field maps. These helpers are the only place that encoding happens.

func EncodeStrings(values []string) string {
	if values == nil {
		values = []string{}
	}
	data, _ := json.Marshal(values)
	return string(data)
}

func DecodeStrings(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode string list: %w", err)
	}
	return out, nil
}

func EncodeObject(obj map[string]any) (string, error) {
	if len(obj) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("encode object: %w", err)
	}
	return string(data), nil
}

// DecodeObject returns an empty, non-nil map for empty input.
func DecodeObject(raw string) (map[string]any, error) {
	out := map[string]any{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
