// Package llmjson decodes the JSON-ish payloads language models produce:
// fenced blocks, trailing commas, single quotes and prose around the object.
package llmjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/sen"
)

// ErrNoJSON is returned when the text holds no object or array.
var ErrNoJSON = errors.New("no JSON object found in model output")

// StripFences removes a surrounding markdown code fence, if any.
func StripFences(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}

// Extract parses the outermost object or array found in text.
func Extract(text string) (any, error) {
	t := StripFences(text)
	start := strings.IndexAny(t, "{[")
	if start < 0 {
		return nil, ErrNoJSON
	}
	closer := byte('}')
	if t[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(t, closer)
	if end <= start {
		return nil, ErrNoJSON
	}
	v, err := sen.Parse([]byte(t[start : end+1]))
	if err != nil {
		return nil, fmt.Errorf("malformed model JSON: %w", err)
	}
	return v, nil
}

// Decode extracts the payload of text into v.
func Decode(text string, v any) error {
	data, err := Extract(text)
	if err != nil {
		return err
	}
	return remarshal(data, v)
}

// DecodePath decodes the first match of a JSONPath expression into v.
func DecodePath(text, path string, v any) error {
	data, err := Extract(text)
	if err != nil {
		return err
	}
	x, err := jp.ParseString(path)
	if err != nil {
		return fmt.Errorf("invalid path %q: %w", path, err)
	}
	matches := x.Get(data)
	if len(matches) == 0 {
		return fmt.Errorf("%w at %s", ErrNoJSON, path)
	}
	return remarshal(matches[0], v)
}

func remarshal(data, v any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("model JSON does not match expected shape: %w", err)
	}
	return nil
}
