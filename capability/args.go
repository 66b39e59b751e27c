package capability

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Args gives provider implementations typed access to a tool's JSON argument
// object. Accessors never fail loudly: the first missing or mistyped field is
// remembered and reported by Err, so a tool can read everything it needs and
// check once.
type Args struct {
	values map[string]any
	err    error
}

// ParseArgs decodes a JSON object. An empty string is treated as "{}".
func ParseArgs(jsonArgs string) (*Args, error) {
	trimmed := strings.TrimSpace(jsonArgs)
	if trimmed == "" || trimmed == "null" {
		trimmed = "{}"
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	dec.UseNumber()
	var values map[string]any
	if err := dec.Decode(&values); err != nil {
		return nil, fmt.Errorf("parse arguments: %w", err)
	}
	if values == nil {
		return nil, fmt.Errorf("parse arguments: expected a JSON object")
	}
	return &Args{values: values}, nil
}

// Err returns the first field error recorded by an accessor.
func (a *Args) Err() error {
	return a.err
}

func (a *Args) fail(err error) {
	if a.err == nil {
		a.err = err
	}
}

// Has reports whether key is present and not null.
func (a *Args) Has(key string) bool {
	v, ok := a.values[key]
	return ok && v != nil
}

// String returns a required string field.
func (a *Args) String(key string) string {
	v, ok := a.values[key]
	if !ok || v == nil {
		a.fail(fmt.Errorf("missing required field %q", key))
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		a.fail(fmt.Errorf("field %q must be a string", key))
		return ""
	}
}

// OptString returns an optional string field, or def when absent.
func (a *Args) OptString(key, def string) string {
	if !a.Has(key) {
		return def
	}
	return a.String(key)
}

// Int returns a required integer field. Numeric strings are accepted.
func (a *Args) Int(key string) int {
	v, ok := a.values[key]
	if !ok || v == nil {
		a.fail(fmt.Errorf("missing required field %q", key))
		return 0
	}
	var text string
	switch n := v.(type) {
	case json.Number:
		text = n.String()
	case string:
		text = strings.TrimSpace(n)
	default:
		a.fail(fmt.Errorf("field %q must be a number", key))
		return 0
	}
	i, err := strconv.Atoi(text)
	if err != nil {
		f, ferr := strconv.ParseFloat(text, 64)
		if ferr != nil || f != float64(int(f)) {
			a.fail(fmt.Errorf("field %q must be an integer", key))
			return 0
		}
		i = int(f)
	}
	return i
}
