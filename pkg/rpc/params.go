package rpc

import (
	"errors"
	"fmt"
)

// ErrMissingParameter is wrapped by accessors when a required parameter is absent.
var ErrMissingParameter = errors.New("missing required parameter")

// Params holds the named arguments of a command.
type Params map[string]any

// Has reports whether name is present and not null.
func (p Params) Has(name string) bool {
	v, ok := p[name]
	return ok && v != nil
}

func missing(name string) error {
	return fmt.Errorf("%w: %s", ErrMissingParameter, name)
}

func wrongType(name, want string, v any) error {
	return fmt.Errorf("parameter %s must be %s, got %T", name, want, v)
}

// String returns a required string parameter.
func (p Params) String(name string) (string, error) {
	if !p.Has(name) {
		return "", missing(name)
	}
	s, ok := p[name].(string)
	if !ok {
		return "", wrongType(name, "a string", p[name])
	}
	return s, nil
}

// OptString returns a string parameter or def when it is absent.
func (p Params) OptString(name, def string) (string, error) {
	if !p.Has(name) {
		return def, nil
	}
	return p.String(name)
}

// Float returns a required numeric parameter.
func (p Params) Float(name string) (float64, error) {
	if !p.Has(name) {
		return 0, missing(name)
	}
	switch v := p[name].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, wrongType(name, "a number", v)
	}
}

// Bool returns a boolean parameter or def when it is absent.
func (p Params) Bool(name string, def bool) (bool, error) {
	if !p.Has(name) {
		return def, nil
	}
	b, ok := p[name].(bool)
	if !ok {
		return false, wrongType(name, "a boolean", p[name])
	}
	return b, nil
}

// StringSlice returns a required list of strings. A single string is
// accepted as a one-element list.
func (p Params) StringSlice(name string) ([]string, error) {
	if !p.Has(name) {
		return nil, missing(name)
	}
	switch v := p[name].(type) {
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("parameter %s[%d] must be a string, got %T", name, i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, wrongType(name, "a list of strings", v)
	}
}
