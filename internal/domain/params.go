package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Params is a typed view over Request.Params. Values may come from Go code,
// YAML or JSON, so numbers are accepted in any numeric representation.
type Params map[string]any

// String returns the string under key; a present non-string is a TypeMismatch.
func (p Params) String(key string) (string, bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false, nil
	}
	switch s := v.(type) {
	case string:
		return s, s != "", nil
	case fmt.Stringer:
		return s.String(), true, nil
	default:
		return "", false, Errorf(KindTypeMismatch, "params", "%s: expected string, got %T", key, v)
	}
}

// Int returns the integer under key.
func (p Params) Int(key string) (int, bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return n, true, nil
	case int32:
		return int(n), true, nil
	case int64:
		return int(n), true, nil
	case uint:
		return int(n), true, nil
	case float64:
		return integral(key, n)
	case float32:
		return integral(key, float64(n))
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false, Errorf(KindTypeMismatch, "params", "%s: %v", key, err)
		}
		return i, true, nil
	default:
		return 0, false, Errorf(KindTypeMismatch, "params", "%s: expected integer, got %T", key, v)
	}
}

func integral(key string, f float64) (int, bool, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false, Errorf(KindTypeMismatch, "params", "%s: %v is not an integer", key, f)
	}
	return int(f), true, nil
}

// Duration returns the duration under key. Bare numbers are seconds.
func (p Params) Duration(key string) (time.Duration, bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch d := v.(type) {
	case time.Duration:
		return d, true, nil
	case int:
		return time.Duration(d) * time.Second, true, nil
	case int64:
		return time.Duration(d) * time.Second, true, nil
	case float64:
		return time.Duration(d * float64(time.Second)), true, nil
	case string:
		if parsed, err := time.ParseDuration(d); err == nil {
			return parsed, true, nil
		}
		secs, err := strconv.ParseFloat(strings.TrimSpace(d), 64)
		if err != nil {
			return 0, false, Errorf(KindTypeMismatch, "params", "%s: invalid duration %q", key, d)
		}
		return time.Duration(secs * float64(time.Second)), true, nil
	default:
		return 0, false, Errorf(KindTypeMismatch, "params", "%s: expected duration, got %T", key, v)
	}
}

// Bool returns the boolean under key.
func (p Params) Bool(key string) (bool, bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return false, false, nil
	}
	switch b := v.(type) {
	case bool:
		return b, true, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, false, Errorf(KindTypeMismatch, "params", "%s: %v", key, err)
		}
		return parsed, true, nil
	default:
		return false, false, Errorf(KindTypeMismatch, "params", "%s: expected bool, got %T", key, v)
	}
}

// Strings returns a list of strings under key. A single string is split on commas.
func (p Params) Strings(key string) ([]string, bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, false, nil
	}
	switch s := v.(type) {
	case []string:
		return s, len(s) > 0, nil
	case string:
		if s == "" {
			return nil, false, nil
		}
		parts := strings.Split(s, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, true, nil
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			str, ok := e.(string)
			if !ok {
				return nil, false, Errorf(KindTypeMismatch, "params", "%s: expected string element, got %T", key, e)
			}
			out = append(out, str)
		}
		return out, len(out) > 0, nil
	default:
		return nil, false, Errorf(KindTypeMismatch, "params", "%s: expected list of strings, got %T", key, v)
	}
}

// Slice returns a list of arbitrary values under key.
func (p Params) Slice(key string) ([]any, bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, false, nil
	}
	switch s := v.(type) {
	case []any:
		return s, true, nil
	case []string:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true, nil
	default:
		return nil, false, Errorf(KindTypeMismatch, "params", "%s: expected list, got %T", key, v)
	}
}

// Map returns a nested map under key.
func (p Params) Map(key string) (map[string]any, bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, false, nil
	}
	switch m := v.(type) {
	case map[string]any:
		return m, true, nil
	case Params:
		return m, true, nil
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true, nil
	default:
		return nil, false, Errorf(KindTypeMismatch, "params", "%s: expected map, got %T", key, v)
	}
}
