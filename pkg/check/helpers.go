package check

import (
	"fmt"
	"time"
)

// String reads an optional string key. ok is false when the key is absent.
func String(config map[string]any, key string) (value string, ok bool, err error) {
	raw, ok := config[key]
	if !ok {
		return "", false, nil
	}
	s, isString := raw.(string)
	if !isString {
		return "", false, fmt.Errorf("'%s' must be a string, got %T", key, raw)
	}
	return s, true, nil
}

// RequiredString reads a string key that must be present and non-empty.
func RequiredString(config map[string]any, key string) (string, error) {
	s, ok, err := String(config, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("config missing required key '%s'", key)
	}
	if s == "" {
		return "", fmt.Errorf("'%s' must not be empty", key)
	}
	return s, nil
}

// Int reads an optional integer key. JSON and YAML decoders hand numbers
// over as int, int64 or float64; all three are accepted.
func Int(config map[string]any, key string) (value int, ok bool, err error) {
	raw, ok := config[key]
	if !ok {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case int:
		return v, true, nil
	case int64:
		return int(v), true, nil
	case float64:
		if v != float64(int(v)) {
			return 0, false, fmt.Errorf("'%s' must be a whole number, got %v", key, v)
		}
		return int(v), true, nil
	default:
		return 0, false, fmt.Errorf("'%s' must be an integer, got %T", key, raw)
	}
}

// Duration reads an optional duration key given either as a
// time.Duration or as a duration string (e.g. "30s").
func Duration(config map[string]any, key string) (value time.Duration, ok bool, err error) {
	raw, ok := config[key]
	if !ok {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case time.Duration:
		return v, true, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, false, fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		return d, true, nil
	default:
		return 0, false, fmt.Errorf("'%s' must be a duration string, got %T", key, raw)
	}
}

// Object reads an optional JSON-object-shaped key.
func Object(config map[string]any, key string) (value map[string]any, ok bool, err error) {
	raw, ok := config[key]
	if !ok {
		return nil, false, nil
	}
	m, isMap := raw.(map[string]any)
	if !isMap {
		return nil, false, fmt.Errorf("'%s' must be an object, got %T", key, raw)
	}
	return m, true, nil
}
