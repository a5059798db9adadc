package storage

import (
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Settings is one backend's configuration: its defaults with the operator's
// values laid over them. An empty value counts as unset.
type Settings struct {
	backend string
	values  map[string]string
}

// NewSettings merges overrides onto defaults for the named backend. Neither
// input map is modified.
func NewSettings(backend string, defaults, overrides map[string]string) Settings {
	values := make(map[string]string, len(defaults)+len(overrides))
	maps.Copy(values, defaults)
	maps.Copy(values, overrides)
	return Settings{backend: backend, values: values}
}

// Backend returns the backend name errors are reported against.
func (s Settings) Backend() string { return s.backend }

// Map returns a copy of the merged values.
func (s Settings) Map() map[string]string { return maps.Clone(s.values) }

// Invalid builds a ConfigError for key, carrying its current value.
func (s Settings) Invalid(key, message string, cause error) *ConfigError {
	return &ConfigError{Backend: s.backend, Field: key, Value: s.values[key], Message: message, Cause: cause}
}

// String returns the value of key, or def when unset.
func (s Settings) String(key, def string) string {
	if v := s.values[key]; v != "" {
		return v
	}
	return def
}

// Require returns the value of key, failing when it is unset.
func (s Settings) Require(key string) (string, error) {
	v := s.values[key]
	if v == "" {
		return "", s.Invalid(key, "cannot be empty", nil)
	}
	return v, nil
}

// Bool accepts true/false, 1/0 and yes/no in any case.
func (s Settings) Bool(key string, def bool) (bool, error) {
	switch v := strings.ToLower(s.values[key]); v {
	case "":
		return def, nil
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	default:
		return false, s.Invalid(key, "must be a boolean (true/false, 1/0, yes/no)", nil)
	}
}

// Int returns key as an int.
func (s Settings) Int(key string, def int) (int, error) {
	v, err := s.Int64(key, int64(def))
	return int(v), err
}

// Int64 returns key as an int64.
func (s Settings) Int64(key string, def int64) (int64, error) {
	v := s.values[key]
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, s.Invalid(key, "must be an integer", err)
	}
	return n, nil
}

// Duration accepts Go durations ("5s", "1m30s") or whole seconds.
func (s Settings) Duration(key string, def time.Duration) (time.Duration, error) {
	v := s.values[key]
	if v == "" {
		return def, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return 0, s.Invalid(key, "must be a duration (e.g. 5s, 1m30s) or whole seconds", nil)
}

// FileMode reads an octal permission string such as "0700".
func (s Settings) FileMode(key string, def os.FileMode) (os.FileMode, error) {
	v := s.values[key]
	if v == "" {
		return def, nil
	}
	m, err := strconv.ParseUint(v, 8, 32)
	if err != nil || m > 0o777 {
		return 0, s.Invalid(key, "must be an octal permission string (e.g. 0700)", err)
	}
	return os.FileMode(m), nil
}

// Dir returns key as an expanded directory path, creating it with perm.
func (s Settings) Dir(key string, perm os.FileMode) (string, error) {
	path, err := s.Require(key)
	if err != nil {
		return "", err
	}
	path = ExpandPath(path)
	if err := os.MkdirAll(path, perm); err != nil {
		return "", s.Invalid(key, "failed to create directory", err)
	}
	return path, nil
}

// File returns key as an expanded file path, creating its parent directory.
func (s Settings) File(key string) (string, error) {
	path, err := s.Require(key)
	if err != nil {
		return "", err
	}
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", s.Invalid(key, "failed to create directory", err)
	}
	return path, nil
}

// ExpandPath resolves a leading ~/ against the home directory and cleans
// the result.
func ExpandPath(path string) string {
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
		return path
	}
	return filepath.Clean(path)
}
