package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewSettingsMerges(t *testing.T) {
	defaults := map[string]string{"a": "1", "b": "2"}
	overrides := map[string]string{"b": "3", "c": "4"}
	s := NewSettings("badger", defaults, overrides)

	got := s.Map()
	if got["a"] != "1" || got["b"] != "3" || got["c"] != "4" {
		t.Errorf("merged = %v", got)
	}
	if defaults["b"] != "2" {
		t.Error("defaults modified")
	}
	got["a"] = "changed"
	if s.String("a", "") != "1" {
		t.Error("Map returned the live map")
	}
}

func TestSettingsString(t *testing.T) {
	s := NewSettings("redis", map[string]string{"addr": "localhost:6379"}, map[string]string{"password": ""})

	if got := s.String("addr", "x"); got != "localhost:6379" {
		t.Errorf("addr = %q", got)
	}
	if got := s.String("password", "fallback"); got != "fallback" {
		t.Errorf("empty value should fall back, got %q", got)
	}
	if _, err := s.Require("password"); err == nil {
		t.Error("Require accepted an empty value")
	}
}

func TestSettingsTyped(t *testing.T) {
	s := NewSettings("badger", nil, map[string]string{
		"on":      "YES",
		"off":     "0",
		"maybe":   "maybe",
		"n":       "42",
		"big":     "9223372036854775807",
		"word":    "abc",
		"dur":     "1m30s",
		"secs":    "10",
		"mode":    "0750",
		"badmode": "rwx",
		"toobig":  "1777",
	})

	if v, err := s.Bool("on", false); err != nil || !v {
		t.Errorf("Bool on = %v, %v", v, err)
	}
	if v, err := s.Bool("off", true); err != nil || v {
		t.Errorf("Bool off = %v, %v", v, err)
	}
	if v, err := s.Bool("unset", true); err != nil || !v {
		t.Errorf("Bool unset = %v, %v", v, err)
	}
	if _, err := s.Bool("maybe", false); err == nil {
		t.Error("Bool accepted maybe")
	}

	if v, err := s.Int("n", 0); err != nil || v != 42 {
		t.Errorf("Int = %d, %v", v, err)
	}
	if v, err := s.Int64("big", 0); err != nil || v != 9223372036854775807 {
		t.Errorf("Int64 = %d, %v", v, err)
	}
	if v, err := s.Int("unset", 7); err != nil || v != 7 {
		t.Errorf("Int unset = %d, %v", v, err)
	}
	if _, err := s.Int("word", 0); err == nil {
		t.Error("Int accepted abc")
	}

	if v, err := s.Duration("dur", 0); err != nil || v != 90*time.Second {
		t.Errorf("Duration = %v, %v", v, err)
	}
	if v, err := s.Duration("secs", 0); err != nil || v != 10*time.Second {
		t.Errorf("Duration secs = %v, %v", v, err)
	}
	if _, err := s.Duration("word", 0); err == nil {
		t.Error("Duration accepted abc")
	}

	if m, err := s.FileMode("mode", 0o700); err != nil || m != 0o750 {
		t.Errorf("FileMode = %o, %v", m, err)
	}
	if m, err := s.FileMode("unset", 0o600); err != nil || m != 0o600 {
		t.Errorf("FileMode unset = %o, %v", m, err)
	}
	for _, key := range []string{"badmode", "toobig"} {
		if _, err := s.FileMode(key, 0); err == nil {
			t.Errorf("FileMode accepted %s", key)
		}
	}
}

func TestSettingsErrorsNameField(t *testing.T) {
	s := NewSettings("s3", nil, map[string]string{"force_path_style": "sometimes"})
	_, err := s.Bool("force_path_style", false)

	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("got %T, want *ConfigError", err)
	}
	if ce.Backend != "s3" || ce.Field != "force_path_style" || ce.Value != "sometimes" {
		t.Errorf("ConfigError = %+v", ce)
	}
}

func TestSettingsDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state", "badger")
	s := NewSettings("badger", nil, map[string]string{"path": dir})

	got, err := s.Dir("path", 0o700)
	if err != nil {
		t.Fatal(err)
	}
	if got != dir {
		t.Errorf("Dir = %q, want %q", got, dir)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("Dir did not create %q: %v", dir, err)
	}

	_, err = NewSettings("badger", nil, nil).Dir("path", 0o700)
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Field != "path" {
		t.Errorf("Dir unset: got %v", err)
	}
}

func TestSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	got, err := NewSettings("sqlite", nil, map[string]string{"path": path}).File("path")
	if err != nil {
		t.Fatal(err)
	}
	if got != path {
		t.Errorf("File = %q, want %q", got, path)
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("parent not created: %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	if got := ExpandPath("/var/lib/../lib/ledger"); got != "/var/lib/ledger" {
		t.Errorf("ExpandPath = %q", got)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got, want := ExpandPath("~/ledger/state"), filepath.Join(home, "ledger", "state"); got != want {
		t.Errorf("ExpandPath = %q, want %q", got, want)
	}
}

func TestConfigErrorMessage(t *testing.T) {
	cause := errors.New("connection refused")
	tests := []struct {
		err  ConfigError
		want string
	}{
		{ConfigError{Backend: "etcd", Message: "unknown state backend"}, "etcd: unknown state backend"},
		{ConfigError{Backend: "badger", Field: "path", Message: "cannot be empty"}, "badger: path: cannot be empty"},
		{ConfigError{Backend: "redis", Field: "db", Value: "-1", Message: "must be non-negative"}, `redis: db="-1": must be non-negative`},
		{ConfigError{Backend: "redis", Field: "addr", Message: "failed to connect", Cause: cause}, "redis: addr: failed to connect: connection refused"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}

	ce := &ConfigError{Backend: "redis", Cause: cause}
	if !errors.Is(ce, cause) {
		t.Error("cause not reachable through errors.Is")
	}
}
