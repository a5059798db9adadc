package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
)

func newBuffered(level slog.Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	h := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: level})
	return New(slog.New(h)), &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	return m
}

func TestWithHelpers(t *testing.T) {
	l, buf := newBuffered(slog.LevelDebug)

	l.WithComponent("swap").
		WithLedger("bank-a").
		WithPrincipal("caller", "alice").
		WithProposal(7).
		WithError(errors.New("boom")).
		Info("accepted", "amount", "25.00")

	m := decodeLine(t, buf)
	want := map[string]string{
		"msg":       "accepted",
		"component": "swap",
		"ledger":    "bank-a",
		"caller":    "alice",
		"proposal":  "7",
		"error":     "boom",
		"amount":    "25.00",
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("%s = %v, want %q", k, m[k], v)
		}
	}
}

func TestWithDoesNotMutateParent(t *testing.T) {
	l, buf := newBuffered(slog.LevelDebug)
	parent := l.WithComponent("node")
	_ = parent.WithLedger("cbdc")

	parent.Info("hello")
	m := decodeLine(t, buf)
	if _, ok := m["ledger"]; ok {
		t.Fatal("child attribute leaked into parent")
	}
}

func TestLevelFiltering(t *testing.T) {
	l, buf := newBuffered(slog.LevelWarn)
	l.Debug("hidden")
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("unexpected output %q", buf.String())
	}
	l.Warn("shown")
	if m := decodeLine(t, buf); m["level"] != "WARN" {
		t.Fatalf("level = %v", m["level"])
	}
}

func TestSlogCarriesAttrs(t *testing.T) {
	l, buf := newBuffered(slog.LevelInfo)
	l.WithLedger("bank-b").Slog().Info("via slog")
	if m := decodeLine(t, buf); m["ledger"] != "bank-b" {
		t.Fatalf("ledger = %v", m["ledger"])
	}
}

func TestNewNilUsesDefault(t *testing.T) {
	if New(nil).Slog() == nil {
		t.Fatal("nil base not replaced")
	}
}

func TestFormatHash(t *testing.T) {
	if got := FormatHash("abcd"); got != "abcd" {
		t.Errorf("short = %q", got)
	}
	if got := FormatHash("0123456789abcdef0123"); got != "0123456789abcdef..." {
		t.Errorf("long = %q", got)
	}
}
