package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/gezibash/arc-ledger/internal/cli"
)

const genesisFile = "../../internal/genesis/testdata/genesis.yaml"

type harness struct {
	t       *testing.T
	dataDir string
	genesis string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	genesis, err := filepath.Abs(genesisFile)
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	h := &harness{t: t, dataDir: t.TempDir(), genesis: genesis}
	h.mustRun("genesis", "apply", h.genesis)
	return h
}

func (h *harness) run(args ...string) (string, string, error) {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--data-dir", h.dataDir, "--backend", "sqlite"}, args...)
	err := run(context.Background(), full, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	stdout, stderr, err := h.run(args...)
	if err != nil {
		h.t.Fatalf("%s: %v\nstderr: %s", strings.Join(args, " "), err, stderr)
	}
	return stdout
}

func (h *harness) data(args ...string) map[string]any {
	h.t.Helper()
	out := h.mustRun(append(args, "-o", "json")...)
	var env struct {
		Meta map[string]any `json:"meta"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal([]byte(out), &env); err != nil {
		h.t.Fatalf("decode %q: %v", out, err)
	}
	return env.Data
}

func (h *harness) rows(args ...string) []map[string]any {
	h.t.Helper()
	out := h.mustRun(append(args, "-o", "json")...)
	var env struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal([]byte(out), &env); err != nil {
		h.t.Fatalf("decode %q: %v", out, err)
	}
	return env.Data
}

func TestGenesisApply(t *testing.T) {
	h := newHarness(t)

	ledgers := h.rows("ledger", "list")
	if len(ledgers) != 3 {
		t.Fatalf("got %d ledgers, want 3", len(ledgers))
	}

	acct := h.data("ledger", "balance", "bank-a", "alice")
	if acct["balance"] != "100.00" || acct["enabled"] != true {
		t.Errorf("alice on bank-a = %v", acct)
	}

	lookup := h.mustRun("directory", "lookup", "BANKB")
	if !strings.Contains(lookup, "bank-b") {
		t.Errorf("lookup BANKB = %q", lookup)
	}
}

func TestAccessMembers(t *testing.T) {
	h := newHarness(t)

	decode := func(args ...string) []string {
		out := h.mustRun(append(args, "-o", "json")...)
		var env struct {
			Data []string `json:"data"`
		}
		if err := json.Unmarshal([]byte(out), &env); err != nil {
			t.Fatalf("decode %q: %v", out, err)
		}
		return env.Data
	}

	if minters := decode("access", "members", "bank-a", "MINTER"); !slices.Contains(minters, "swap") {
		t.Errorf("bank-a minters = %v, want swap among them", minters)
	}
	if enabled := decode("access", "members", "bank-b"); !slices.Contains(enabled, "bob") {
		t.Errorf("bank-b allow-list = %v, want bob", enabled)
	}
	if out := h.mustRun("access", "members", "bank-b", "MINTER"); !strings.Contains(out, "swap") {
		t.Errorf("bank-b minters text = %q", out)
	}
}

func TestGenesisValidate(t *testing.T) {
	abs, err := filepath.Abs(genesisFile)
	if err != nil {
		t.Fatal(err)
	}
	t.Chdir(t.TempDir())

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"genesis", "validate", abs}, &stdout, &stderr); err != nil {
		t.Fatalf("validate: %v\n%s", err, stderr.String())
	}
	if !strings.Contains(stdout.String(), "cbdc + 2 participant ledgers") {
		t.Errorf("validate output = %q", stdout.String())
	}

	stdout.Reset()
	err = run(context.Background(), []string{"genesis", "validate", "missing.yaml"}, &stdout, &stderr)
	var exit *cli.ExitError
	if !errors.As(err, &exit) {
		t.Fatalf("got %v, want ExitError", err)
	}
}

func TestTwoStepSwap(t *testing.T) {
	h := newHarness(t)

	h.mustRun("ledger", "approve", "bank-a", "swap", "50.00", "--as", "alice")

	started := h.data("swap", "start", "bank-a", "bank-b", "bob", "25.00", "--as", "alice")
	if started["status"] != "PENDING" {
		t.Fatalf("start status = %v", started["status"])
	}

	pending := h.rows("swap", "list", "--status", "PENDING")
	if len(pending) != 1 {
		t.Fatalf("got %d pending proposals, want 1", len(pending))
	}

	accepted := h.data("swap", "accept", "1", "--as", "bob")
	if accepted["status"] != "EXECUTED" {
		t.Fatalf("accept status = %v", accepted["status"])
	}

	if got := h.data("ledger", "balance", "bank-a", "alice")["balance"]; got != "75.00" {
		t.Errorf("alice on bank-a = %v, want 75.00", got)
	}
	if got := h.data("ledger", "balance", "bank-b", "bob")["balance"]; got != "25.00" {
		t.Errorf("bob on bank-b = %v, want 25.00", got)
	}
	if got := h.data("ledger", "balance", "cbdc", "reserve-bank-b")["balance"]; got != "1025.00" {
		t.Errorf("reserve-bank-b on cbdc = %v, want 1025.00", got)
	}

	if _, _, err := h.run("swap", "accept", "1", "--as", "bob"); err == nil {
		t.Error("accepting twice should fail")
	}
}

func TestErrors(t *testing.T) {
	h := newHarness(t)

	t.Run("NoCaller", func(t *testing.T) {
		_, stderr, err := h.run("ledger", "mint", "bank-a", "alice", "1.00")
		var exit *cli.ExitError
		if !errors.As(err, &exit) || exit.Code != 1 {
			t.Fatalf("got %v, want ExitError", err)
		}
		if !strings.Contains(stderr, "INVALID_INPUT") {
			t.Errorf("stderr = %q", stderr)
		}
	})

	t.Run("UnauthorizedJSON", func(t *testing.T) {
		stdout, _, err := h.run("ledger", "mint", "bank-a", "alice", "1.00", "--as", "alice", "-o", "json")
		if err == nil {
			t.Fatal("alice minted without MINTER")
		}
		var env struct {
			Data map[string]any `json:"data"`
		}
		if err := json.Unmarshal([]byte(stdout), &env); err != nil {
			t.Fatalf("decode %q: %v", stdout, err)
		}
		if env.Data["code"] != "UNAUTHORIZED" {
			t.Errorf("code = %v, want UNAUTHORIZED", env.Data["code"])
		}
	})

	t.Run("BadAmount", func(t *testing.T) {
		_, stderr, err := h.run("ledger", "transfer", "bank-a", "bob", "1.005", "--as", "alice")
		if err == nil {
			t.Fatal("sub-cent amount accepted")
		}
		if !strings.Contains(stderr, "INVALID_INPUT") {
			t.Errorf("stderr = %q", stderr)
		}
	})
}

func TestEventsAndArchive(t *testing.T) {
	h := newHarness(t)
	h.mustRun("ledger", "approve", "bank-a", "swap", "10.00", "--as", "alice")

	all := h.rows("events", "list")
	if len(all) == 0 {
		t.Fatal("no events after genesis")
	}

	approvals := h.rows("events", "list", "--filter", `kind == "Approval"`)
	if len(approvals) == 0 || len(approvals) >= len(all) {
		t.Fatalf("filter kept %d of %d events", len(approvals), len(all))
	}
	for _, row := range approvals {
		if row["kind"] != "Approval" {
			t.Errorf("filtered row kind = %v", row["kind"])
		}
	}

	page := h.mustRun("events", "list", "--limit", "2")
	if !strings.Contains(page, "More results: --after=2") {
		t.Errorf("missing pagination hint:\n%s", page)
	}

	verified := h.data("events", "verify")
	if verified["events"] != float64(len(all)) {
		t.Errorf("verified %v events, want %d", verified["events"], len(all))
	}

	manifest := h.data("archive", "export")
	if manifest["head"] != float64(len(all)) {
		t.Errorf("manifest head = %v, want %d", manifest["head"], len(all))
	}
	if snaps := h.rows("archive", "list"); len(snaps) != 1 {
		t.Fatalf("got %d snapshots, want 1", len(snaps))
	}
	if got := h.data("archive", "verify")["events"]; got != float64(len(all)) {
		t.Errorf("archive verify events = %v", got)
	}
}

func TestWatchStopsAfterCount(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun("events", "watch", "--count", "2", "--interval", "10ms", "-o", "json")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), out)
	}
	for i, line := range lines {
		var ev map[string]any
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		if ev["seq"] != float64(i+1) {
			t.Errorf("line %d seq = %v", i, ev["seq"])
		}
	}
}

func TestVersion(t *testing.T) {
	var stdout bytes.Buffer
	if err := run(context.Background(), []string{"version"}, &stdout, &bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout.String(), "Version:") || !strings.Contains(stdout.String(), version) {
		t.Errorf("version output = %q", stdout.String())
	}

	stdout.Reset()
	if err := run(context.Background(), []string{"version", "-o", "json"}, &stdout, &bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}
	var env struct {
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if env.Data["version"] != version || env.Data["go"] == "" {
		t.Errorf("version data = %v", env.Data)
	}
}
