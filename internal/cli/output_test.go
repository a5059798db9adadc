package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gezibash/arc-ledger/internal/access"
	"github.com/gezibash/arc-ledger/internal/events"
	"github.com/gezibash/arc-ledger/internal/ledger"
	"github.com/gezibash/arc-ledger/internal/node"
	"github.com/gezibash/arc-ledger/internal/swap"
	ledgererr "github.com/gezibash/arc-ledger/pkg/errors"
)

// ---------------------------------------------------------------------------
// ParseFormat
// ---------------------------------------------------------------------------

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"markdown", FormatMarkdown, false},
		{"md", FormatMarkdown, false},
		{"text", FormatText, false},
		{"", FormatText, false},
		{"yaml", "", true},
		{"JSON", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ledgererr.ErrInvalidInput) {
					t.Fatalf("ParseFormat(%q) err = %v, want ErrInvalidInput", tt.input, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, %v, want %q", tt.input, got, err, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Meta
// ---------------------------------------------------------------------------

func TestMetaCarriesHead(t *testing.T) {
	out := NewOutput(FormatJSON, &bytes.Buffer{})
	out.SetHead(42)

	m := out.KV("thing").Meta()
	if m.Type != "thing" || m.Version != "v1" {
		t.Errorf("Meta = %+v", m)
	}
	if m.Head != 42 {
		t.Errorf("Head = %d, want 42", m.Head)
	}
	if m.Generated.IsZero() {
		t.Error("Generated should not be zero")
	}
}

func TestMetaWithPagination(t *testing.T) {
	orig := NewMeta("paged")
	m := orig.WithPagination("17", true)
	if m.Cursor != "17" || !m.HasMore {
		t.Errorf("Meta = %+v", m)
	}
	if orig.Cursor != "" {
		t.Error("WithPagination should not mutate original meta")
	}
}

// ---------------------------------------------------------------------------
// Envelopes
// ---------------------------------------------------------------------------

func TestJSONEnvelope(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutput(FormatJSON, &buf)
	if err := out.Result("mint", "minted").With("Amount", "1.00").Render(); err != nil {
		t.Fatal(err)
	}

	var env struct {
		Meta Meta           `json:"meta"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(buf.Bytes(), &env); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if env.Meta.Type != "mint" {
		t.Errorf("meta.type = %q", env.Meta.Type)
	}
	if env.Data["message"] != "minted" || env.Data["amount"] != "1.00" {
		t.Errorf("data = %v", env.Data)
	}
}

func TestMarkdownFrontmatter(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutput(FormatMarkdown, &buf)
	if err := out.KV("account").Set("Balance", "5.00").Render(); err != nil {
		t.Fatal(err)
	}

	s := buf.String()
	if !strings.HasPrefix(s, "---\n") {
		t.Fatalf("missing frontmatter:\n%s", s)
	}
	if !strings.Contains(s, "type: account") {
		t.Errorf("frontmatter missing type:\n%s", s)
	}
	if !strings.Contains(s, "**Balance:** 5.00") {
		t.Errorf("body missing pair:\n%s", s)
	}
}

func TestTextPaginationHint(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutput(FormatText, &buf)
	err := out.Table("events", "Seq").AddRow("1").WithPagination("1", true).Render()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "--after=1") {
		t.Errorf("missing pagination hint:\n%s", buf.String())
	}
}

// ---------------------------------------------------------------------------
// Table / KV / StringList
// ---------------------------------------------------------------------------

func TestTableJSONKeys(t *testing.T) {
	out := NewOutput(FormatJSON, &bytes.Buffer{})
	tbl := out.Table("t", "Sender Ledger", "Amount").AddRow("bank-a", "1.00")

	rows := tbl.RenderJSON().([]map[string]string)
	if len(rows) != 1 || rows[0]["sender_ledger"] != "bank-a" || rows[0]["amount"] != "1.00" {
		t.Errorf("rows = %v", rows)
	}
}

func TestTableEmptyText(t *testing.T) {
	var buf bytes.Buffer
	if err := NewOutput(FormatText, &buf).Table("t", "A").Render(); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "(none)\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestTableAlignRight(t *testing.T) {
	tbl := NewOutput(FormatText, &bytes.Buffer{}).Table("t", "Principal", "Balance")
	tbl.AlignRight("balance", "missing")
	tbl.AlignRight("BALANCE")
	if len(tbl.right) != 1 || tbl.right[0] != 1 {
		t.Errorf("right-aligned columns = %v", tbl.right)
	}
}

func TestKVPreservesOrder(t *testing.T) {
	var buf bytes.Buffer
	err := NewOutput(FormatText, &buf).KV("kv").Set("Zeta", 1).Set("Alpha", "").Render()
	if err != nil {
		t.Fatal(err)
	}
	s := buf.String()
	if strings.Index(s, "Zeta") > strings.Index(s, "Alpha") {
		t.Errorf("pairs reordered:\n%s", s)
	}
	if !strings.Contains(s, "-") {
		t.Errorf("empty value not shown as '-':\n%s", s)
	}
}

func TestStringListJSONNeverNull(t *testing.T) {
	l := NewOutput(FormatJSON, &bytes.Buffer{}).StringList("roles")
	data, err := json.Marshal(l.RenderJSON())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]" {
		t.Errorf("got %s, want []", data)
	}
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func TestErrorCode(t *testing.T) {
	err := fmt.Errorf("mint on bank-a: %w", ledgererr.ErrPaused)
	var buf bytes.Buffer
	e := NewOutput(FormatText, &buf).Error("mint", err)
	if e.Code() != "PAUSED" {
		t.Errorf("Code = %q, want PAUSED", e.Code())
	}
	if err := e.With("ledger", "bank-a").Render(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "Error [PAUSED]: mint on bank-a") {
		t.Errorf("got %q", buf.String())
	}
	if e.Meta().Type != "mint-error" {
		t.Errorf("meta type = %q", e.Meta().Type)
	}
}

func TestReport(t *testing.T) {
	t.Run("text goes to stderr", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		err := Report("burn", NewOutput(FormatText, &stdout), &stderr, ledgererr.ErrInsufficientBalance)

		var exit *ExitError
		if !errors.As(err, &exit) || exit.Code != 1 {
			t.Fatalf("got %v, want ExitError", err)
		}
		if !errors.Is(err, ledgererr.ErrInsufficientBalance) {
			t.Error("ExitError should unwrap to the cause")
		}
		if stdout.Len() != 0 || !strings.Contains(stderr.String(), "INSUFFICIENT_BALANCE") {
			t.Errorf("stdout=%q stderr=%q", stdout.String(), stderr.String())
		}
	})

	t.Run("json goes to stdout", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		_ = Report("burn", NewOutput(FormatJSON, &stdout), &stderr, ledgererr.ErrUnauthorized)
		if stderr.Len() != 0 || !strings.Contains(stdout.String(), `"code": "UNAUTHORIZED"`) {
			t.Errorf("stdout=%q stderr=%q", stdout.String(), stderr.String())
		}
	})

	t.Run("already reported", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		first := &ExitError{Code: 2, Err: errors.New("boom")}
		if got := Report("x", NewOutput(FormatText, &stdout), &stderr, first); got != first {
			t.Errorf("got %v, want the original ExitError", got)
		}
		if stderr.Len() != 0 {
			t.Errorf("rendered twice: %q", stderr.String())
		}
	})
}

// ---------------------------------------------------------------------------
// Domain renderers
// ---------------------------------------------------------------------------

func TestLedgerView(t *testing.T) {
	info := &node.LedgerInfo{
		Meta: ledger.Meta{
			ID:          "bank-a",
			Kind:        ledger.KindParticipant,
			Authority:   "bank-a-ops",
			Admin:       "bank-a-admin",
			Decimals:    2,
			Institution: &ledger.Institution{ID: "BANKA", ReserveAccount: "reserve-bank-a"},
			TotalSupply: 10000,
			Minted:      10000,
		},
		Accounts: []ledger.Account{{Principal: "alice", Balance: 10000, Frozen: 2500}},
		Enabled:  []access.Principal{"alice", "bank-a-ops"},
		Roles:    map[access.Role][]access.Principal{access.Minter: {"bank-a-ops", "swap"}},
	}

	var buf bytes.Buffer
	if err := NewOutput(FormatText, &buf).Ledger(info).Render(); err != nil {
		t.Fatal(err)
	}
	s := buf.String()
	for _, want := range []string{"BANKA", "reserve-bank-a", "100.00", "75.00", "bank-a-ops, swap", "alice, bank-a-ops"} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}

	buf.Reset()
	if err := NewOutput(FormatJSON, &buf).Ledger(info).Render(); err != nil {
		t.Fatal(err)
	}
	var env struct {
		Data struct {
			Ledger   ledger.Meta               `json:"ledger"`
			Accounts map[string]ledger.Account `json:"accounts"`
			Roles    map[string][]string       `json:"roles"`
		} `json:"data"`
	}
	if err := json.Unmarshal(buf.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if env.Data.Accounts["alice"].Frozen != 2500 {
		t.Errorf("accounts = %+v", env.Data.Accounts)
	}
	if _, ok := env.Data.Roles["PAUSER"]; ok {
		t.Error("roles without holders should be omitted")
	}
}

func TestEventsTable(t *testing.T) {
	evs := []events.Event{{
		Seq:    3,
		Kind:   events.KindTransfer,
		Ledger: "bank-a",
		Time:   time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		Fields: map[string]any{"to": "bob", "from": "alice", "amount": int64(100)},
		Hash:   strings.Repeat("ab", 32),
	}}
	tbl := NewOutput(FormatJSON, &bytes.Buffer{}).EventsTable(evs)
	rows := tbl.RenderJSON().([]map[string]string)
	if rows[0]["fields"] != "amount=100 from=alice to=bob" {
		t.Errorf("fields = %q", rows[0]["fields"])
	}
	if rows[0]["hash"] != strings.Repeat("ab", 8)+"..." {
		t.Errorf("hash = %q", rows[0]["hash"])
	}
}

func TestProposalsTableMarksExpired(t *testing.T) {
	created := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	ps := []*swap.Proposal{
		{ID: 1, Status: swap.StatusPending, Amount: 100, CreatedAt: created},
		{ID: 2, Status: swap.StatusExecuted, Amount: 100, CreatedAt: created},
	}
	now := created.Add(8 * 24 * time.Hour)
	rows := NewOutput(FormatJSON, &bytes.Buffer{}).ProposalsTable(ps, swap.DefaultValidity, now).RenderJSON().([]map[string]string)
	if !strings.HasSuffix(rows[0]["expires"], "(expired)") {
		t.Errorf("pending proposal past validity not marked: %q", rows[0]["expires"])
	}
	if strings.HasSuffix(rows[1]["expires"], "(expired)") {
		t.Errorf("executed proposal marked expired: %q", rows[1]["expires"])
	}
}
