package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gezibash/arc-ledger/internal/access"
	"github.com/gezibash/arc-ledger/internal/directory"
	"github.com/gezibash/arc-ledger/internal/events"
	"github.com/gezibash/arc-ledger/internal/ledger"
	"github.com/gezibash/arc-ledger/internal/node"
	"github.com/gezibash/arc-ledger/internal/swap"
	"github.com/gezibash/arc-ledger/pkg/logging"
)

// LedgersTable lists ledger metadata.
func (o *Output) LedgersTable(metas []ledger.Meta) *Table {
	t := o.Table("ledgers", "ID", "Kind", "Institution", "Reserve", "Supply", "Paused")
	t.AlignRight("Supply")
	for _, m := range metas {
		inst, reserve := "", ""
		if m.Institution != nil {
			inst, reserve = m.Institution.ID, string(m.Institution.ReserveAccount)
		}
		t.AddRow(m.ID, string(m.Kind), inst, reserve, m.TotalSupply.String(), strconv.FormatBool(m.Paused))
	}
	return t
}

// LedgerView renders one ledger: its metadata, accounts and role holders.
type LedgerView struct {
	frame
	info *node.LedgerInfo
}

// Ledger creates a renderer for a ledger snapshot.
func (o *Output) Ledger(info *node.LedgerInfo) *LedgerView {
	return &LedgerView{frame: o.frame("ledger"), info: info}
}

// Render outputs the ledger in the configured format.
func (v *LedgerView) Render() error { return v.out.Render(v) }

func (v *LedgerView) summary() fields {
	m := v.info.Meta
	pairs := fields{
		{"ID", m.ID},
		{"Kind", string(m.Kind)},
		{"Authority", string(m.Authority)},
		{"Admin", string(m.Admin)},
		{"Paused", m.Paused},
		{"Decimals", m.Decimals},
		{"Total Supply", m.TotalSupply.String()},
		{"Minted", m.Minted.String()},
		{"Burned", m.Burned.String()},
		{"Created", m.CreatedAt.Format(time.RFC3339)},
	}
	if m.Institution != nil {
		pairs = append(pairs,
			field{"Institution", m.Institution.ID},
			field{"Reserve Account", string(m.Institution.ReserveAccount)})
	}
	return pairs
}

func (v *LedgerView) accounts() *Table {
	t := &Table{headers: []string{"Principal", "Balance", "Frozen", "Spendable"}}
	t.AlignRight("Balance", "Frozen", "Spendable")
	for _, a := range v.info.Accounts {
		t.AddRow(string(a.Principal), a.Balance.String(), a.Frozen.String(), a.Spendable().String())
	}
	return t
}

func (v *LedgerView) roles() fields {
	var pairs fields
	for _, role := range access.Roles() {
		members := v.info.Roles[role]
		if len(members) == 0 {
			continue
		}
		pairs = append(pairs, field{string(role), joinPrincipals(members)})
	}
	return pairs
}

// RenderText writes the summary, the accounts table and the role holders.
func (v *LedgerView) RenderText(w io.Writer) error {
	if _, err := io.WriteString(w, v.summary().table()+"\n\nAccounts\n"); err != nil {
		return err
	}
	if err := v.accounts().RenderText(w); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\nEnabled: %s\n", display(joinPrincipals(v.info.Enabled))); err != nil {
		return err
	}
	if roles := v.roles(); len(roles) > 0 {
		if _, err := io.WriteString(w, "\nRoles\n"+roles.table()+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// RenderJSON returns the ledger as one object.
func (v *LedgerView) RenderJSON() any {
	accounts := make(map[string]ledger.Account, len(v.info.Accounts))
	for _, a := range v.info.Accounts {
		accounts[string(a.Principal)] = a
	}
	roles := make(map[string][]access.Principal, len(v.info.Roles))
	for role, members := range v.info.Roles {
		if len(members) > 0 {
			roles[string(role)] = members
		}
	}
	return map[string]any{
		"ledger":   v.info.Meta,
		"accounts": accounts,
		"enabled":  v.info.Enabled,
		"roles":    roles,
	}
}

// RenderMarkdown writes the ledger in markdown.
func (v *LedgerView) RenderMarkdown(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "## Ledger %s\n\n", v.info.Meta.ID); err != nil {
		return err
	}
	if err := v.summary().each(w, "**%s:** %s\n\n", displayMarkdown); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "### Accounts\n\n"); err != nil {
		return err
	}
	return v.accounts().RenderMarkdown(w)
}

func joinPrincipals(ps []access.Principal) string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

// AccountKV renders one principal's holdings.
func (o *Output) AccountKV(ledgerRef string, p access.Principal, a ledger.Account, enabled bool) *KV {
	return o.KV("account").
		Set("Ledger", ledgerRef).
		Set("Principal", string(p)).
		Set("Balance", a.Balance.String()).
		Set("Frozen", a.Frozen.String()).
		Set("Spendable", a.Spendable().String()).
		Set("Enabled", enabled)
}

// EventsTable lists audit log events.
func (o *Output) EventsTable(evs []events.Event) *Table {
	t := o.Table("events", "Seq", "Kind", "Ledger", "Time", "Fields", "Hash")
	t.AlignRight("Seq")
	for _, ev := range evs {
		t.AddRow(
			strconv.FormatUint(ev.Seq, 10),
			ev.Kind,
			ev.Ledger,
			ev.Time.Format(time.RFC3339),
			FormatFields(ev.Fields),
			logging.FormatHash(ev.Hash),
		)
	}
	return t
}

// EventKV renders one event in full.
func (o *Output) EventKV(ev events.Event) *KV {
	kv := o.KV("event").
		Set("Seq", ev.Seq).
		Set("ID", ev.ID).
		Set("Kind", ev.Kind).
		Set("Ledger", ev.Ledger).
		Set("Time", ev.Time.Format(time.RFC3339Nano))
	for _, k := range slices.Sorted(maps.Keys(ev.Fields)) {
		kv.Set(k, ev.Fields[k])
	}
	return kv.Set("Prev Hash", ev.PrevHash).Set("Hash", ev.Hash)
}

// FormatFields renders event fields as sorted key=value pairs.
func FormatFields(kv map[string]any) string {
	parts := make([]string, 0, len(kv))
	for _, k := range slices.Sorted(maps.Keys(kv)) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, kv[k]))
	}
	return strings.Join(parts, " ")
}

// ProposalsTable lists two-step swap proposals.
func (o *Output) ProposalsTable(ps []*swap.Proposal, validity time.Duration, now time.Time) *Table {
	t := o.Table("proposals", "ID", "Status", "From", "To", "Sender", "Receiver", "Amount", "Expires")
	t.AlignRight("ID", "Amount")
	for _, p := range ps {
		expires := p.ExpiresAt(validity).Format(time.RFC3339)
		if p.Status == swap.StatusPending && p.Expired(now, validity) {
			expires += " (expired)"
		}
		t.AddRow(
			strconv.FormatUint(p.ID, 10),
			string(p.Status),
			p.SenderLedger,
			p.ReceiverLedger,
			string(p.Sender),
			string(p.Receiver),
			p.Amount.String(),
			expires,
		)
	}
	return t
}

// ProposalKV renders one proposal in full.
func (o *Output) ProposalKV(p *swap.Proposal, validity time.Duration) *KV {
	return o.KV("proposal").
		Set("ID", p.ID).
		Set("Status", string(p.Status)).
		Set("Sender Ledger", p.SenderLedger).
		Set("Receiver Ledger", p.ReceiverLedger).
		Set("Sender Institution", p.SenderInstitution).
		Set("Receiver Institution", p.ReceiverInstitution).
		Set("Sender", string(p.Sender)).
		Set("Receiver", string(p.Receiver)).
		Set("Amount", p.Amount.String()).
		Set("Created", p.CreatedAt.Format(time.RFC3339)).
		Set("Updated", p.UpdatedAt.Format(time.RFC3339)).
		Set("Expires", p.ExpiresAt(validity).Format(time.RFC3339)).
		Set("Reason", p.Reason)
}

// DirectoryTable lists directory entries.
func (o *Output) DirectoryTable(entries []directory.Entry) *Table {
	t := o.Table("directory", "Key", "Ledger")
	for _, e := range entries {
		t.AddRow(e.Key, e.Ledger)
	}
	return t
}
