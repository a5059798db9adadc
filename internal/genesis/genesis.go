// Package genesis initialises an empty store from a YAML document: the
// CBDC ledger, the participant ledgers, the swap coordinator and directory
// admin, the allow-lists and the opening balances.
package genesis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/gezibash/arc-ledger/internal/access"
	"github.com/gezibash/arc-ledger/internal/directory"
	"github.com/gezibash/arc-ledger/internal/ledger"
	"github.com/gezibash/arc-ledger/internal/node"
	"github.com/gezibash/arc-ledger/internal/state"
	"github.com/gezibash/arc-ledger/internal/swap"
	ledgererr "github.com/gezibash/arc-ledger/pkg/errors"
)

// Document is a genesis document.
type Document struct {
	Coordinator    string                       `yaml:"coordinator"`
	DirectoryAdmin string                       `yaml:"directory_admin"`
	CBDC           LedgerSpec                   `yaml:"cbdc"`
	Participants   []ParticipantSpec            `yaml:"participants"`
	Enabled        map[string][]string          `yaml:"enabled"`
	Balances       map[string]map[string]string `yaml:"balances"`
}

// LedgerSpec names a ledger and its two principals.
type LedgerSpec struct {
	ID        string `yaml:"id"`
	Authority string `yaml:"authority"`
	Admin     string `yaml:"admin"`
}

// ParticipantSpec is a participant ledger.
type ParticipantSpec struct {
	LedgerSpec     `yaml:",inline"`
	Institution    string `yaml:"institution"`
	ReserveAccount string `yaml:"reserve_account"`
}

// Parse decodes a genesis document. Unknown fields are rejected.
func Parse(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse genesis: %v: %w", err, ledgererr.ErrInvalidInput)
	}
	if doc.Coordinator == "" {
		doc.Coordinator = string(swap.DefaultPrincipal)
	}
	if doc.DirectoryAdmin == "" {
		doc.DirectoryAdmin = doc.CBDC.Admin
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Load reads and parses the genesis document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis: %w", err)
	}
	return Parse(data)
}

// Validate checks the document for references to unknown ledgers and for
// duplicate ids or institutions. Principals and amounts are checked when
// the document is applied.
func (d *Document) Validate() error {
	if d.CBDC.ID == "" {
		return fmt.Errorf("genesis: cbdc.id is required: %w", ledgererr.ErrInvalidInput)
	}
	ids := map[string]bool{d.CBDC.ID: true}
	institutions := map[string]bool{}
	for _, p := range d.Participants {
		if ids[p.ID] {
			return fmt.Errorf("genesis: duplicate ledger id %q: %w", p.ID, ledgererr.ErrInvalidInput)
		}
		if institutions[p.Institution] {
			return fmt.Errorf("genesis: duplicate institution %q: %w", p.Institution, ledgererr.ErrInvalidInput)
		}
		ids[p.ID] = true
		institutions[p.Institution] = true
	}
	for _, p := range d.Participants {
		if p.Institution != p.ID && ids[p.Institution] {
			return fmt.Errorf("genesis: institution %q of %q names another ledger: %w",
				p.Institution, p.ID, ledgererr.ErrInvalidInput)
		}
	}
	for id := range d.Enabled {
		if !ids[id] {
			return fmt.Errorf("genesis: enabled list for unknown ledger %q: %w", id, ledgererr.ErrInvalidInput)
		}
	}
	for id := range d.Balances {
		if !ids[id] {
			return fmt.Errorf("genesis: balances for unknown ledger %q: %w", id, ledgererr.ErrInvalidInput)
		}
	}
	return nil
}

// ledgers returns the ledger specs in document order, CBDC first.
func (d *Document) ledgers() []LedgerSpec {
	out := []LedgerSpec{d.CBDC}
	for _, p := range d.Participants {
		out = append(out, p.LedgerSpec)
	}
	return out
}

// Apply initialises the node's store from d in a single operation. It fails
// with ErrAlreadyExists when the store already holds a ledger.
func Apply(ctx context.Context, n *node.Node, d *Document) error {
	return n.Apply(ctx, "genesis.apply", func(tx *state.Txn) error {
		return d.apply(tx)
	})
}

func (d *Document) apply(tx *state.Txn) error {
	existing, err := ledger.List(tx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("store already initialised with %d ledgers: %w", len(existing), ledgererr.ErrAlreadyExists)
	}

	coordinator := access.Principal(d.Coordinator)
	cbdc, err := ledger.Create(tx, ledger.Params{
		ID:        d.CBDC.ID,
		Kind:      ledger.KindCBDC,
		Authority: access.Principal(d.CBDC.Authority),
		Admin:     access.Principal(d.CBDC.Admin),
	})
	if err != nil {
		return fmt.Errorf("cbdc %s: %w", d.CBDC.ID, err)
	}
	if err := cbdc.Access().Bootstrap(tx, access.Mover, coordinator); err != nil {
		return err
	}

	for _, p := range d.Participants {
		l, err := ledger.Create(tx, ledger.Params{
			ID:        p.ID,
			Kind:      ledger.KindParticipant,
			Authority: access.Principal(p.Authority),
			Admin:     access.Principal(p.Admin),
			Institution: &ledger.Institution{
				ID:             p.Institution,
				ReserveAccount: access.Principal(p.ReserveAccount),
			},
		})
		if err != nil {
			return fmt.Errorf("participant %s: %w", p.ID, err)
		}
		if err := l.Access().Bootstrap(tx, access.Minter, coordinator); err != nil {
			return err
		}
		if err := cbdc.Access().Enable(tx, access.Principal(d.CBDC.Authority), access.Principal(p.ReserveAccount)); err != nil {
			return err
		}
	}

	if err := swap.Configure(tx, swap.Settings{Principal: coordinator, CBDC: d.CBDC.ID}); err != nil {
		return err
	}

	dirAdmin := access.Principal(d.DirectoryAdmin)
	if err := directory.SetAdmin(tx, dirAdmin); err != nil {
		return err
	}
	for _, def := range d.ledgers() {
		if err := directory.Set(tx, dirAdmin, def.ID, def.ID); err != nil {
			return err
		}
	}
	for _, p := range d.Participants {
		if p.Institution == p.ID {
			continue
		}
		if err := directory.Set(tx, dirAdmin, p.Institution, p.ID); err != nil {
			return err
		}
	}

	for _, def := range d.ledgers() {
		l, err := ledger.Open(tx, def.ID)
		if err != nil {
			return err
		}
		authority := access.Principal(def.Authority)
		for _, p := range d.Enabled[def.ID] {
			if err := l.Access().Enable(tx, authority, access.Principal(p)); err != nil {
				return fmt.Errorf("enable %s on %s: %w", p, def.ID, err)
			}
		}

		balances := d.Balances[def.ID]
		holders := make([]string, 0, len(balances))
		for p := range balances {
			holders = append(holders, p)
		}
		slices.Sort(holders)
		for _, p := range holders {
			amount, err := ledger.ParseAmount(balances[p])
			if err != nil {
				return fmt.Errorf("balance of %s on %s: %w", p, def.ID, err)
			}
			if err := l.Mint(tx, authority, access.Principal(p), amount); err != nil {
				return fmt.Errorf("mint %s to %s on %s: %w", amount, p, def.ID, err)
			}
		}
	}
	return nil
}
