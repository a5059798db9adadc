// Package events records the ledger's domain events as a hash-chained log.
//
// Every committed event carries a sequence number, a UUID, the logical time
// of the transaction that produced it, and a blake2b-256 hash over its own
// content and the previous event's hash. Verify walks the chain.
package events

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Event kinds.
const (
	KindTransfer              = "Transfer"
	KindApproval              = "Approval"
	KindFrozenBalance         = "FrozenBalance"
	KindEnabledAccount        = "EnabledAccount"
	KindDisabledAccount       = "DisabledAccount"
	KindRoleGranted           = "RoleGranted"
	KindRoleRevoked           = "RoleRevoked"
	KindRoleAdminChanged      = "RoleAdminChanged"
	KindPaused                = "Paused"
	KindUnpaused              = "Unpaused"
	KindReserveAccountChanged = "ReserveAccountChanged"
	KindLedgerCreated         = "LedgerCreated"
	KindSwapStarted           = "SwapStarted"
	KindSwapExecuted          = "SwapExecuted"
	KindSwapCancelled         = "SwapCancelled"
	KindDirectoryEntrySet     = "DirectoryEntrySet"
	KindDirectoryEntryRemoved = "DirectoryEntryRemoved"
)

// Field names used in event payloads.
const (
	FieldFrom                = "from"
	FieldTo                  = "to"
	FieldAmount              = "amount"
	FieldOwner               = "owner"
	FieldSpender             = "spender"
	FieldWallet              = "wallet"
	FieldFrozen              = "frozen"
	FieldMember              = "member"
	FieldRole                = "role"
	FieldAccount             = "account"
	FieldSender              = "sender"
	FieldReceiver            = "receiver"
	FieldPreviousAdminRole   = "previous_admin_role"
	FieldNewAdminRole        = "new_admin_role"
	FieldPrevious            = "previous"
	FieldCurrent             = "current"
	FieldProposalID          = "proposal_id"
	FieldSenderInstitution   = "sender_institution"
	FieldReceiverInstitution = "receiver_institution"
	FieldSenderLedger        = "sender_ledger"
	FieldReceiverLedger      = "receiver_ledger"
	FieldReason              = "reason"
	FieldKey                 = "key"
	FieldLedgerKind          = "ledger_kind"
	FieldInstitution         = "institution"
)

// Event is one committed entry of the audit log.
type Event struct {
	Seq      uint64         `json:"seq"`
	ID       string         `json:"id"`
	Kind     string         `json:"kind"`
	Ledger   string         `json:"ledger,omitempty"`
	Time     time.Time      `json:"time"`
	Fields   map[string]any `json:"fields,omitempty"`
	PrevHash string         `json:"prev_hash"`
	Hash     string         `json:"hash"`
}

// ComputeHash returns the hex blake2b-256 digest of every field but Hash.
func (e *Event) ComputeHash() (string, error) {
	content := *e
	content.Hash = ""
	data, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("encode event %d: %w", e.Seq, err)
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Attributes flattens the event into the variable set seen by filters.
// Payload fields sit at top level next to kind, ledger, seq and time.
func (e *Event) Attributes() map[string]any {
	attrs := make(map[string]any, len(e.Fields)+5)
	fields := make(map[string]any, len(e.Fields))
	for k, v := range e.Fields {
		nv := normalize(v)
		attrs[k] = nv
		fields[k] = nv
	}
	attrs["kind"] = e.Kind
	attrs["ledger"] = e.Ledger
	attrs["seq"] = int64(e.Seq)
	attrs["time"] = e.Time
	attrs["fields"] = fields
	return attrs
}

// Int64 returns the integer payload field name, if present.
func (e *Event) Int64(name string) (int64, bool) {
	n, ok := normalize(e.Fields[name]).(int64)
	return n, ok
}

// String returns the string payload field name, if present.
func (e *Event) String(name string) string {
	s, _ := e.Fields[name].(string)
	return s
}

func normalize(v any) any {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		if n == float64(int64(n)) {
			return int64(n)
		}
		return n
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.String:
		return rv.String()
	default:
		return v
	}
}
