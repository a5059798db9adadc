package events

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// filterVars are declared for every filter. Payload fields an event does not
// carry make the expression evaluate to false.
var filterVars = []string{
	"kind", "ledger", "seq", "time",
	FieldFrom, FieldTo, FieldAmount, FieldOwner, FieldSpender, FieldWallet,
	FieldFrozen, FieldMember, FieldRole, FieldAccount, FieldSender,
	FieldReceiver, FieldPreviousAdminRole, FieldNewAdminRole, FieldPrevious,
	FieldCurrent, FieldProposalID, FieldSenderInstitution,
	FieldReceiverInstitution, FieldSenderLedger, FieldReceiverLedger,
	FieldReason, FieldKey, FieldLedgerKind, FieldInstitution,
}

// Filter is a compiled CEL expression over event attributes, for example
// `kind == "Transfer" && amount >= 10000`.
type Filter struct {
	expr    string
	program cel.Program
}

// Compile parses and type-checks expr.
func Compile(expr string) (*Filter, error) {
	opts := make([]cel.EnvOption, 0, len(filterVars)+1)
	for _, name := range filterVars {
		opts = append(opts, cel.Variable(name, cel.DynType))
	}
	opts = append(opts, cel.Variable("fields", cel.MapType(cel.StringType, cel.DynType)))

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel compile: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType && ast.OutputType() != cel.DynType {
		return nil, fmt.Errorf("cel compile: expression must be boolean, got %s", ast.OutputType())
	}

	prog, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cel program: %w", err)
	}
	return &Filter{expr: expr, program: prog}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	return f.expr
}

// Match reports whether ev satisfies the filter. Missing fields, type
// mismatches and evaluation errors all yield false.
func (f *Filter) Match(ev *Event) bool {
	out, _, err := f.program.Eval(ev.Attributes())
	if err != nil {
		return false
	}
	if out.Type() != types.BoolType {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
