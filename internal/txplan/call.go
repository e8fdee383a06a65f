package txplan

import (
	"sponsorrail/internal/bcs"
	"sponsorrail/internal/ledger"
)

type argKind int

const (
	argPure argKind = iota
	argObject
	argResult
	argNestedResult
	argGasCoin
)

// Arg is one argument of a call: a pure value, an object, or the output of
// an earlier call in the same plan.
type Arg struct {
	kind     argKind
	pure     []byte
	objectID string
	call     int
	index    int
	err      error
}

// Pure passes already BCS-encoded bytes.
func Pure(b []byte) Arg { return Arg{kind: argPure, pure: b} }

// Address passes an account address as a pure value.
func Address(addr string) Arg {
	b, err := ledger.AddressBytes(addr)
	return Arg{kind: argPure, pure: b, err: err}
}

func String(s string) Arg { return Pure(bcs.String(s)) }
func Strings(ss []string) Arg { return Pure(bcs.Strings(ss)) }
func U64(v uint64) Arg { return Pure(bcs.U64(v)) }
func Bool(v bool) Arg { return Pure(bcs.Bool(v)) }
func Object(objectID string) Arg { return Arg{kind: argObject, objectID: objectID} }

// GasCoin references the coin paying for the transaction.
func GasCoin() Arg { return Arg{kind: argGasCoin} }

// Result references the single output of call number call.
func Result(call int) Arg { return Arg{kind: argResult, call: call} }

// NestedResult references output index of a call returning a tuple.
func NestedResult(call, index int) Arg {
	return Arg{kind: argNestedResult, call: call, index: index}
}

type CallKind int

const (
	CallMove CallKind = iota
	CallTransferObjects
)

func (k CallKind) String() string {
	if k == CallTransferObjects {
		return "TransferObjects"
	}
	return "MoveCall"
}

// CallSpec is one ledger operation in a plan.
type CallSpec struct {
	Kind CallKind

	// MoveCall
	Target        string
	TypeArguments []string
	Arguments     []Arg

	// TransferObjects
	Objects   []Arg
	Recipient Arg
}

// MoveCall targets "package::module::function".
func MoveCall(target string, typeArgs []string, args ...Arg) CallSpec {
	return CallSpec{Kind: CallMove, Target: target, TypeArguments: typeArgs, Arguments: args}
}

func TransferObjects(objects []Arg, recipient Arg) CallSpec {
	return CallSpec{Kind: CallTransferObjects, Objects: objects, Recipient: recipient}
}

// Label is a short description used in logs.
func (c CallSpec) Label() string {
	if c.Kind == CallTransferObjects {
		return c.Kind.String()
	}
	return c.Target
}
