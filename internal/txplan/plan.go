// Package txplan turns an ordered list of ledger calls into a single atomic
// transaction and serializes it for signing.
package txplan

import (
	"errors"
	"fmt"
	"strings"

	"sponsorrail/internal/bcs"
	"sponsorrail/internal/ledger"
)

var (
	ErrNoCalls            = errors.New("txplan: plan has no calls")
	ErrZeroBudget         = errors.New("txplan: fee budget must be positive")
	ErrSenderNotFeePayer  = errors.New("txplan: sender must pay its own fees")
	ErrForwardReference   = errors.New("txplan: result reference must point at an earlier call")
	ErrUnresolvedObject   = errors.New("txplan: object input not resolved")
	ErrEmptyTransferBatch = errors.New("txplan: transfer has no objects")
)

// Plan is a built transaction: deduplicated inputs plus commands, still
// missing object versions and gas data.
type Plan struct {
	Sender    string
	FeePayer  string
	FeeBudget uint64
	Calls     []CallSpec

	inputs   []input
	commands []command
}

type input struct {
	pure     []byte
	objectID string
}

type argument struct {
	kind  argKind
	index uint16
	sub   uint16
}

type command struct {
	kind      CallKind
	pkg       []byte
	module    string
	function  string
	typeArgs  []TypeTag
	args      []argument
	objects   []argument
	recipient argument
}

// Build validates the calls and lays out inputs. Sender and fee payer must be
// the same account.
func Build(calls []CallSpec, sender, feePayer string, feeBudget uint64) (*Plan, error) {
	if len(calls) == 0 {
		return nil, ErrNoCalls
	}
	if feeBudget == 0 {
		return nil, ErrZeroBudget
	}
	s, err := ledger.NormalizeAddress(sender)
	if err != nil {
		return nil, fmt.Errorf("txplan: sender: %w", err)
	}
	fp, err := ledger.NormalizeAddress(feePayer)
	if err != nil {
		return nil, fmt.Errorf("txplan: fee payer: %w", err)
	}
	if s != fp {
		return nil, ErrSenderNotFeePayer
	}

	p := &Plan{Sender: s, FeePayer: fp, FeeBudget: feeBudget, Calls: calls}
	objectIndex := make(map[string]uint16)

	toArg := func(pos int, a Arg) (argument, error) {
		if a.err != nil {
			return argument{}, a.err
		}
		switch a.kind {
		case argPure:
			p.inputs = append(p.inputs, input{pure: a.pure})
			return argument{kind: argPure, index: uint16(len(p.inputs) - 1)}, nil
		case argObject:
			id, err := ledger.NormalizeAddress(a.objectID)
			if err != nil {
				return argument{}, fmt.Errorf("object %q: %w", a.objectID, err)
			}
			if idx, ok := objectIndex[id]; ok {
				return argument{kind: argObject, index: idx}, nil
			}
			p.inputs = append(p.inputs, input{objectID: id})
			idx := uint16(len(p.inputs) - 1)
			objectIndex[id] = idx
			return argument{kind: argObject, index: idx}, nil
		case argResult, argNestedResult:
			if a.call < 0 || a.call >= pos || a.index < 0 {
				return argument{}, ErrForwardReference
			}
			return argument{kind: a.kind, index: uint16(a.call), sub: uint16(a.index)}, nil
		default:
			return argument{kind: argGasCoin}, nil
		}
	}

	for pos, c := range calls {
		cmd := command{kind: c.Kind}
		switch c.Kind {
		case CallMove:
			pkg, module, fn, err := splitTarget(c.Target)
			if err != nil {
				return nil, err
			}
			cmd.pkg, cmd.module, cmd.function = pkg, module, fn
			for _, ta := range c.TypeArguments {
				tag, err := ParseTypeTag(ta)
				if err != nil {
					return nil, fmt.Errorf("txplan: call %d type argument: %w", pos, err)
				}
				cmd.typeArgs = append(cmd.typeArgs, tag)
			}
			for _, a := range c.Arguments {
				arg, err := toArg(pos, a)
				if err != nil {
					return nil, fmt.Errorf("txplan: call %d (%s): %w", pos, c.Target, err)
				}
				cmd.args = append(cmd.args, arg)
			}
		case CallTransferObjects:
			if len(c.Objects) == 0 {
				return nil, ErrEmptyTransferBatch
			}
			for _, a := range c.Objects {
				arg, err := toArg(pos, a)
				if err != nil {
					return nil, fmt.Errorf("txplan: call %d (transfer): %w", pos, err)
				}
				cmd.objects = append(cmd.objects, arg)
			}
			rcpt, err := toArg(pos, c.Recipient)
			if err != nil {
				return nil, fmt.Errorf("txplan: call %d (recipient): %w", pos, err)
			}
			cmd.recipient = rcpt
		default:
			return nil, fmt.Errorf("txplan: call %d has unknown kind %d", pos, c.Kind)
		}
		p.commands = append(p.commands, cmd)
	}
	return p, nil
}

func splitTarget(target string) ([]byte, string, string, error) {
	parts := strings.Split(target, "::")
	if len(parts) != 3 {
		return nil, "", "", fmt.Errorf("txplan: target %q must be package::module::function", target)
	}
	pkg, err := ledger.AddressBytes(parts[0])
	if err != nil {
		return nil, "", "", fmt.Errorf("txplan: target %q: %w", target, err)
	}
	if !isIdentifier(parts[1]) || !isIdentifier(parts[2]) {
		return nil, "", "", fmt.Errorf("txplan: target %q has an invalid identifier", target)
	}
	return pkg, parts[1], parts[2], nil
}

// ObjectInputs lists the object ids the executor has to resolve, in input order.
func (p *Plan) ObjectInputs() []string {
	var ids []string
	for _, in := range p.inputs {
		if in.objectID != "" {
			ids = append(ids, in.objectID)
		}
	}
	return ids
}

// ObjectRef pins an object at a version.
type ObjectRef struct {
	ObjectID string
	Version  uint64
	Digest   string
}

// ObjectArg describes how an object input is used: by reference when owned,
// or by initial shared version when shared.
type ObjectArg struct {
	Shared               bool
	Ref                  ObjectRef
	InitialSharedVersion uint64
	Mutable              bool
}

type GasData struct {
	Payment []ObjectRef
	Price   uint64
	Budget  uint64
}

// MarshalBCS serializes the plan as TransactionData (V1, programmable, no
// expiration). Every id from ObjectInputs must be present in objects.
func (p *Plan) MarshalBCS(objects map[string]ObjectArg, gas GasData) ([]byte, error) {
	e := bcs.NewEncoder()
	e.Variant(0) // TransactionData::V1
	e.Variant(0) // TransactionKind::ProgrammableTransaction

	e.Length(len(p.inputs))
	for _, in := range p.inputs {
		if in.objectID == "" {
			e.Variant(0)
			e.ByteVector(in.pure)
			continue
		}
		obj, ok := objects[in.objectID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnresolvedObject, in.objectID)
		}
		e.Variant(1)
		if obj.Shared {
			id, err := ledger.AddressBytes(in.objectID)
			if err != nil {
				return nil, err
			}
			e.Variant(1)
			e.Fixed(id)
			e.U64(obj.InitialSharedVersion)
			e.Bool(obj.Mutable)
			continue
		}
		e.Variant(0)
		if err := encodeRef(e, obj.Ref); err != nil {
			return nil, err
		}
	}

	e.Length(len(p.commands))
	for _, c := range p.commands {
		switch c.kind {
		case CallMove:
			e.Variant(0)
			e.Fixed(c.pkg)
			e.String(c.module)
			e.String(c.function)
			e.Length(len(c.typeArgs))
			for _, t := range c.typeArgs {
				t.encode(e)
			}
			e.Length(len(c.args))
			for _, a := range c.args {
				encodeArgument(e, a)
			}
		case CallTransferObjects:
			e.Variant(1)
			e.Length(len(c.objects))
			for _, a := range c.objects {
				encodeArgument(e, a)
			}
			encodeArgument(e, c.recipient)
		}
	}

	sender, err := ledger.AddressBytes(p.Sender)
	if err != nil {
		return nil, err
	}
	e.Fixed(sender)

	e.Length(len(gas.Payment))
	for _, ref := range gas.Payment {
		if err := encodeRef(e, ref); err != nil {
			return nil, err
		}
	}
	owner, err := ledger.AddressBytes(p.FeePayer)
	if err != nil {
		return nil, err
	}
	e.Fixed(owner)
	e.U64(gas.Price)
	e.U64(gas.Budget)

	e.Variant(0) // TransactionExpiration::None
	return e.Bytes(), nil
}

func encodeRef(e *bcs.Encoder, ref ObjectRef) error {
	id, err := ledger.AddressBytes(ref.ObjectID)
	if err != nil {
		return fmt.Errorf("txplan: object id %q: %w", ref.ObjectID, err)
	}
	digest, err := ledger.DigestBytes(ref.Digest)
	if err != nil {
		return fmt.Errorf("txplan: object %s digest: %w", ref.ObjectID, err)
	}
	e.Fixed(id)
	e.U64(ref.Version)
	e.ByteVector(digest)
	return nil
}

func encodeArgument(e *bcs.Encoder, a argument) {
	switch a.kind {
	case argGasCoin:
		e.Variant(0)
	case argPure, argObject:
		e.Variant(1)
		e.U16(a.index)
	case argResult:
		e.Variant(2)
		e.U16(a.index)
	case argNestedResult:
		e.Variant(3)
		e.U16(a.index)
		e.U16(a.sub)
	}
}
