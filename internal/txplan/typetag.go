package txplan

import (
	"fmt"
	"strings"

	"sponsorrail/internal/bcs"
	"sponsorrail/internal/ledger"
)

type tagKind int

// Discriminants follow the on-chain TypeTag enum order.
const (
	tagBool    tagKind = 0
	tagU8      tagKind = 1
	tagU64     tagKind = 2
	tagU128    tagKind = 3
	tagAddress tagKind = 4
	tagSigner  tagKind = 5
	tagVector  tagKind = 6
	tagStruct  tagKind = 7
	tagU16     tagKind = 8
	tagU32     tagKind = 9
	tagU256    tagKind = 10
)

var primitiveTags = map[string]tagKind{
	"bool":    tagBool,
	"u8":      tagU8,
	"u16":     tagU16,
	"u32":     tagU32,
	"u64":     tagU64,
	"u128":    tagU128,
	"u256":    tagU256,
	"address": tagAddress,
	"signer":  tagSigner,
}

// TypeTag is a parsed Move type.
type TypeTag struct {
	kind   tagKind
	elem   *TypeTag
	strukt *StructTag
}

type StructTag struct {
	Address    []byte
	Module     string
	Name       string
	TypeParams []TypeTag
}

// ParseTypeTag parses forms like "u64", "vector<u8>" and
// "0x2::coin::Coin<0x2::sui::SUI>".
func ParseTypeTag(s string) (TypeTag, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TypeTag{}, fmt.Errorf("empty type")
	}
	if k, ok := primitiveTags[s]; ok {
		return TypeTag{kind: k}, nil
	}
	if strings.HasPrefix(s, "vector<") && strings.HasSuffix(s, ">") {
		inner, err := ParseTypeTag(s[len("vector<") : len(s)-1])
		if err != nil {
			return TypeTag{}, err
		}
		return TypeTag{kind: tagVector, elem: &inner}, nil
	}

	head, params := s, ""
	if i := strings.IndexByte(s, '<'); i >= 0 {
		if !strings.HasSuffix(s, ">") {
			return TypeTag{}, fmt.Errorf("unbalanced generics in %q", s)
		}
		head, params = s[:i], s[i+1:len(s)-1]
	}

	parts := strings.Split(head, "::")
	if len(parts) != 3 {
		return TypeTag{}, fmt.Errorf("struct type %q must be address::module::name", s)
	}
	addr, err := ledger.AddressBytes(parts[0])
	if err != nil {
		return TypeTag{}, fmt.Errorf("type %q: %w", s, err)
	}
	if !isIdentifier(parts[1]) || !isIdentifier(parts[2]) {
		return TypeTag{}, fmt.Errorf("type %q has an invalid identifier", s)
	}

	st := &StructTag{Address: addr, Module: parts[1], Name: parts[2]}
	if params != "" {
		pieces, err := splitTopLevel(params)
		if err != nil {
			return TypeTag{}, fmt.Errorf("type %q: %w", s, err)
		}
		for _, p := range pieces {
			tp, err := ParseTypeTag(p)
			if err != nil {
				return TypeTag{}, err
			}
			st.TypeParams = append(st.TypeParams, tp)
		}
	}
	return TypeTag{kind: tagStruct, strukt: st}, nil
}

func splitTopLevel(s string) ([]string, error) {
	var (
		out   []string
		depth int
		start int
	)
	for i, r := range s {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced generics")
			}
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced generics")
	}
	return append(out, s[start:]), nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func (t TypeTag) encode(e *bcs.Encoder) {
	e.Variant(int(t.kind))
	switch t.kind {
	case tagVector:
		t.elem.encode(e)
	case tagStruct:
		e.Fixed(t.strukt.Address)
		e.String(t.strukt.Module)
		e.String(t.strukt.Name)
		e.Length(len(t.strukt.TypeParams))
		for _, p := range t.strukt.TypeParams {
			p.encode(e)
		}
	}
}
