package txplan

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sender     = "0xa11ce"
	user       = "0xb0b"
	zeroDigest = "11111111111111111111111111111111"
)

func addr32(last byte) []byte {
	b := make([]byte, 32)
	b[31] = last
	return b
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func TestBuildRejectsInvalidPlans(t *testing.T) {
	kioskNew := MoveCall("0x2::kiosk::new", nil)

	_, err := Build(nil, sender, sender, 10)
	assert.ErrorIs(t, err, ErrNoCalls)

	_, err = Build([]CallSpec{kioskNew}, sender, sender, 0)
	assert.ErrorIs(t, err, ErrZeroBudget)

	_, err = Build([]CallSpec{kioskNew}, sender, user, 10)
	assert.ErrorIs(t, err, ErrSenderNotFeePayer)

	_, err = Build([]CallSpec{
		TransferObjects([]Arg{NestedResult(0, 1)}, Address(user)),
		kioskNew,
	}, sender, sender, 10)
	assert.ErrorIs(t, err, ErrForwardReference)

	_, err = Build([]CallSpec{TransferObjects([]Arg{Result(0)}, Address(user))}, sender, sender, 10)
	assert.ErrorIs(t, err, ErrForwardReference, "self reference")

	_, err = Build([]CallSpec{MoveCall("0x2::kiosk", nil)}, sender, sender, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "package::module::function")

	_, err = Build([]CallSpec{MoveCall("0x2::kiosk::new", nil, Address("not-hex"))}, sender, sender, 10)
	assert.Error(t, err)
}

func TestBuildDeduplicatesObjectInputs(t *testing.T) {
	p, err := Build([]CallSpec{
		MoveCall("0x2::kiosk::touch", nil, Object("0x55"), U64(1)),
		MoveCall("0x2::kiosk::touch", nil, Object("0x0055"), U64(2)),
	}, sender, sender, 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"0x" + strings.Repeat("0", 62) + "55"}, p.ObjectInputs())
	assert.Len(t, p.inputs, 3, "one object plus two pure values")
	assert.Equal(t, p.commands[0].args[0], p.commands[1].args[0])
}

func TestMarshalBCSMatchesLayout(t *testing.T) {
	p, err := Build([]CallSpec{
		MoveCall("0x2::kiosk::new", nil),
		TransferObjects([]Arg{NestedResult(0, 1)}, Address(user)),
		MoveCall("0x2::transfer::public_share_object", []string{"0x2::kiosk::Kiosk"}, NestedResult(0, 0)),
	}, sender, sender, 5_000_000)
	require.NoError(t, err)
	assert.Empty(t, p.ObjectInputs())

	gasID := "0x9"
	got, err := p.MarshalBCS(nil, GasData{
		Payment: []ObjectRef{{ObjectID: gasID, Version: 7, Digest: zeroDigest}},
		Price:   750,
		Budget:  5_000_000,
	})
	require.NoError(t, err)

	var want bytes.Buffer
	want.Write([]byte{0x00, 0x00}) // V1, programmable
	// inputs: one pure address
	want.Write([]byte{0x01, 0x00, 0x20})
	want.Write(addr32(0x0b)[:30])
	want.Write([]byte{0x0b, 0x0b})
	// commands
	want.WriteByte(0x03)
	// kiosk::new
	want.WriteByte(0x00)
	want.Write(addr32(0x02))
	want.Write([]byte{0x05, 'k', 'i', 'o', 's', 'k', 0x03, 'n', 'e', 'w', 0x00, 0x00})
	// transfer NestedResult(0,1) to Input(0)
	want.Write([]byte{0x01, 0x01, 0x03, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00})
	// public_share_object<0x2::kiosk::Kiosk>(NestedResult(0,0))
	want.WriteByte(0x00)
	want.Write(addr32(0x02))
	want.WriteByte(0x08)
	want.WriteString("transfer")
	want.WriteByte(0x13)
	want.WriteString("public_share_object")
	want.Write([]byte{0x01, 0x07})
	want.Write(addr32(0x02))
	want.Write([]byte{0x05, 'k', 'i', 'o', 's', 'k', 0x05, 'K', 'i', 'o', 's', 'k', 0x00})
	want.Write([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x00})
	// sender
	senderBytes := addr32(0xce)
	senderBytes[30], senderBytes[29] = 0x11, 0x0a
	want.Write(senderBytes)
	// gas data
	want.WriteByte(0x01)
	want.Write(addr32(0x09))
	want.Write(le64(7))
	want.WriteByte(0x20)
	want.Write(make([]byte, 32))
	want.Write(senderBytes)
	want.Write(le64(750))
	want.Write(le64(5_000_000))
	want.WriteByte(0x00) // no expiration

	assert.Equal(t, want.Bytes(), got)
}

func TestMarshalBCSObjectInputs(t *testing.T) {
	p, err := Build([]CallSpec{
		MoveCall("0x2::kiosk::set_owner_custom", nil, Object("0x10"), Object("0x11"), Address(user)),
	}, sender, sender, 10)
	require.NoError(t, err)

	_, err = p.MarshalBCS(map[string]ObjectArg{}, GasData{Budget: 10})
	assert.ErrorIs(t, err, ErrUnresolvedObject)

	ids := p.ObjectInputs()
	require.Len(t, ids, 2)
	got, err := p.MarshalBCS(map[string]ObjectArg{
		ids[0]: {Shared: true, InitialSharedVersion: 3, Mutable: true},
		ids[1]: {Ref: ObjectRef{ObjectID: ids[1], Version: 4, Digest: zeroDigest}},
	}, GasData{Budget: 10, Price: 1})
	require.NoError(t, err)

	prefix := []byte{0x00, 0x00, 0x03, 0x01, 0x01}
	require.True(t, bytes.HasPrefix(got, prefix))
	shared := got[len(prefix):]
	assert.Equal(t, addr32(0x10), shared[:32])
	assert.Equal(t, le64(3), shared[32:40])
	assert.Equal(t, byte(0x01), shared[40])

	owned := shared[41:]
	assert.Equal(t, []byte{0x01, 0x00}, owned[:2])
	assert.Equal(t, addr32(0x11), owned[2:34])
	assert.Equal(t, le64(4), owned[34:42])
}

func TestParseTypeTag(t *testing.T) {
	for _, s := range []string{
		"u64",
		"vector<u8>",
		"0x2::kiosk::Kiosk",
		"0x2::coin::Coin<0x2::sui::SUI>",
		"0x2::table::Table<address, vector<0x1::string::String>>",
	} {
		_, err := ParseTypeTag(s)
		assert.NoError(t, err, s)
	}

	tag, err := ParseTypeTag("0x2::table::Table<address, vector<u8>>")
	require.NoError(t, err)
	require.NotNil(t, tag.strukt)
	require.Len(t, tag.strukt.TypeParams, 2)
	assert.Equal(t, tagAddress, tag.strukt.TypeParams[0].kind)
	assert.Equal(t, tagVector, tag.strukt.TypeParams[1].kind)

	for _, s := range []string{"", "0x2::kiosk", "0x2::kiosk::Kiosk<u8", "0x2::1kiosk::Kiosk", "zz::a::B"} {
		_, err := ParseTypeTag(s)
		assert.Error(t, err, s)
	}
}
