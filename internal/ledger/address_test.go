package ledger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	got, err := NormalizeAddress("0x2")
	require.NoError(t, err)
	assert.Equal(t, "0x"+strings.Repeat("0", 63)+"2", got)

	full := "0x" + strings.Repeat("ab", 32)
	got, err = NormalizeAddress(strings.ToUpper(full[2:]))
	require.NoError(t, err)
	assert.Equal(t, full, got)

	for _, bad := range []string{"", "0x", "0xzz", "0x" + strings.Repeat("1", 65)} {
		_, err := NormalizeAddress(bad)
		assert.Error(t, err, bad)
	}
}

func TestSameAddress(t *testing.T) {
	assert.True(t, SameAddress("0x2", "0x0000000000000000000000000000000000000000000000000000000000000002"))
	assert.True(t, SameAddress("0xAB", "0xab"))
	assert.False(t, SameAddress("0x1", "0x2"))
	assert.False(t, SameAddress("", ""))
}

func TestAddressAndDigestBytes(t *testing.T) {
	b, err := AddressBytes("0x2")
	require.NoError(t, err)
	require.Len(t, b, 32)
	assert.Equal(t, byte(2), b[31])

	d, err := DigestBytes(fakeDigest)
	require.NoError(t, err)
	assert.Len(t, d, 32)

	_, err = DigestBytes("abc")
	assert.Error(t, err)
}
