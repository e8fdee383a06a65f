package ledger

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cosmos/btcutil/base58"
)

const addressHexLen = 64

// NormalizeAddress returns addr as 0x-prefixed, lower-case, 64 hex digits.
// Short forms such as "0x2" are left-padded.
func NormalizeAddress(addr string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(addr))
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return "", fmt.Errorf("empty address")
	}
	if len(s) > addressHexLen {
		return "", fmt.Errorf("address %q longer than 32 bytes", addr)
	}
	if _, err := hex.DecodeString(padHex(s)); err != nil {
		return "", fmt.Errorf("address %q is not hex", addr)
	}
	return "0x" + strings.Repeat("0", addressHexLen-len(s)) + s, nil
}

// SameAddress compares two addresses after normalization. Invalid input never matches.
func SameAddress(a, b string) bool {
	na, err := NormalizeAddress(a)
	if err != nil {
		return false
	}
	nb, err := NormalizeAddress(b)
	if err != nil {
		return false
	}
	return na == nb
}

// AddressBytes decodes an address or object id into its 32 raw bytes.
func AddressBytes(addr string) ([]byte, error) {
	n, err := NormalizeAddress(addr)
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(n[2:])
}

// DigestBytes decodes a base58 object digest.
func DigestBytes(digest string) ([]byte, error) {
	b := base58.Decode(digest)
	if len(b) != 32 {
		return nil, fmt.Errorf("digest %q: want 32 bytes, got %d", digest, len(b))
	}
	return b, nil
}

func padHex(s string) string {
	if len(s)%2 == 1 {
		return "0" + s
	}
	return s
}
