// Package sponsor holds the operator key that pays fees and signs every
// mutating transaction on behalf of end users.
package sponsor

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cosmos/btcutil/bech32"
	"golang.org/x/crypto/blake2b"

	"sponsorrail/internal/apperr"
)

const (
	// PrivateKeyPrefix marks the self-describing bech32 secret encoding.
	PrivateKeyPrefix = "suiprivkey"

	flagEd25519   byte = 0x00
	bech32Limit        = 1023
	intentVersion byte = 0x00
	intentAppID   byte = 0x00
	intentScopeTx byte = 0x00
)

// Signer signs transaction bytes as the sponsor.
type Signer interface {
	Address() string
	SignTransaction(txBytes []byte) (string, error)
}

// Identity is an Ed25519 sponsor key and its derived address. Immutable.
type Identity struct {
	priv    ed25519.PrivateKey
	pub     ed25519.PublicKey
	address string
}

// ParseSecret decodes a configured secret. The decoder is chosen by prefix:
// "suiprivkey..." is bech32, anything else is base64 raw key bytes.
func ParseSecret(secret string) (*Identity, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, apperr.New(apperr.KindConfiguration, "sponsor", "sponsor secret is not configured")
	}

	var (
		seed []byte
		err  error
	)
	if strings.HasPrefix(secret, PrivateKeyPrefix) {
		seed, err = decodeBech32(secret)
	} else {
		seed, err = decodeRaw(secret)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, "sponsor", err)
	}
	return fromSeed(seed), nil
}

func decodeBech32(secret string) ([]byte, error) {
	hrp, data, err := bech32.Decode(secret, bech32Limit)
	if err != nil {
		return nil, fmt.Errorf("decode bech32 secret: %w", err)
	}
	if hrp != PrivateKeyPrefix {
		return nil, fmt.Errorf("unexpected secret prefix %q", hrp)
	}
	payload, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("convert bech32 payload: %w", err)
	}
	if len(payload) != 1+ed25519.SeedSize {
		return nil, fmt.Errorf("bech32 secret: want %d bytes, got %d", 1+ed25519.SeedSize, len(payload))
	}
	if payload[0] != flagEd25519 {
		return nil, fmt.Errorf("unsupported key scheme flag 0x%02x", payload[0])
	}
	return payload[1:], nil
}

func decodeRaw(secret string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("decode base64 secret: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return raw, nil
	case 1 + ed25519.SeedSize:
		if raw[0] != flagEd25519 {
			return nil, fmt.Errorf("unsupported key scheme flag 0x%02x", raw[0])
		}
		return raw[1:], nil
	case ed25519.PrivateKeySize:
		seed := raw[:ed25519.SeedSize]
		derived := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
		if !derived.Equal(ed25519.PublicKey(raw[ed25519.SeedSize:])) {
			return nil, fmt.Errorf("raw secret public half does not match its seed")
		}
		return seed, nil
	}
	return nil, fmt.Errorf("raw secret: unexpected length %d", len(raw))
}

func fromSeed(seed []byte) *Identity {
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Identity{priv: priv, pub: pub, address: DeriveAddress(pub)}
}

// DeriveAddress hashes flag||pubkey with blake2b-256.
func DeriveAddress(pub ed25519.PublicKey) string {
	sum := blake2b.Sum256(append([]byte{flagEd25519}, pub...))
	return "0x" + hex.EncodeToString(sum[:])
}

// EncodeSecret renders seed in the bech32 form ParseSecret accepts.
func EncodeSecret(seed []byte) (string, error) {
	if len(seed) != ed25519.SeedSize {
		return "", fmt.Errorf("seed must be %d bytes", ed25519.SeedSize)
	}
	data, err := bech32.ConvertBits(append([]byte{flagEd25519}, seed...), 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(PrivateKeyPrefix, data)
}

func (i *Identity) Address() string { return i.address }

func (i *Identity) PublicKey() ed25519.PublicKey {
	return append(ed25519.PublicKey(nil), i.pub...)
}

// SignTransaction signs the transaction intent and returns the serialized
// signature flag||sig||pubkey, base64.
func (i *Identity) SignTransaction(txBytes []byte) (string, error) {
	if len(txBytes) == 0 {
		return "", fmt.Errorf("empty transaction bytes")
	}
	digest := IntentDigest(txBytes)
	sig := ed25519.Sign(i.priv, digest[:])

	out := make([]byte, 0, 1+ed25519.SignatureSize+ed25519.PublicKeySize)
	out = append(out, flagEd25519)
	out = append(out, sig...)
	out = append(out, i.pub...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// IntentDigest is blake2b-256 over the transaction intent prefix and bytes.
func IntentDigest(txBytes []byte) [32]byte {
	msg := make([]byte, 0, 3+len(txBytes))
	msg = append(msg, intentScopeTx, intentVersion, intentAppID)
	msg = append(msg, txBytes...)
	return blake2b.Sum256(msg)
}
