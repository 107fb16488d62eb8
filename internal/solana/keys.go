package solana

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

const (
	// PublicKeyLength is the byte length of an account address.
	PublicKeyLength = 32
	// SignatureLength is the byte length of a transaction signature.
	SignatureLength = 64
)

// EncodeSignature renders raw signature bytes as base58 text.
func EncodeSignature(sig []byte) string {
	return base58.Encode(sig)
}

// DecodePublicKey decodes a base58 account address and checks its length.
func DecodePublicKey(address string) ([]byte, error) {
	decoded, err := base58.Decode(address)
	if err != nil {
		return nil, fmt.Errorf("decode address %q: %w", address, err)
	}
	if len(decoded) != PublicKeyLength {
		return nil, fmt.Errorf("address %q: expected %d bytes, got %d", address, PublicKeyLength, len(decoded))
	}
	return decoded, nil
}

// IsOnCurve reports whether a 32-byte key is a valid ed25519 point.
// Program-derived addresses are deliberately off the curve.
func IsOnCurve(point []byte) bool {
	if len(point) != PublicKeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
