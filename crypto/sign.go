package crypto

import (
	"crypto/ed25519"
	"fmt"

	"golang.org/x/crypto/nacl/sign"
)

// SignatureSize is the length of the signature prepended by Sign.
const SignatureSize = sign.Overhead

// Sign returns message prefixed with its Ed25519 signature under key
// (NaCl combined mode: signature || message).
func Sign(message []byte, key *[64]byte) []byte {
	return sign.Sign(nil, message, key)
}

// Verify checks the signature on a blob produced by Sign against key and
// returns the message with the signature stripped. Any mismatch, including
// a blob too short to carry a signature, is an ErrAuthentication.
func Verify(signed []byte, key VerifyKey) ([]byte, error) {
	if len(signed) < SignatureSize {
		return nil, fmt.Errorf("%w: signed blob too short (%d bytes)", ErrAuthentication, len(signed))
	}
	pub := [32]byte(key)
	message, ok := sign.Open(nil, signed, &pub)
	if !ok {
		return nil, fmt.Errorf("%w: signature does not match verify key %s", ErrAuthentication, key.Fingerprint())
	}
	return message, nil
}

// signingKeyFromSeed expands an Ed25519 seed into the 64-byte private key
// NaCl expects, returning it with its verify key.
func signingKeyFromSeed(seed *[32]byte) (*[64]byte, VerifyKey) {
	priv := ed25519.NewKeyFromSeed(seed[:])
	defer zeroize(priv)

	var key [64]byte
	copy(key[:], priv)
	var vk VerifyKey
	copy(vk[:], priv[32:])
	return &key, vk
}
