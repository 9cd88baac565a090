package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// PublicKey is the public half of a Curve25519 encryption keypair. Vouch
// blocks are encrypted to it.
type PublicKey [32]byte

// VerifyKey is the public half of an Ed25519 signing keypair.
type VerifyKey [32]byte

func (k PublicKey) String() string { return hex.EncodeToString(k[:]) }

func (k VerifyKey) String() string { return hex.EncodeToString(k[:]) }

// Fingerprint returns a short, log-friendly identifier for the key.
func (k PublicKey) Fingerprint() string { return fingerprint(k[:]) }

// Fingerprint returns a short, log-friendly identifier for the key.
func (k VerifyKey) Fingerprint() string { return fingerprint(k[:]) }

func fingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:8])
}
