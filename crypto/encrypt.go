// Package crypto implements the per-(user, epoch) Keyring: authenticated
// public-key encryption of master keys (vouching), symmetric encryption of
// messages under a channel master key, and signatures over ciphertext.
//
// Primitives are NaCl's as provided by golang.org/x/crypto: box
// (Curve25519, XSalsa20, Poly1305) for vouching, secretbox for messages and
// Ed25519 for signatures. Every ciphertext carries its random 24-byte nonce
// as a prefix.
package crypto

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// NonceSize is the length of the nonce prefixed to every ciphertext.
	NonceSize = 24
	// MasterKeySize is the length of a channel master key.
	MasterKeySize = 32
)

// randReader is the entropy source for keys and nonces.
var randReader io.Reader = rand.Reader

func newNonce() (*[NonceSize]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(randReader, nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return &nonce, nil
}

func splitNonce(ciphertext []byte, overhead int) (*[NonceSize]byte, []byte, bool) {
	if len(ciphertext) < NonceSize+overhead {
		return nil, nil, false
	}
	var nonce [NonceSize]byte
	copy(nonce[:], ciphertext[:NonceSize])
	return &nonce, ciphertext[NonceSize:], true
}

// SealSymmetric encrypts plaintext under a master key.
// Output format: [nonce:24][secretbox]
func SealSymmetric(plaintext []byte, key *[MasterKeySize]byte) ([]byte, error) {
	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plaintext, nonce, key), nil
}

// OpenSymmetric decrypts a SealSymmetric ciphertext. A ciphertext written
// under another master key, or modified in transit, yields ErrDecryption.
func OpenSymmetric(ciphertext []byte, key *[MasterKeySize]byte) ([]byte, error) {
	nonce, sealed, ok := splitNonce(ciphertext, secretbox.Overhead)
	if !ok {
		return nil, fmt.Errorf("%w: ciphertext too short (%d bytes)", ErrDecryption, len(ciphertext))
	}
	plaintext, ok := secretbox.Open(nil, sealed, nonce, key)
	if !ok {
		return nil, ErrDecryption
	}
	return plaintext, nil
}

// SealFor encrypts plaintext from the holder of senderKey to recipient.
// The result authenticates both parties, so it needs no extra signature.
// Output format: [nonce:24][box]
func SealFor(plaintext []byte, recipient PublicKey, senderKey *[32]byte) ([]byte, error) {
	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}
	peer := [32]byte(recipient)
	return box.Seal(nonce[:], plaintext, nonce, &peer, senderKey), nil
}

// OpenFrom decrypts a SealFor ciphertext addressed to the holder of
// recipientKey and produced by sender. Anything else is ErrAuthentication.
func OpenFrom(ciphertext []byte, sender PublicKey, recipientKey *[32]byte) ([]byte, error) {
	nonce, sealed, ok := splitNonce(ciphertext, box.Overhead)
	if !ok {
		return nil, fmt.Errorf("%w: box too short (%d bytes)", ErrAuthentication, len(ciphertext))
	}
	peer := [32]byte(sender)
	plaintext, ok := box.Open(nil, sealed, nonce, &peer, recipientKey)
	if !ok {
		return nil, fmt.Errorf("%w: box not sealed by %s for this key", ErrAuthentication, sender.Fingerprint())
	}
	return plaintext, nil
}

// publicKeyFor derives the Curve25519 public key of a private key.
func publicKeyFor(private *[32]byte) (PublicKey, error) {
	var pk PublicKey
	pub, err := curve25519.X25519(private[:], curve25519.Basepoint)
	if err != nil {
		return pk, fmt.Errorf("%w: %v", ErrKeyMaterial, err)
	}
	copy(pk[:], pub)
	return pk, nil
}
