package keystore

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Keyfile schema constants shared with the published key blocks.
const (
	Version = "0.0.1"
	Curve   = "Ed25519"
	KeyType = "OKP"

	UseSigning    = "signing"
	UseEncryption = "enc"
)

// KeySize is the size of every raw key carried in a keyfile or key block.
const KeySize = 32

// KeyEntry is a single JSON key description. The same shape is used for
// private entries in a keyfile and for the public key in a key block.
type KeyEntry struct {
	Curve   string `json:"crv"`
	KeyType string `json:"kty"`
	KeyID   string `json:"kid"`
	Use     string `json:"use"`
	X       string `json:"x"`
}

// NewKeyEntry builds an entry for raw key bytes, hex encoding them.
func NewKeyEntry(keyID, use string, key []byte) KeyEntry {
	return KeyEntry{
		Curve:   Curve,
		KeyType: KeyType,
		KeyID:   keyID,
		Use:     use,
		X:       hex.EncodeToString(key),
	}
}

// Decode validates the entry against the wanted use and returns the raw key.
func (e KeyEntry) Decode(use string) ([KeySize]byte, error) {
	var key [KeySize]byte
	if e.Curve != Curve || e.KeyType != KeyType {
		return key, fmt.Errorf("%w: %s key is crv %q kty %q, want %q %q", ErrKeyMaterial, use, e.Curve, e.KeyType, Curve, KeyType)
	}
	if e.Use != use {
		return key, fmt.Errorf("%w: key use %q, want %q", ErrKeyMaterial, e.Use, use)
	}
	if e.KeyID == "" {
		return key, fmt.Errorf("%w: %s key has no kid", ErrKeyMaterial, use)
	}
	raw, err := hex.DecodeString(e.X)
	if err != nil {
		return key, fmt.Errorf("%w: %s key is not hex: %v", ErrKeyMaterial, use, err)
	}
	if len(raw) != KeySize {
		return key, fmt.Errorf("%w: %s key is %d bytes, want %d", ErrKeyMaterial, use, len(raw), KeySize)
	}
	copy(key[:], raw)
	zeroize(raw)
	return key, nil
}

// KeypairBundle holds the private halves of the signing and encryption
// keypairs of one (user, epoch). Public halves are derived by the Keyring.
type KeypairBundle struct {
	SigningKeyID string
	// SigningSeed is the Ed25519 private key seed.
	SigningSeed [KeySize]byte

	EncryptionKeyID string
	// EncryptionKey is the Curve25519 private key.
	EncryptionKey [KeySize]byte
}

// Wipe zeroes the private key material held by the bundle.
func (b *KeypairBundle) Wipe() {
	zeroize32(&b.SigningSeed)
	zeroize32(&b.EncryptionKey)
}

type keyfile struct {
	Version string     `json:"version"`
	Keys    []KeyEntry `json:"keys"`
}

// MarshalKeyfile encodes the bundle in the persisted keyfile format.
func MarshalKeyfile(b *KeypairBundle) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: nil bundle", ErrKeyMaterial)
	}
	kf := keyfile{
		Version: Version,
		Keys: []KeyEntry{
			NewKeyEntry(b.SigningKeyID, UseSigning, b.SigningSeed[:]),
			NewKeyEntry(b.EncryptionKeyID, UseEncryption, b.EncryptionKey[:]),
		},
	}
	return json.Marshal(kf)
}

// ParseKeyfile decodes a persisted keyfile. Any structural problem is
// reported as ErrKeyMaterial.
func ParseKeyfile(data []byte) (*KeypairBundle, error) {
	b := new(KeypairBundle)
	if err := parseKeyfileInto(data, b); err != nil {
		return nil, err
	}
	return b, nil
}

// parseKeyfileInto fills b from data. On error b holds no key material.
func parseKeyfileInto(data []byte, b *KeypairBundle) error {
	var kf keyfile
	if err := json.Unmarshal(data, &kf); err != nil {
		return fmt.Errorf("%w: %v", ErrKeyMaterial, err)
	}
	if kf.Version != Version {
		return fmt.Errorf("%w: keyfile version %q, want %q", ErrKeyMaterial, kf.Version, Version)
	}

	var haveSigning, haveEnc bool
	fail := func(err error) error {
		b.Wipe()
		return err
	}
	for _, entry := range kf.Keys {
		switch entry.Use {
		case UseSigning:
			if haveSigning {
				return fail(fmt.Errorf("%w: duplicate signing key", ErrKeyMaterial))
			}
			seed, err := entry.Decode(UseSigning)
			if err != nil {
				return fail(err)
			}
			b.SigningSeed = seed
			b.SigningKeyID = entry.KeyID
			haveSigning = true
		case UseEncryption:
			if haveEnc {
				return fail(fmt.Errorf("%w: duplicate encryption key", ErrKeyMaterial))
			}
			key, err := entry.Decode(UseEncryption)
			if err != nil {
				return fail(err)
			}
			b.EncryptionKey = key
			b.EncryptionKeyID = entry.KeyID
			haveEnc = true
		default:
			return fail(fmt.Errorf("%w: unknown key use %q", ErrKeyMaterial, entry.Use))
		}
	}
	if !haveSigning || !haveEnc {
		return fail(fmt.Errorf("%w: keyfile needs one signing and one enc key", ErrKeyMaterial))
	}
	return nil
}
