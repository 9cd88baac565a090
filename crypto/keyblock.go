package crypto

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/joncooperworks/vouch/crypto/keystore"
)

// KeyBlock is the published description of one public key. A public
// encryption key block is distributed signed; a verify key block is
// distributed as is and anchors trust in that user's epoch keys.
type KeyBlock struct {
	Version string            `json:"version"`
	Key     keystore.KeyEntry `json:"key"`
}

// VouchBlock carries a master key encrypted for exactly one recipient.
type VouchBlock struct {
	Version string `json:"version"`
	// Key is the hex encoded box ciphertext of the master key.
	Key string `json:"key"`
}

func marshalKeyBlock(keyID, use string, key []byte) ([]byte, error) {
	return json.Marshal(KeyBlock{
		Version: keystore.Version,
		Key:     keystore.NewKeyEntry(keyID, use, key),
	})
}

func parseKeyBlock(data []byte, use string) ([keystore.KeySize]byte, error) {
	var kb KeyBlock
	if err := json.Unmarshal(data, &kb); err != nil {
		return [keystore.KeySize]byte{}, fmt.Errorf("%w: %s key block: %v", ErrKeyMaterial, use, err)
	}
	if kb.Version != keystore.Version {
		return [keystore.KeySize]byte{}, fmt.Errorf("%w: key block version %q, want %q", ErrKeyMaterial, kb.Version, keystore.Version)
	}
	return kb.Key.Decode(use)
}

// ParseVerifyKeyBlock extracts the verify key from an unsigned verify key
// block. No authentication is possible or attempted.
func ParseVerifyKeyBlock(data []byte) (VerifyKey, error) {
	key, err := parseKeyBlock(data, keystore.UseSigning)
	return VerifyKey(key), err
}

// ParsePublicKeyBlock extracts the public key from an unsigned public key
// block, as produced by Keyring.ToPublicKeyBlock.
func ParsePublicKeyBlock(data []byte) (PublicKey, error) {
	key, err := parseKeyBlock(data, keystore.UseEncryption)
	return PublicKey(key), err
}

// OpenPublicKeyBlock verifies a signed public key block against the owner's
// verify key and then extracts the public key.
func OpenPublicKeyBlock(signed []byte, owner VerifyKey) (PublicKey, error) {
	data, err := Verify(signed, owner)
	if err != nil {
		return PublicKey{}, err
	}
	return ParsePublicKeyBlock(data)
}

func marshalVouchBlock(ciphertext []byte) ([]byte, error) {
	return json.Marshal(VouchBlock{
		Version: keystore.Version,
		Key:     hex.EncodeToString(ciphertext),
	})
}

func parseVouchBlock(data []byte) ([]byte, error) {
	var vb VouchBlock
	if err := json.Unmarshal(data, &vb); err != nil {
		return nil, fmt.Errorf("%w: vouch block: %v", ErrKeyMaterial, err)
	}
	if vb.Version != keystore.Version {
		return nil, fmt.Errorf("%w: vouch block version %q, want %q", ErrKeyMaterial, vb.Version, keystore.Version)
	}
	if vb.Key == "" {
		return nil, fmt.Errorf("%w: vouch block has no key", ErrKeyMaterial)
	}
	ciphertext, err := hex.DecodeString(vb.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: vouch block key is not hex: %v", ErrKeyMaterial, err)
	}
	return ciphertext, nil
}
