package crypto

import (
	"testing"
)

func TestZeroize(t *testing.T) {
	t.Run("clears master key sized buffer", func(t *testing.T) {
		key := make([]byte, MasterKeySize)
		for i := range key {
			key[i] = byte(i + 1)
		}
		zeroize(key)

		for i, b := range key {
			if b != 0 {
				t.Errorf("byte at index %d should be 0, got %d", i, b)
			}
		}
	})

	t.Run("handles nil and empty slices", func(t *testing.T) {
		zeroize(nil)
		zeroize([]byte{})
	})

	t.Run("clears only the slice window", func(t *testing.T) {
		buf := []byte{1, 2, 3, 4}
		zeroize(buf[1:3])
		if buf[0] != 1 || buf[1] != 0 || buf[2] != 0 || buf[3] != 4 {
			t.Errorf("zeroize(buf[1:3]) left %v", buf)
		}
	})
}

func TestSigningKeyFromSeed_Deterministic(t *testing.T) {
	var seed [32]byte
	for i := range seed {
		seed[i] = byte(i)
	}
	k1, v1 := signingKeyFromSeed(&seed)
	k2, v2 := signingKeyFromSeed(&seed)
	if *k1 != *k2 || v1 != v2 {
		t.Fatal("same seed produced different keys")
	}
	// The verify key is the public half of the expanded key.
	if [32]byte(v1) != [32]byte(k1[32:]) {
		t.Error("verify key does not match expanded signing key")
	}
}
