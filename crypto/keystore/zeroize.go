package keystore

import "runtime"

// zeroize overwrites a byte slice with zeros to clear sensitive data from memory.
func zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

// zeroize32 overwrites a 32-byte array with zeros.
func zeroize32(b *[32]byte) {
	for i := range b {
		b[i] = 0
	}
}
