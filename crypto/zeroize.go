package crypto

import "runtime"

// zeroize overwrites key material once it is no longer needed.
func zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
