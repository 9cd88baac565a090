package keystore

import "fmt"

// NewKeyStore opens the keystore backend registered under the given name.
func NewKeyStore(backend string, opts Options) (KeyStore, error) {
	factory, err := GetKeyStoreFactory(backend)
	if err != nil {
		return nil, fmt.Errorf("unsupported keystore backend %q (have %v)", backend, ListBackends())
	}
	return factory(opts)
}
