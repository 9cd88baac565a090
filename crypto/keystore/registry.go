package keystore

import (
	"fmt"
	"sort"
	"sync"
)

// Options carries the settings a backend factory may need. Backends ignore
// fields that do not apply to them.
type Options struct {
	// Dir is the directory keyfiles (or a file-backed OS keyring) live in.
	Dir string
	// ServiceName names the OS keyring service.
	ServiceName string
	// Password unlocks a file-backed OS keyring when no native one exists.
	Password string
}

// KeyStoreFactory is a function that opens a KeyStore.
//
// Factory functions are registered with RegisterKeyStore and are called when
// a keystore of that backend type is needed.
type KeyStoreFactory func(opts Options) (KeyStore, error)

var (
	// registry stores keystore factories by backend name
	registry = make(map[string]KeyStoreFactory)
	// registryMu protects concurrent access to the registry
	registryMu sync.RWMutex
)

// RegisterKeyStore registers a keystore factory for a backend name.
//
// This should be called from init() functions in backend implementations.
//
// Example:
//
//	func init() {
//	    RegisterKeyStore("file", openFileStore)
//	}
func RegisterKeyStore(backend string, factory KeyStoreFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[backend] = factory
}

// GetKeyStoreFactory retrieves the factory registered for a backend name.
func GetKeyStoreFactory(backend string) (KeyStoreFactory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	factory, ok := registry[backend]
	if !ok {
		return nil, fmt.Errorf("no keystore factory registered for backend: %s", backend)
	}
	return factory, nil
}

// ListBackends returns all registered backend names, sorted.
func ListBackends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	backends := make([]string, 0, len(registry))
	for backend := range registry {
		backends = append(backends, backend)
	}
	sort.Strings(backends)
	return backends
}
