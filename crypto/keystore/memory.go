package keystore

import (
	"sort"
	"sync"
)

func init() {
	RegisterKeyStore("memory", func(Options) (KeyStore, error) {
		return NewMemoryStore(), nil
	})
}

// MemoryStore is an in-memory KeyStore for tests and the demo. Bundles are
// kept in keyfile form so that loading goes through the same parser as the
// persistent backends.
type MemoryStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

// NewMemoryStore creates an empty in-memory keystore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string][]byte)}
}

func (m *MemoryStore) Load(user, epoch string) (*KeypairBundle, error) {
	name, err := KeyfileName(user, epoch)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	data, ok := m.files[name]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return ParseKeyfile(data)
}

func (m *MemoryStore) Save(user, epoch string, bundle *KeypairBundle) error {
	name, err := KeyfileName(user, epoch)
	if err != nil {
		return err
	}
	data, err := MarshalKeyfile(bundle)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = data
	return nil
}

func (m *MemoryStore) List() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.files))
	for name := range m.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Corrupt replaces the stored keyfile for user and epoch with raw bytes.
// It exists so tests can exercise the ErrKeyMaterial path.
func (m *MemoryStore) Corrupt(user, epoch string, data []byte) error {
	name, err := KeyfileName(user, epoch)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = data
	return nil
}
