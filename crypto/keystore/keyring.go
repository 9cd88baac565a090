package keystore

import (
	"errors"
	"fmt"
	"sort"

	"github.com/99designs/keyring"
)

func init() {
	RegisterKeyStore("keyring", OpenKeyringStore)
}

// DefaultServiceName is the OS keyring service keyfiles are stored under.
const DefaultServiceName = "vouch"

// KeyringStore implements KeyStore on top of the platform keyring
// (Keychain, Secret Service, KWallet, WinCred, or an encrypted file).
// Each (user, epoch) keyfile is stored as one keyring item.
type KeyringStore struct {
	ring keyring.Keyring
}

// OpenKeyringStore opens the OS keyring described by opts. When a password is
// supplied, an encrypted-file keyring under opts.Dir is allowed as fallback.
func OpenKeyringStore(opts Options) (KeyStore, error) {
	service := opts.ServiceName
	if service == "" {
		service = DefaultServiceName
	}
	cfg := keyring.Config{
		ServiceName:              service,
		KeychainTrustApplication: true,
		FileDir:                  opts.Dir,
	}
	if opts.Password != "" {
		cfg.FilePasswordFunc = keyring.FixedStringPrompt(opts.Password)
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return NewKeyringStore(ring), nil
}

// NewKeyringStore wraps an already opened keyring.
func NewKeyringStore(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{ring: ring}
}

// Load retrieves and parses the keyfile item for user and epoch.
func (k *KeyringStore) Load(user, epoch string) (*KeypairBundle, error) {
	name, err := KeyfileName(user, epoch)
	if err != nil {
		return nil, err
	}
	item, err := k.ring.Get(name)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key from keyring: %w", err)
	}
	bundle, err := ParseKeyfile(item.Data)
	if err != nil {
		return nil, fmt.Errorf("keyring item %s: %w", name, err)
	}
	return bundle, nil
}

// Save stores the keyfile for user and epoch as a keyring item.
func (k *KeyringStore) Save(user, epoch string, bundle *KeypairBundle) error {
	name, err := KeyfileName(user, epoch)
	if err != nil {
		return err
	}
	data, err := MarshalKeyfile(bundle)
	if err != nil {
		return err
	}
	err = k.ring.Set(keyring.Item{
		Key:         name,
		Data:        data,
		Label:       "vouch keypair " + name,
		Description: fmt.Sprintf("keypairs of %s for %s", user, epoch),
	})
	if err != nil {
		return fmt.Errorf("failed to store key in keyring: %w", err)
	}
	return nil
}

// List returns all keyfile names stored in the keyring.
func (k *KeyringStore) List() ([]string, error) {
	keys, err := k.ring.Keys()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys from keyring: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}
