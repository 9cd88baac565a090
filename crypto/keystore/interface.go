// Package keystore persists the long-lived keypairs that back each
// (user, channel-epoch) Keyring.
//
// A KeyStore only ever sees private key material in the keyfile format; it
// never holds a master key. Stores must be opened explicitly by the caller
// and passed to the code that needs them.
package keystore

import "errors"

var (
	// ErrNotFound is returned by Load when no keypair has been saved for the
	// requested (user, epoch). Callers generate and save fresh keys on it.
	ErrNotFound = errors.New("keystore: keypair not found")

	// ErrKeyMaterial reports corrupt or structurally invalid key material:
	// unparseable JSON, a version mismatch, missing fields or bad key sizes.
	// It is unrecoverable; a process must not continue with partial keys.
	ErrKeyMaterial = errors.New("keystore: invalid key material")

	// ErrPermission reports that persisted key material exists but cannot be
	// accessed. It is unrecoverable for the same reason as ErrKeyMaterial.
	ErrPermission = errors.New("keystore: permission denied")
)

// KeyStore is the Key Material Store contract.
type KeyStore interface {
	// Load returns the keypair bundle saved for user and epoch, or
	// ErrNotFound. Load has no side effects.
	Load(user, epoch string) (*KeypairBundle, error)
	// Save persists the bundle for user and epoch, replacing any previous one.
	Save(user, epoch string, bundle *KeypairBundle) error
	// List returns the names of all stored keyfiles.
	List() ([]string, error)
}
