// Package ski is the secure key interface: a user's directory of Keyrings,
// one per channel-epoch, with every keyring operation routed by epoch name.
package ski

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/joncooperworks/vouch/crypto"
	"github.com/joncooperworks/vouch/crypto/keystore"
	"github.com/joncooperworks/vouch/internal/logging"
)

// ErrKeyringNotFound is returned when no Keyring exists for an epoch.
var ErrKeyringNotFound = errors.New("keyring not found")

// SKI holds the Keyrings of one user. Like a Keyring, it belongs to a single
// execution context and is not safe for concurrent use.
type SKI struct {
	user     string
	store    keystore.KeyStore
	keyrings map[string]*crypto.Keyring
	log      *logrus.Entry
}

// New creates an empty directory for user, persisting keypairs to store.
func New(user string, store keystore.KeyStore, log *logrus.Entry) (*SKI, error) {
	if err := keystore.CheckUser(user); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("keystore cannot be nil")
	}
	return &SKI{
		user:     user,
		store:    store,
		keyrings: make(map[string]*crypto.Keyring),
		log:      logging.OrDiscard(log).WithField("user", user),
	}, nil
}

// User returns the owner of the directory.
func (s *SKI) User() string { return s.user }

// NewKeyring constructs the Keyring for epoch, loading persisted keypairs or
// generating fresh ones. An existing Keyring for epoch is replaced, which
// discards its master key; this is logged as a rekey.
func (s *SKI) NewKeyring(epoch string) (*crypto.Keyring, error) {
	kr, err := crypto.NewKeyring(s.store, s.user, epoch, s.log)
	if err != nil {
		return nil, err
	}
	if old, ok := s.keyrings[kr.Epoch()]; ok {
		s.log.WithField("epoch", kr.Epoch()).Info("rekeying keyring")
		old.Wipe()
	}
	s.keyrings[kr.Epoch()] = kr
	return kr, nil
}

// lookup finds the Keyring for any spelling of epoch.
func (s *SKI) lookup(epoch string) (*crypto.Keyring, bool) {
	canonical, err := keystore.CanonicalEpoch(epoch)
	if err != nil {
		return nil, false
	}
	kr, ok := s.keyrings[canonical]
	return kr, ok
}

// NewMasterKey makes sure a Keyring exists for epoch and generates its
// master key.
func (s *SKI) NewMasterKey(epoch string) error {
	kr, ok := s.lookup(epoch)
	if !ok {
		var err error
		if kr, err = s.NewKeyring(epoch); err != nil {
			return err
		}
	}
	return kr.GenerateMasterKey()
}

// Keyring returns the Keyring for epoch.
func (s *SKI) Keyring(epoch string) (*crypto.Keyring, error) {
	kr, ok := s.lookup(epoch)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no keyring for %s", ErrKeyringNotFound, s.user, epoch)
	}
	return kr, nil
}

// Epochs lists the epochs this directory holds a Keyring for.
func (s *SKI) Epochs() []string {
	epochs := make([]string, 0, len(s.keyrings))
	for epoch := range s.keyrings {
		epochs = append(epochs, epoch)
	}
	sort.Strings(epochs)
	return epochs
}

// HasMasterKey reports whether the Keyring for epoch exists and is keyed.
func (s *SKI) HasMasterKey(epoch string) bool {
	kr, ok := s.lookup(epoch)
	return ok && kr.HasMasterKey()
}

func (s *SKI) Vouch(epoch string, recipient crypto.PublicKey) ([]byte, error) {
	kr, err := s.Keyring(epoch)
	if err != nil {
		return nil, err
	}
	return kr.Vouch(recipient)
}

func (s *SKI) LoadMasterKey(epoch string, block []byte, voucher crypto.PublicKey) error {
	kr, err := s.Keyring(epoch)
	if err != nil {
		return err
	}
	return kr.LoadMasterKey(block, voucher)
}

// Encrypt encrypts plaintext under the epoch's master key and signs the
// ciphertext.
func (s *SKI) Encrypt(epoch string, plaintext []byte) ([]byte, error) {
	kr, err := s.Keyring(epoch)
	if err != nil {
		return nil, err
	}
	ciphertext, err := kr.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}
	return kr.Sign(ciphertext), nil
}

// Decrypt verifies signed against the author's verify key and decrypts the
// ciphertext it carries.
func (s *SKI) Decrypt(epoch string, signed []byte, author crypto.VerifyKey) ([]byte, error) {
	kr, err := s.Keyring(epoch)
	if err != nil {
		return nil, err
	}
	ciphertext, err := kr.Verify(signed, author)
	if err != nil {
		return nil, err
	}
	return kr.Decrypt(ciphertext)
}

func (s *SKI) Sign(epoch string, data []byte) ([]byte, error) {
	kr, err := s.Keyring(epoch)
	if err != nil {
		return nil, err
	}
	return kr.Sign(data), nil
}

func (s *SKI) Verify(epoch string, signed []byte, peer crypto.VerifyKey) ([]byte, error) {
	kr, err := s.Keyring(epoch)
	if err != nil {
		return nil, err
	}
	return kr.Verify(signed, peer)
}

// PublicKeyBlock returns the epoch's public key block, signed and ready to
// publish.
func (s *SKI) PublicKeyBlock(epoch string) ([]byte, error) {
	kr, err := s.Keyring(epoch)
	if err != nil {
		return nil, err
	}
	block, err := kr.ToPublicKeyBlock()
	if err != nil {
		return nil, err
	}
	return kr.Sign(block), nil
}

// VerifyKeyBlock returns the epoch's verify key block. It is not signed.
func (s *SKI) VerifyKeyBlock(epoch string) ([]byte, error) {
	kr, err := s.Keyring(epoch)
	if err != nil {
		return nil, err
	}
	return kr.ToVerifyKeyBlock()
}

// FromVerifyKeyBlock parses a peer's verify key block. It needs no Keyring.
func (s *SKI) FromVerifyKeyBlock(block []byte) (crypto.VerifyKey, error) {
	return crypto.ParseVerifyKeyBlock(block)
}

// FromPublicKeyBlock verifies a peer's signed public key block against their
// verify key and returns the public key.
func (s *SKI) FromPublicKeyBlock(epoch string, signed []byte, peer crypto.VerifyKey) (crypto.PublicKey, error) {
	kr, err := s.Keyring(epoch)
	if err != nil {
		return crypto.PublicKey{}, err
	}
	return kr.FromPublicKeyBlock(signed, peer)
}

// Close wipes every Keyring and empties the directory.
func (s *SKI) Close() {
	for epoch, kr := range s.keyrings {
		kr.Wipe()
		delete(s.keyrings, epoch)
	}
}
