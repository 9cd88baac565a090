package crypto

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/joncooperworks/vouch/crypto/keystore"
	"github.com/joncooperworks/vouch/internal/logging"
)

// Keyring is the key state of one user for one channel-epoch.
//
// A Keyring starts with only its two long-lived keypairs (signing and
// encryption); asymmetric operations and signatures are available at once.
// It becomes keyed exactly once, when a master key is generated or loaded
// from a vouch block, and only then can it vouch, encrypt or decrypt.
// Rekeying a channel means creating a Keyring for a new epoch; a Keyring's
// master key is never replaced.
//
// A Keyring is owned by a single user's execution context and is not safe
// for concurrent use.
type Keyring struct {
	user  string
	epoch string

	signingKeyID string
	signingKey   *[64]byte
	verifyKey    VerifyKey

	encKeyID  string
	encKey    *[32]byte
	publicKey PublicKey

	masterKey *[MasterKeySize]byte

	log *logrus.Entry
}

// NewKeyring loads the keypairs of user for epoch from store, or generates
// and saves fresh ones when none exist. It never touches a master key. The
// keyring records epoch in canonical form.
//
// Errors from the store other than keystore.ErrNotFound are returned as is;
// keystore.ErrKeyMaterial and keystore.ErrPermission are fatal to callers.
func NewKeyring(store keystore.KeyStore, user, epoch string, log *logrus.Entry) (*Keyring, error) {
	if store == nil {
		return nil, errors.New("keystore cannot be nil")
	}
	epoch, err := keystore.CanonicalEpoch(epoch)
	if err != nil {
		return nil, err
	}
	log = logging.OrDiscard(log).WithFields(logrus.Fields{"user": user, "epoch": epoch})

	bundle, err := store.Load(user, epoch)
	switch {
	case errors.Is(err, keystore.ErrNotFound):
		bundle, err = GenerateKeypairs(randReader)
		if err != nil {
			return nil, err
		}
		if err := store.Save(user, epoch, bundle); err != nil {
			bundle.Wipe()
			return nil, fmt.Errorf("failed to save keypairs: %w", err)
		}
		log.WithFields(logrus.Fields{
			"signing_kid": bundle.SigningKeyID,
			"enc_kid":     bundle.EncryptionKeyID,
		}).Debug("generated keypairs")
	case err != nil:
		return nil, fmt.Errorf("failed to load keypairs for %s %s: %w", user, epoch, err)
	default:
		log.Debug("loaded keypairs")
	}
	defer bundle.Wipe()

	kr, err := keyringFromBundle(user, epoch, bundle)
	if err != nil {
		return nil, err
	}
	kr.log = log
	return kr, nil
}

// GenerateKeypairs draws fresh signing and encryption keys from r.
func GenerateKeypairs(r io.Reader) (*keystore.KeypairBundle, error) {
	b := &keystore.KeypairBundle{}
	if _, err := io.ReadFull(r, b.SigningSeed[:]); err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	if _, err := io.ReadFull(r, b.EncryptionKey[:]); err != nil {
		b.Wipe()
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	var err error
	if b.SigningKeyID, err = newKeyID(r); err != nil {
		b.Wipe()
		return nil, err
	}
	if b.EncryptionKeyID, err = newKeyID(r); err != nil {
		b.Wipe()
		return nil, err
	}
	return b, nil
}

// newKeyID returns a random UUID as 32 hex characters.
func newKeyID(r io.Reader) (string, error) {
	id, err := uuid.NewRandomFromReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to generate key id: %w", err)
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}

func keyringFromBundle(user, epoch string, b *keystore.KeypairBundle) (*Keyring, error) {
	signingKey, verifyKey := signingKeyFromSeed(&b.SigningSeed)

	encKey := new([32]byte)
	*encKey = b.EncryptionKey
	publicKey, err := publicKeyFor(encKey)
	if err != nil {
		return nil, err
	}

	return &Keyring{
		user:         user,
		epoch:        epoch,
		signingKeyID: b.SigningKeyID,
		signingKey:   signingKey,
		verifyKey:    verifyKey,
		encKeyID:     b.EncryptionKeyID,
		encKey:       encKey,
		publicKey:    publicKey,
		log:          logging.Discard(),
	}, nil
}

// User returns the owner of the keyring.
func (kr *Keyring) User() string { return kr.user }

// Epoch returns the channel-epoch the keyring belongs to.
func (kr *Keyring) Epoch() string { return kr.epoch }

// PublicKey returns the public encryption key peers vouch to.
func (kr *Keyring) PublicKey() PublicKey { return kr.publicKey }

// VerifyKey returns the key peers verify this keyring's signatures with.
func (kr *Keyring) VerifyKey() VerifyKey { return kr.verifyKey }

// HasMasterKey reports whether the keyring is keyed.
func (kr *Keyring) HasMasterKey() bool { return kr.masterKey != nil }

func (kr *Keyring) requireMasterKey(op string) error {
	if kr.masterKey == nil {
		return fmt.Errorf("%w: %s requires a master key for %s", ErrPrecondition, op, kr.epoch)
	}
	return nil
}

func (kr *Keyring) requireNoMasterKey(op string) error {
	if kr.masterKey != nil {
		return fmt.Errorf("%w: %s: master key for %s is already set", ErrPrecondition, op, kr.epoch)
	}
	return nil
}

// GenerateMasterKey draws a fresh random master key. Only the originator of
// a channel-epoch calls this; everyone else loads it from a vouch block.
func (kr *Keyring) GenerateMasterKey() error {
	if err := kr.requireNoMasterKey("generate master key"); err != nil {
		return err
	}
	key := new([MasterKeySize]byte)
	if _, err := io.ReadFull(randReader, key[:]); err != nil {
		return fmt.Errorf("failed to generate master key: %w", err)
	}
	kr.masterKey = key
	kr.log.Info("generated master key")
	return nil
}

// Vouch encrypts the master key for recipient, from this keyring's
// encryption key. Box encryption authenticates both parties so the result
// is not separately signed.
func (kr *Keyring) Vouch(recipient PublicKey) ([]byte, error) {
	if err := kr.requireMasterKey("vouch"); err != nil {
		return nil, err
	}
	ciphertext, err := SealFor(kr.masterKey[:], recipient, kr.encKey)
	if err != nil {
		return nil, err
	}
	kr.log.WithField("recipient", recipient.Fingerprint()).Debug("vouched")
	return marshalVouchBlock(ciphertext)
}

// LoadMasterKey opens a vouch block addressed to this keyring and written
// by the holder of voucher, installing the master key it carries.
//
// A block for another recipient, from another voucher, or altered in any
// way fails with ErrAuthentication. A block that does not even parse also
// matches ErrKeyMaterial.
func (kr *Keyring) LoadMasterKey(block []byte, voucher PublicKey) error {
	if err := kr.requireNoMasterKey("load master key"); err != nil {
		return err
	}
	ciphertext, err := parseVouchBlock(block)
	if err != nil {
		return fmt.Errorf("%w: vouch block rejected: %w", ErrAuthentication, err)
	}
	plaintext, err := OpenFrom(ciphertext, voucher, kr.encKey)
	if err != nil {
		return err
	}
	defer zeroize(plaintext)
	if len(plaintext) != MasterKeySize {
		return fmt.Errorf("%w: vouched master key is %d bytes", ErrAuthentication, len(plaintext))
	}

	key := new([MasterKeySize]byte)
	copy(key[:], plaintext)
	kr.masterKey = key
	kr.log.WithField("voucher", voucher.Fingerprint()).Info("loaded master key")
	return nil
}

// Encrypt encrypts plaintext under the master key.
func (kr *Keyring) Encrypt(plaintext []byte) ([]byte, error) {
	if err := kr.requireMasterKey("encrypt"); err != nil {
		return nil, err
	}
	return SealSymmetric(plaintext, kr.masterKey)
}

// Decrypt decrypts a ciphertext made by Encrypt under the same master key.
// Ciphertext from another epoch fails with ErrDecryption.
func (kr *Keyring) Decrypt(ciphertext []byte) ([]byte, error) {
	if err := kr.requireMasterKey("decrypt"); err != nil {
		return nil, err
	}
	return OpenSymmetric(ciphertext, kr.masterKey)
}

// Sign prefixes data with this keyring's signature. It needs no master key.
func (kr *Keyring) Sign(data []byte) []byte {
	return Sign(data, kr.signingKey)
}

// Verify checks signed against a peer's verify key and strips the signature.
func (kr *Keyring) Verify(signed []byte, peer VerifyKey) ([]byte, error) {
	return Verify(signed, peer)
}

// ToPublicKeyBlock serializes the public encryption key. The block must be
// signed with Sign before it is distributed.
func (kr *Keyring) ToPublicKeyBlock() ([]byte, error) {
	return marshalKeyBlock(kr.encKeyID, keystore.UseEncryption, kr.publicKey[:])
}

// ToVerifyKeyBlock serializes the verify key. It is distributed unsigned.
func (kr *Keyring) ToVerifyKeyBlock() ([]byte, error) {
	return marshalKeyBlock(kr.signingKeyID, keystore.UseSigning, kr.verifyKey[:])
}

// FromPublicKeyBlock verifies a peer's signed public key block against
// their verify key and returns the public key.
func (kr *Keyring) FromPublicKeyBlock(signed []byte, peer VerifyKey) (PublicKey, error) {
	return OpenPublicKeyBlock(signed, peer)
}

// FromVerifyKeyBlock returns the verify key from a peer's verify key block.
func (kr *Keyring) FromVerifyKeyBlock(block []byte) (VerifyKey, error) {
	return ParseVerifyKeyBlock(block)
}

// Wipe clears all private key material. The keyring is unusable afterwards.
func (kr *Keyring) Wipe() {
	if kr.signingKey != nil {
		zeroize(kr.signingKey[:])
	}
	if kr.encKey != nil {
		zeroize(kr.encKey[:])
	}
	if kr.masterKey != nil {
		zeroize(kr.masterKey[:])
		kr.masterKey = nil
	}
}
