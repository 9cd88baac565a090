// Package plan implements the trust and publish workflows of a user: it
// publishes key blocks, vouches for peers, loads vouched master keys and
// reads and writes encrypted messages, with the block store as the only
// channel between users.
//
// Key material for an epoch lives on the block store under channel = epoch:
//
//	<user>/public   signed public key block
//	<user>/verify   verify key block (unsigned)
//	<user>/master   vouch block addressed to <user>; its author is the voucher
//
// Channel membership is nothing more than holding the epoch's master key.
package plan

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/joncooperworks/vouch/blockstore"
	"github.com/joncooperworks/vouch/crypto"
	"github.com/joncooperworks/vouch/crypto/keystore"
	"github.com/joncooperworks/vouch/crypto/ski"
	"github.com/joncooperworks/vouch/internal/logging"
)

// PublicKeyPath, VerifyKeyPath and MasterKeyPath return the well-known
// paths, within an epoch's channel, of a user's key blocks.
func PublicKeyPath(user string) string { return user + "/public" }
func VerifyKeyPath(user string) string { return user + "/verify" }
func MasterKeyPath(user string) string { return user + "/master" }

// User is one participant. It owns its SKI and shares the block store with
// everyone else.
type User struct {
	name   string
	ski    *ski.SKI
	blocks blockstore.Store
	log    *logrus.Entry
}

// NewUser creates a user whose keypairs persist in keys and who reads and
// writes blocks on blocks. Both handles are opened by the caller.
func NewUser(name string, keys keystore.KeyStore, blocks blockstore.Store, log *logrus.Entry) (*User, error) {
	if blocks == nil {
		return nil, errors.New("block store cannot be nil")
	}
	log = logging.OrDiscard(log)
	s, err := ski.New(name, keys, log)
	if err != nil {
		return nil, err
	}
	return &User{
		name:   name,
		ski:    s,
		blocks: blocks,
		log:    log.WithField("user", name),
	}, nil
}

// Name returns the user's name, which is also their block author id.
func (u *User) Name() string { return u.name }

// SKI returns the user's keyring directory.
func (u *User) SKI() *ski.SKI { return u.ski }

// Close wipes the user's key material. The block store is left open.
func (u *User) Close() { u.ski.Close() }

// OpenEpoch makes the user's Keyring for epoch available, loading or
// creating its keypairs, and recovers the master key from the vouch block
// addressed to the user if one has been published. With no vouch block the
// Keyring stays without a master key and OpenEpoch still succeeds.
func (u *User) OpenEpoch(ctx context.Context, epoch string) error {
	if _, err := u.ski.Keyring(epoch); err != nil {
		if _, err := u.ski.NewKeyring(epoch); err != nil {
			return err
		}
	}
	if u.ski.HasMasterKey(epoch) {
		return nil
	}
	err := u.LoadMasterKey(ctx, epoch)
	if errors.Is(err, blockstore.ErrNotFound) {
		u.log.WithField("epoch", epoch).Debug("no vouch block yet")
		return nil
	}
	return err
}

// PublishKeys writes the user's signed public key block and unsigned
// verify key block for epoch.
func (u *User) PublishKeys(ctx context.Context, epoch string) error {
	err := u.publishKeys(ctx, epoch)
	return u.done(opPublishKeys, err, logrus.Fields{"epoch": epoch})
}

func (u *User) publishKeys(ctx context.Context, epoch string) error {
	pblock, err := u.ski.PublicKeyBlock(epoch)
	if err != nil {
		return err
	}
	if _, _, err := u.write(ctx, epoch, PublicKeyPath(u.name), pblock, epoch); err != nil {
		return err
	}
	vblock, err := u.ski.VerifyKeyBlock(epoch)
	if err != nil {
		return err
	}
	_, _, err = u.write(ctx, epoch, VerifyKeyPath(u.name), vblock, epoch)
	return err
}

// VouchFor encrypts the epoch's master key for target, whose public key is
// authenticated against their published verify key, and publishes the
// vouch block at target's master path.
func (u *User) VouchFor(ctx context.Context, target, epoch string) error {
	err := u.vouchFor(ctx, target, epoch)
	return u.done(opVouch, err, logrus.Fields{"epoch": epoch, "target": target})
}

func (u *User) vouchFor(ctx context.Context, target, epoch string) error {
	pkey, err := u.publicKey(ctx, epoch, target)
	if err != nil {
		return err
	}
	block, err := u.ski.Vouch(epoch, pkey)
	if err != nil {
		return err
	}
	_, _, err = u.write(ctx, epoch, MasterKeyPath(target), block, epoch)
	return err
}

// LoadMasterKey consumes the latest vouch block addressed to the user. The
// voucher is the block's author; their public key is looked up and
// authenticated before the block is opened.
func (u *User) LoadMasterKey(ctx context.Context, epoch string) error {
	err := u.loadMasterKey(ctx, epoch)
	return u.done(opLoadMasterKey, err, logrus.Fields{"epoch": epoch})
}

func (u *User) loadMasterKey(ctx context.Context, epoch string) error {
	block, err := u.blocks.Read(ctx, epoch, MasterKeyPath(u.name), "")
	if err != nil {
		return err
	}
	pkey, err := u.publicKey(ctx, epoch, block.Author)
	if err != nil {
		return fmt.Errorf("voucher %s: %w", block.Author, err)
	}
	return u.ski.LoadMasterKey(epoch, block.Data, pkey)
}

// PublishMessage encrypts plaintext under epoch's master key, signs the
// ciphertext and writes it to channel/path tagged with epoch.
func (u *User) PublishMessage(ctx context.Context, channel, path string, plaintext []byte, epoch string) (int, string, error) {
	var (
		index int
		id    string
	)
	signed, err := u.ski.Encrypt(epoch, plaintext)
	if err == nil {
		index, id, err = u.write(ctx, channel, path, signed, epoch)
	}
	err = u.done(opPublishMessage, err, logrus.Fields{"epoch": epoch, "channel": channel, "path": path, "block_id": id})
	return index, id, err
}

// ReadMessage reads and opens the latest message at channel/path.
func (u *User) ReadMessage(ctx context.Context, channel, path string) ([]byte, error) {
	return u.ReadMessageAt(ctx, channel, path, "")
}

// ReadMessageAt reads and opens the message with blockID at channel/path.
// The author's verify key for the block's epoch authenticates the
// ciphertext before the user's Keyring for that epoch decrypts it.
func (u *User) ReadMessageAt(ctx context.Context, channel, path, blockID string) ([]byte, error) {
	fields := logrus.Fields{"channel": channel, "path": path}
	block, err := u.blocks.Read(ctx, channel, path, blockID)
	if err != nil {
		return nil, u.done(opReadMessage, err, fields)
	}
	fields["block_id"] = block.ID
	fields["epoch"] = block.Epoch
	fields["author"] = block.Author

	plaintext, err := u.open(ctx, block)
	if err != nil {
		return nil, u.done(opReadMessage, err, fields)
	}
	return plaintext, u.done(opReadMessage, nil, fields)
}

func (u *User) open(ctx context.Context, block *blockstore.Block) ([]byte, error) {
	vkey, err := u.verifyKey(ctx, block.Epoch, block.Author)
	if err != nil {
		return nil, fmt.Errorf("author %s: %w", block.Author, err)
	}
	return u.ski.Decrypt(block.Epoch, block.Data, vkey)
}

func (u *User) write(ctx context.Context, channel, path string, data []byte, epoch string) (int, string, error) {
	index, id, err := u.blocks.Write(ctx, u.name, channel, path, data, epoch)
	if err != nil {
		return 0, "", err
	}
	u.log.WithFields(logrus.Fields{
		"channel":  channel,
		"path":     path,
		"epoch":    epoch,
		"block_id": id,
	}).Debug("wrote block")
	return index, id, nil
}

func (u *User) verifyKey(ctx context.Context, epoch, user string) (crypto.VerifyKey, error) {
	block, err := u.blocks.Read(ctx, epoch, VerifyKeyPath(user), "")
	if err != nil {
		return crypto.VerifyKey{}, err
	}
	return u.ski.FromVerifyKeyBlock(block.Data)
}

func (u *User) publicKey(ctx context.Context, epoch, user string) (crypto.PublicKey, error) {
	vkey, err := u.verifyKey(ctx, epoch, user)
	if err != nil {
		return crypto.PublicKey{}, err
	}
	block, err := u.blocks.Read(ctx, epoch, PublicKeyPath(user), "")
	if err != nil {
		return crypto.PublicKey{}, err
	}
	return u.ski.FromPublicKeyBlock(epoch, block.Data, vkey)
}

// done records the outcome of op. Authentication failures are logged at
// warn level; the error is always handed back to the caller.
func (u *User) done(op string, err error, fields logrus.Fields) error {
	if err == nil {
		operationsTotal.WithLabelValues(op).Inc()
		u.log.WithFields(fields).Debug(op)
		return nil
	}
	failuresTotal.WithLabelValues(op, failureKind(err)).Inc()
	if errors.Is(err, crypto.ErrAuthentication) {
		u.log.WithFields(fields).WithError(err).Warn(op + " rejected")
	}
	return err
}
