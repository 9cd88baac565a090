package ski

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joncooperworks/vouch/crypto"
	"github.com/joncooperworks/vouch/crypto/keystore"
)

const (
	epochV0 = "/key/cats/v0"
	epochV1 = "/key/cats/v1"
)

func newTestSKI(t *testing.T, user string) *SKI {
	t.Helper()

	s, err := New(user, keystore.NewMemoryStore(), nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestNew_Invalid(t *testing.T) {
	_, err := New("../alice", keystore.NewMemoryStore(), nil)
	assert.Error(t, err)

	_, err = New("alice", nil, nil)
	assert.Error(t, err)
}

func TestSKI_UnknownEpoch(t *testing.T) {
	s := newTestSKI(t, "alice")
	peer := newTestSKI(t, "bob")
	_, err := peer.NewKeyring(epochV0)
	require.NoError(t, err)
	bobKR, err := peer.Keyring(epochV0)
	require.NoError(t, err)

	_, err = s.Keyring(epochV0)
	assert.ErrorIs(t, err, ErrKeyringNotFound)
	_, err = s.Vouch(epochV0, bobKR.PublicKey())
	assert.ErrorIs(t, err, ErrKeyringNotFound)
	assert.ErrorIs(t, s.LoadMasterKey(epochV0, []byte("{}"), bobKR.PublicKey()), ErrKeyringNotFound)
	_, err = s.Encrypt(epochV0, []byte("hello"))
	assert.ErrorIs(t, err, ErrKeyringNotFound)
	_, err = s.Decrypt(epochV0, []byte("hello"), bobKR.VerifyKey())
	assert.ErrorIs(t, err, ErrKeyringNotFound)
	_, err = s.Sign(epochV0, []byte("hello"))
	assert.ErrorIs(t, err, ErrKeyringNotFound)
	_, err = s.Verify(epochV0, []byte("hello"), bobKR.VerifyKey())
	assert.ErrorIs(t, err, ErrKeyringNotFound)
	_, err = s.PublicKeyBlock(epochV0)
	assert.ErrorIs(t, err, ErrKeyringNotFound)
	_, err = s.VerifyKeyBlock(epochV0)
	assert.ErrorIs(t, err, ErrKeyringNotFound)
	_, err = s.FromPublicKeyBlock(epochV0, nil, bobKR.VerifyKey())
	assert.ErrorIs(t, err, ErrKeyringNotFound)
	assert.False(t, s.HasMasterKey(epochV0))
}

func TestSKI_NewMasterKey_CreatesKeyring(t *testing.T) {
	s := newTestSKI(t, "alice")

	require.NoError(t, s.NewMasterKey(epochV0))
	assert.True(t, s.HasMasterKey(epochV0))
	assert.Equal(t, []string{epochV0}, s.Epochs())

	// A second master key for the same Keyring is refused.
	assert.ErrorIs(t, s.NewMasterKey(epochV0), crypto.ErrPrecondition)
}

func TestSKI_EpochSpellings(t *testing.T) {
	s := newTestSKI(t, "alice")

	kr, err := s.NewKeyring("key/cats/v0/")
	require.NoError(t, err)
	assert.Equal(t, epochV0, kr.Epoch())
	assert.Equal(t, "alice", kr.User())

	got, err := s.Keyring(epochV0)
	require.NoError(t, err)
	assert.Same(t, kr, got)
	require.NoError(t, s.NewMasterKey("/key/cats/v0"))
	assert.True(t, s.HasMasterKey("key/cats/v0"))
	assert.Equal(t, []string{epochV0}, s.Epochs())

	_, err = s.Keyring("/key/cats.v0")
	assert.ErrorIs(t, err, ErrKeyringNotFound)
}

func TestSKI_NewKeyring_Rekey(t *testing.T) {
	logger, hook := test.NewNullLogger()
	s, err := New("alice", keystore.NewMemoryStore(), logrus.NewEntry(logger))
	require.NoError(t, err)

	_, err = s.NewKeyring(epochV0)
	require.NoError(t, err)
	require.NoError(t, s.NewMasterKey(epochV0))
	assert.Empty(t, messages(hook, "rekeying keyring"))

	kr, err := s.NewKeyring(epochV0)
	require.NoError(t, err)
	assert.False(t, kr.HasMasterKey(), "replacement starts without a master key")
	assert.False(t, s.HasMasterKey(epochV0))

	entries := messages(hook, "rekeying keyring")
	require.Len(t, entries, 1)
	assert.Equal(t, logrus.InfoLevel, entries[0].Level)
	assert.Equal(t, epochV0, entries[0].Data["epoch"])
	assert.Equal(t, "alice", entries[0].Data["user"])
}

func messages(hook *test.Hook, msg string) []logrus.Entry {
	var out []logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == msg {
			out = append(out, *e)
		}
	}
	return out
}

func TestSKI_EncryptDecrypt(t *testing.T) {
	alice := newTestSKI(t, "alice")
	require.NoError(t, alice.NewMasterKey(epochV0))
	kr, err := alice.Keyring(epochV0)
	require.NoError(t, err)

	signed, err := alice.Encrypt(epochV0, []byte("hello"))
	require.NoError(t, err)

	// The signature covers the ciphertext.
	ciphertext, err := alice.Verify(epochV0, signed, kr.VerifyKey())
	require.NoError(t, err)
	_, err = kr.Decrypt(ciphertext)
	require.NoError(t, err)

	plaintext, err := alice.Decrypt(epochV0, signed, kr.VerifyKey())
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), plaintext)

	signed[len(signed)-1] ^= 0x01
	_, err = alice.Decrypt(epochV0, signed, kr.VerifyKey())
	assert.ErrorIs(t, err, crypto.ErrAuthentication)
}

func TestSKI_KeyBlocks(t *testing.T) {
	alice := newTestSKI(t, "alice")
	bob := newTestSKI(t, "bob")
	aliceKR, err := alice.NewKeyring(epochV0)
	require.NoError(t, err)
	_, err = bob.NewKeyring(epochV0)
	require.NoError(t, err)

	vblock, err := alice.VerifyKeyBlock(epochV0)
	require.NoError(t, err)
	vkey, err := bob.FromVerifyKeyBlock(vblock)
	require.NoError(t, err)
	assert.Equal(t, aliceKR.VerifyKey(), vkey)

	pblock, err := alice.PublicKeyBlock(epochV0)
	require.NoError(t, err)
	pkey, err := bob.FromPublicKeyBlock(epochV0, pblock, vkey)
	require.NoError(t, err)
	assert.Equal(t, aliceKR.PublicKey(), pkey)

	// Signed by someone else.
	bobBlock, err := bob.PublicKeyBlock(epochV0)
	require.NoError(t, err)
	_, err = bob.FromPublicKeyBlock(epochV0, bobBlock, vkey)
	assert.ErrorIs(t, err, crypto.ErrAuthentication)
}

func TestSKI_VouchAndLoad(t *testing.T) {
	alice := newTestSKI(t, "alice")
	bob := newTestSKI(t, "bob")
	require.NoError(t, alice.NewMasterKey(epochV0))
	aliceKR, err := alice.Keyring(epochV0)
	require.NoError(t, err)
	bobKR, err := bob.NewKeyring(epochV0)
	require.NoError(t, err)

	block, err := alice.Vouch(epochV0, bobKR.PublicKey())
	require.NoError(t, err)
	require.NoError(t, bob.LoadMasterKey(epochV0, block, aliceKR.PublicKey()))
	assert.True(t, bob.HasMasterKey(epochV0))

	signed, err := alice.Encrypt(epochV0, []byte("hello"))
	require.NoError(t, err)
	plaintext, err := bob.Decrypt(epochV0, signed, aliceKR.VerifyKey())
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), plaintext)
}

func TestSKI_EpochsAreIndependent(t *testing.T) {
	alice := newTestSKI(t, "alice")
	require.NoError(t, alice.NewMasterKey(epochV0))
	require.NoError(t, alice.NewMasterKey(epochV1))
	assert.Equal(t, []string{epochV0, epochV1}, alice.Epochs())

	v0, err := alice.Keyring(epochV0)
	require.NoError(t, err)
	v1, err := alice.Keyring(epochV1)
	require.NoError(t, err)

	old, err := alice.Encrypt(epochV0, []byte("old"))
	require.NoError(t, err)
	fresh, err := alice.Encrypt(epochV1, []byte("new"))
	require.NoError(t, err)

	got, err := alice.Decrypt(epochV0, old, v0.VerifyKey())
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), got)

	_, err = alice.Decrypt(epochV0, fresh, v1.VerifyKey())
	assert.ErrorIs(t, err, crypto.ErrDecryption)
}
