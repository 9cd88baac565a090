package plan

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/joncooperworks/vouch/blockstore"
	"github.com/joncooperworks/vouch/crypto"
	"github.com/joncooperworks/vouch/crypto/keystore"
	"github.com/joncooperworks/vouch/crypto/ski"
)

const (
	dataChannel = "/cats"
	epochV0     = "/key/cats/v0"
	epochV1     = "/key/cats/v1"
)

type testNet struct {
	t      *testing.T
	ctx    context.Context
	blocks blockstore.Store
}

func newTestNet(t *testing.T) *testNet {
	t.Helper()
	return &testNet{t: t, ctx: context.Background(), blocks: blockstore.NewMemoryStore()}
}

func (n *testNet) user(name string) *User {
	n.t.Helper()
	u, err := NewUser(name, keystore.NewMemoryStore(), n.blocks, nil)
	if err != nil {
		n.t.Fatalf("NewUser(%s) error = %v", name, err)
	}
	n.t.Cleanup(u.Close)
	return u
}

// join creates u's keyring for epoch and publishes its keys.
func (n *testNet) join(u *User, epoch string) {
	n.t.Helper()
	if _, err := u.SKI().NewKeyring(epoch); err != nil {
		n.t.Fatalf("%s NewKeyring(%s) error = %v", u.Name(), epoch, err)
	}
	if err := u.PublishKeys(n.ctx, epoch); err != nil {
		n.t.Fatalf("%s PublishKeys(%s) error = %v", u.Name(), epoch, err)
	}
}

// originate makes u the holder of a fresh master key for epoch, vouched to
// themselves.
func (n *testNet) originate(u *User, epoch string) {
	n.t.Helper()
	n.join(u, epoch)
	if err := u.SKI().NewMasterKey(epoch); err != nil {
		n.t.Fatalf("%s NewMasterKey(%s) error = %v", u.Name(), epoch, err)
	}
	n.vouch(u, u, epoch)
}

func (n *testNet) vouch(voucher, target *User, epoch string) {
	n.t.Helper()
	if err := voucher.VouchFor(n.ctx, target.Name(), epoch); err != nil {
		n.t.Fatalf("%s VouchFor(%s, %s) error = %v", voucher.Name(), target.Name(), epoch, err)
	}
}

func (n *testNet) load(u *User, epoch string) {
	n.t.Helper()
	if err := u.LoadMasterKey(n.ctx, epoch); err != nil {
		n.t.Fatalf("%s LoadMasterKey(%s) error = %v", u.Name(), epoch, err)
	}
}

func (n *testNet) post(u *User, msg, epoch string) string {
	n.t.Helper()
	_, id, err := u.PublishMessage(n.ctx, dataChannel, "my-cat", []byte(msg), epoch)
	if err != nil {
		n.t.Fatalf("%s PublishMessage error = %v", u.Name(), err)
	}
	return id
}

func (n *testNet) mustRead(u *User, want string) {
	n.t.Helper()
	got, err := u.ReadMessage(n.ctx, dataChannel, "my-cat")
	if err != nil {
		n.t.Fatalf("%s ReadMessage() error = %v", u.Name(), err)
	}
	if string(got) != want {
		n.t.Errorf("%s ReadMessage() = %q, want %q", u.Name(), got, want)
	}
}

func TestWellKnownPaths(t *testing.T) {
	if got := PublicKeyPath("alice"); got != "alice/public" {
		t.Errorf("PublicKeyPath = %q", got)
	}
	if got := VerifyKeyPath("alice"); got != "alice/verify" {
		t.Errorf("VerifyKeyPath = %q", got)
	}
	if got := MasterKeyPath("alice"); got != "alice/master" {
		t.Errorf("MasterKeyPath = %q", got)
	}
}

func TestNewUser_Invalid(t *testing.T) {
	if _, err := NewUser("alice", keystore.NewMemoryStore(), nil, nil); err == nil {
		t.Error("NewUser() with nil block store error = nil, want error")
	}
	if _, err := NewUser("al/ice", keystore.NewMemoryStore(), blockstore.NewMemoryStore(), nil); err == nil {
		t.Error("NewUser() with bad name error = nil, want error")
	}
}

func TestPublishKeys_Blocks(t *testing.T) {
	n := newTestNet(t)
	alice := n.user("alice")
	n.join(alice, epochV0)
	kr, err := alice.SKI().Keyring(epochV0)
	if err != nil {
		t.Fatal(err)
	}

	vblock, err := n.blocks.Read(n.ctx, epochV0, "alice/verify", "")
	if err != nil {
		t.Fatalf("verify block: %v", err)
	}
	vkey, err := crypto.ParseVerifyKeyBlock(vblock.Data)
	if err != nil {
		t.Fatalf("ParseVerifyKeyBlock() error = %v", err)
	}
	if vkey != kr.VerifyKey() {
		t.Error("published verify key does not match keyring")
	}

	pblock, err := n.blocks.Read(n.ctx, epochV0, "alice/public", "")
	if err != nil {
		t.Fatalf("public block: %v", err)
	}
	if pblock.Author != "alice" || pblock.Epoch != epochV0 {
		t.Errorf("public block metadata = %s", pblock)
	}
	// The public key block is signed; unsigned parsing must fail.
	if _, err := crypto.ParsePublicKeyBlock(pblock.Data); err == nil {
		t.Error("public key block was published unsigned")
	}
	pkey, err := crypto.OpenPublicKeyBlock(pblock.Data, vkey)
	if err != nil {
		t.Fatalf("OpenPublicKeyBlock() error = %v", err)
	}
	if pkey != kr.PublicKey() {
		t.Error("published public key does not match keyring")
	}
}

// TestScenario walks the whole lifecycle of a channel: Alice starts it,
// Bob is admitted, Eve is admitted and later excluded by a rekey.
func TestScenario(t *testing.T) {
	n := newTestNet(t)
	alice, bob, eve := n.user("alice"), n.user("bob"), n.user("eve")

	n.originate(alice, epochV0)
	n.post(alice, "once upon a time there was a cat", epochV0)
	n.mustRead(alice, "once upon a time there was a cat")

	// Bob has keys but no master key yet.
	n.join(bob, epochV0)
	_, err := bob.ReadMessage(n.ctx, dataChannel, "my-cat")
	if !errors.Is(err, crypto.ErrPrecondition) {
		t.Fatalf("bob ReadMessage() before vouch error = %v, want ErrPrecondition", err)
	}

	n.vouch(alice, bob, epochV0)
	n.load(bob, epochV0)
	n.mustRead(bob, "once upon a time there was a cat")

	n.join(eve, epochV0)
	n.vouch(alice, eve, epochV0)
	n.load(eve, epochV0)
	n.mustRead(eve, "once upon a time there was a cat")

	dogs := n.post(eve, "my dog is better than your cat", epochV0)
	n.mustRead(alice, "my dog is better than your cat")
	n.mustRead(bob, "my dog is better than your cat")

	// Rekey without Eve.
	n.originate(alice, epochV1)
	n.join(bob, epochV1)
	n.vouch(alice, bob, epochV1)
	n.load(bob, epochV1)

	// Old data stays readable under the old epoch.
	n.mustRead(alice, "my dog is better than your cat")
	n.mustRead(bob, "my dog is better than your cat")

	n.post(alice, "cats rule, dogs drool", epochV1)
	n.mustRead(alice, "cats rule, dogs drool")
	n.mustRead(bob, "cats rule, dogs drool")

	// Eve has no keyring for the new epoch.
	_, err = eve.ReadMessage(n.ctx, dataChannel, "my-cat")
	if !errors.Is(err, ski.ErrKeyringNotFound) {
		t.Errorf("eve ReadMessage() error = %v, want ErrKeyringNotFound", err)
	}

	// Nor does a hacked client get anywhere with her old master key.
	latest, err := n.blocks.Read(n.ctx, dataChannel, "my-cat", "")
	if err != nil {
		t.Fatal(err)
	}
	oldKR, err := eve.SKI().Keyring(epochV0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := oldKR.Decrypt(latest.Data); !errors.Is(err, crypto.ErrDecryption) {
		t.Errorf("hacked decrypt error = %v, want ErrDecryption", err)
	}

	// Even joining the new epoch does not admit her.
	n.join(eve, epochV1)
	if err := eve.LoadMasterKey(n.ctx, epochV1); !errors.Is(err, blockstore.ErrNotFound) {
		t.Errorf("eve LoadMasterKey(v1) error = %v, want ErrNotFound", err)
	}
	if _, err := eve.ReadMessage(n.ctx, dataChannel, "my-cat"); !errors.Is(err, crypto.ErrPrecondition) {
		t.Errorf("eve ReadMessage() after join error = %v, want ErrPrecondition", err)
	}

	// Historical reads by id still work for Eve.
	got, err := eve.ReadMessageAt(n.ctx, dataChannel, "my-cat", dogs)
	if err != nil {
		t.Fatalf("eve ReadMessageAt() error = %v", err)
	}
	if string(got) != "my dog is better than your cat" {
		t.Errorf("eve ReadMessageAt() = %q", got)
	}
}

func TestLoadMasterKey_VouchForSomeoneElse(t *testing.T) {
	n := newTestNet(t)
	alice, bob, eve := n.user("alice"), n.user("bob"), n.user("eve")
	n.originate(alice, epochV0)
	n.join(bob, epochV0)
	n.join(eve, epochV0)
	n.vouch(alice, bob, epochV0)

	// Eve copies Bob's vouch block to her own master path.
	stolen, err := n.blocks.Read(n.ctx, epochV0, MasterKeyPath("bob"), "")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := n.blocks.Write(n.ctx, "alice", epochV0, MasterKeyPath("eve"), stolen.Data, epochV0); err != nil {
		t.Fatal(err)
	}

	before := testutil.ToFloat64(failuresTotal.WithLabelValues(opLoadMasterKey, "authentication"))
	err = eve.LoadMasterKey(n.ctx, epochV0)
	if !errors.Is(err, crypto.ErrAuthentication) {
		t.Fatalf("LoadMasterKey() error = %v, want ErrAuthentication", err)
	}
	if eve.SKI().HasMasterKey(epochV0) {
		t.Error("eve holds a master key after a rejected vouch block")
	}
	after := testutil.ToFloat64(failuresTotal.WithLabelValues(opLoadMasterKey, "authentication"))
	if after != before+1 {
		t.Errorf("authentication failures = %v, want %v", after, before+1)
	}
}

func TestReadMessage_ForgedAuthor(t *testing.T) {
	n := newTestNet(t)
	alice, eve := n.user("alice"), n.user("eve")
	n.originate(alice, epochV0)
	n.join(eve, epochV0)
	n.vouch(alice, eve, epochV0)
	n.load(eve, epochV0)

	// Eve signs with her own key but claims Alice wrote it.
	signed, err := eve.SKI().Encrypt(epochV0, []byte("alice loves dogs"))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := n.blocks.Write(n.ctx, "alice", dataChannel, "my-cat", signed, epochV0); err != nil {
		t.Fatal(err)
	}

	if _, err := alice.ReadMessage(n.ctx, dataChannel, "my-cat"); !errors.Is(err, crypto.ErrAuthentication) {
		t.Errorf("ReadMessage() error = %v, want ErrAuthentication", err)
	}
}

func TestVouchFor_ForgedPublicKey(t *testing.T) {
	n := newTestNet(t)
	alice, bob, eve := n.user("alice"), n.user("bob"), n.user("eve")
	n.originate(alice, epochV0)
	n.join(bob, epochV0)
	n.join(eve, epochV0)

	// Eve publishes her own signed public key block at Bob's path.
	forged, err := eve.SKI().PublicKeyBlock(epochV0)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := n.blocks.Write(n.ctx, "eve", epochV0, PublicKeyPath("bob"), forged, epochV0); err != nil {
		t.Fatal(err)
	}

	if err := alice.VouchFor(n.ctx, "bob", epochV0); !errors.Is(err, crypto.ErrAuthentication) {
		t.Errorf("VouchFor() error = %v, want ErrAuthentication", err)
	}
}

func TestVouchFor_Unpublished(t *testing.T) {
	n := newTestNet(t)
	alice := n.user("alice")
	n.originate(alice, epochV0)

	if err := alice.VouchFor(n.ctx, "bob", epochV0); !errors.Is(err, blockstore.ErrNotFound) {
		t.Errorf("VouchFor() error = %v, want ErrNotFound", err)
	}
}

func TestPublishMessage_Preconditions(t *testing.T) {
	n := newTestNet(t)
	bob := n.user("bob")

	if _, _, err := bob.PublishMessage(n.ctx, dataChannel, "x", []byte("hi"), epochV0); !errors.Is(err, ski.ErrKeyringNotFound) {
		t.Errorf("PublishMessage() without keyring error = %v, want ErrKeyringNotFound", err)
	}
	n.join(bob, epochV0)
	if _, _, err := bob.PublishMessage(n.ctx, dataChannel, "x", []byte("hi"), epochV0); !errors.Is(err, crypto.ErrPrecondition) {
		t.Errorf("PublishMessage() without master key error = %v, want ErrPrecondition", err)
	}
	if _, err := n.blocks.Read(n.ctx, dataChannel, "x", ""); !errors.Is(err, blockstore.ErrNotFound) {
		t.Errorf("a failed publish wrote a block: %v", err)
	}
}

func TestOpenEpoch(t *testing.T) {
	n := newTestNet(t)
	keys := keystore.NewMemoryStore()

	alice, err := NewUser("alice", keys, n.blocks, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer alice.Close()
	n.originate(alice, epochV0)
	n.post(alice, "hello", epochV0)

	// A new session for the same user starts from persisted keypairs and
	// recovers the master key from the self-addressed vouch block.
	again, err := NewUser("alice", keys, n.blocks, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer again.Close()
	if err := again.OpenEpoch(n.ctx, epochV0); err != nil {
		t.Fatalf("OpenEpoch() error = %v", err)
	}
	if !again.SKI().HasMasterKey(epochV0) {
		t.Fatal("OpenEpoch() did not recover the master key")
	}
	n.mustRead(again, "hello")

	// Without a vouch block the epoch opens keys-only.
	bob := n.user("bob")
	if err := bob.OpenEpoch(n.ctx, epochV0); err != nil {
		t.Fatalf("bob OpenEpoch() error = %v", err)
	}
	if bob.SKI().HasMasterKey(epochV0) {
		t.Error("bob has a master key without a vouch block")
	}

	// Opening a keyed epoch again is a no-op.
	if err := again.OpenEpoch(n.ctx, epochV0); err != nil {
		t.Errorf("second OpenEpoch() error = %v", err)
	}
}

func TestOperationsMetric(t *testing.T) {
	n := newTestNet(t)
	alice := n.user("alice")

	before := testutil.ToFloat64(operationsTotal.WithLabelValues(opPublishMessage))
	n.originate(alice, epochV0)
	n.post(alice, "one", epochV0)
	n.post(alice, "two", epochV0)
	if got := testutil.ToFloat64(operationsTotal.WithLabelValues(opPublishMessage)); got != before+2 {
		t.Errorf("published messages = %v, want %v", got, before+2)
	}
}
