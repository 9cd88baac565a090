package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/joncooperworks/vouch/blockstore"
	"github.com/joncooperworks/vouch/crypto"
	"github.com/joncooperworks/vouch/crypto/keystore"
	"github.com/joncooperworks/vouch/crypto/ski"
	"github.com/joncooperworks/vouch/plan"
)

const (
	demoChannel  = "/cats"
	demoPath     = "my-cat"
	demoEpoch    = "/key/cats/v0"
	demoNewEpoch = "/key/cats/v1"
)

// demo narrates the walkthrough to out, stopping at the first error.
type demo struct {
	ctx    context.Context
	out    io.Writer
	blocks blockstore.Store
	err    error
}

func (d *demo) say(format string, args ...interface{}) {
	fmt.Fprintf(d.out, format+"\n", args...)
}

func (d *demo) do(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *demo) newUser(name string, log *logrus.Entry) *plan.User {
	u, err := plan.NewUser(name, keystore.NewMemoryStore(), d.blocks, log)
	d.do(err)
	return u
}

func (d *demo) newKeyring(u *plan.User, epoch string) {
	if d.err != nil {
		return
	}
	kr, err := u.SKI().NewKeyring(epoch)
	if err != nil {
		d.do(err)
		return
	}
	d.say("  - %s has public key: %s", u.Name(), kr.PublicKey())
	d.say("  - %s has verify key: %s", u.Name(), kr.VerifyKey())
}

func (d *demo) read(u *plan.User) {
	if d.err != nil {
		return
	}
	msg, err := u.ReadMessage(d.ctx, demoChannel, demoPath)
	if err != nil {
		d.do(fmt.Errorf("%s failed to read: %w", u.Name(), err))
		return
	}
	d.say("    %s reads: %s", u.Name(), msg)
}

// expectDenied reads as u and requires the read to fail.
func (d *demo) expectDenied(u *plan.User) {
	if d.err != nil {
		return
	}
	_, err := u.ReadMessage(d.ctx, demoChannel, demoPath)
	switch {
	case err == nil:
		d.do(fmt.Errorf("%s read a message they should not be able to", u.Name()))
	case errors.Is(err, crypto.ErrPrecondition):
		d.say("    ... but %s can't: no master key", u.Name())
	case errors.Is(err, ski.ErrKeyringNotFound):
		d.say("    ... but %s can't: no keyring for the epoch", u.Name())
	case errors.Is(err, crypto.ErrAuthentication):
		d.say("    ... but %s can't: %v", u.Name(), err)
	default:
		d.do(err)
	}
}

func runDemo(ctx context.Context, out io.Writer, log *logrus.Entry) error {
	d := &demo{ctx: ctx, out: out, blocks: blockstore.NewMemoryStore()}
	defer d.blocks.Close()

	d.say("* Creating users Alice, Bob and Eve")
	alice := d.newUser("alice", log)
	bob := d.newUser("bob", log)
	eve := d.newUser("eve", log)
	if d.err != nil {
		return d.err
	}
	defer alice.Close()
	defer bob.Close()
	defer eve.Close()

	d.say("\n* Alice initializes the keyring for channel %q", demoChannel)
	d.newKeyring(alice, demoEpoch)
	d.do(alice.SKI().NewMasterKey(demoEpoch))
	d.say("  - Alice publishes her keys and vouches for herself")
	d.do(alice.PublishKeys(ctx, demoEpoch))
	d.do(alice.VouchFor(ctx, "alice", demoEpoch))

	d.say("\n* Alice publishes a message")
	d.do(publish(ctx, alice, "once upon a time there was a cat and he was smelly", demoEpoch))
	d.read(alice)

	d.say("\n* Bob wants to read about cats too")
	d.newKeyring(bob, demoEpoch)
	d.do(bob.PublishKeys(ctx, demoEpoch))
	d.say("  - Bob tries to read")
	d.expectDenied(bob)

	d.say("  - Alice vouches for Bob and Bob loads the master key")
	d.do(alice.VouchFor(ctx, "bob", demoEpoch))
	d.do(bob.LoadMasterKey(ctx, demoEpoch))
	d.read(bob)

	d.say("\n* Eve wants to join")
	d.newKeyring(eve, demoEpoch)
	d.do(eve.PublishKeys(ctx, demoEpoch))
	d.do(alice.VouchFor(ctx, "eve", demoEpoch))
	d.do(eve.LoadMasterKey(ctx, demoEpoch))
	d.read(eve)

	d.say("\n* Eve writes about dogs. Oh no!")
	d.do(publish(ctx, eve, "my dog is better than your cat", demoEpoch))
	d.read(alice)
	d.read(bob)

	d.say("\n* Alice and Bob expel Eve by rekeying")
	d.newKeyring(alice, demoNewEpoch)
	d.do(alice.SKI().NewMasterKey(demoNewEpoch))
	d.do(alice.PublishKeys(ctx, demoNewEpoch))
	d.do(alice.VouchFor(ctx, "alice", demoNewEpoch))
	d.newKeyring(bob, demoNewEpoch)
	d.do(bob.PublishKeys(ctx, demoNewEpoch))
	d.do(alice.VouchFor(ctx, "bob", demoNewEpoch))
	d.do(bob.LoadMasterKey(ctx, demoNewEpoch))

	d.say("  - Alice and Bob can still read old messages")
	d.read(alice)
	d.read(bob)

	d.say("  - Alice publishes under the new epoch")
	d.do(publish(ctx, alice, "cats rule, dogs drool", demoNewEpoch))
	d.read(alice)
	d.read(bob)

	d.say("  - Eve has no keyring for the new epoch")
	d.expectDenied(eve)

	d.say("  - Eve tries a hacked client with her old master key")
	if d.err == nil {
		d.hackedClient(eve)
	}
	return d.err
}

func (d *demo) hackedClient(eve *plan.User) {
	block, err := d.blocks.Read(d.ctx, demoChannel, demoPath, "")
	if err != nil {
		d.do(err)
		return
	}
	d.say("    %s", block)
	old, err := eve.SKI().Keyring(demoEpoch)
	if err != nil {
		d.do(err)
		return
	}
	_, err = old.Decrypt(block.Data)
	if !errors.Is(err, crypto.ErrDecryption) {
		d.do(fmt.Errorf("hacked client: got %v, want a decryption failure", err))
		return
	}
	d.say("    ... but fails: %v", err)
}

func publish(ctx context.Context, u *plan.User, msg, epoch string) error {
	_, _, err := u.PublishMessage(ctx, demoChannel, demoPath, []byte(msg), epoch)
	return err
}
