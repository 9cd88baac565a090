package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/joncooperworks/vouch/blockstore"
	"github.com/joncooperworks/vouch/crypto/keystore"
	"github.com/joncooperworks/vouch/plan"
)

func listKeys(out io.Writer, keys keystore.KeyStore) error {
	names, err := keys.List()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(out, "No keypairs found")
		return nil
	}
	if fs, ok := keys.(*keystore.FileStore); ok {
		fmt.Fprintf(out, "Keypairs in %s (%d):\n", fs.Dir(), len(names))
	} else {
		fmt.Fprintf(out, "Keypairs (%d):\n", len(names))
	}
	for _, name := range names {
		fmt.Fprintf(out, "  - %s\n", name)
	}
	return nil
}

func cmdKeyring(u *plan.User, epoch string) error {
	kr, err := u.SKI().NewKeyring(epoch)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", kr.User(), kr.Epoch())
	fmt.Printf("  public key: %s\n", kr.PublicKey())
	fmt.Printf("  verify key: %s\n", kr.VerifyKey())
	return nil
}

// cmdMasterKey starts a new epoch. Master keys only live in memory, so the
// self-addressed vouch block is written in the same invocation.
func cmdMasterKey(ctx context.Context, u *plan.User, epoch string) error {
	if err := u.OpenEpoch(ctx, epoch); err != nil {
		return err
	}
	if u.SKI().HasMasterKey(epoch) {
		return fmt.Errorf("%s already holds a master key for %s; rekey with a new epoch", u.Name(), epoch)
	}
	if err := u.SKI().NewMasterKey(epoch); err != nil {
		return err
	}
	if err := u.PublishKeys(ctx, epoch); err != nil {
		return err
	}
	if err := u.VouchFor(ctx, u.Name(), epoch); err != nil {
		return err
	}
	fmt.Printf("%s generated the master key for %s and vouched for themselves\n", u.Name(), epoch)
	return nil
}

func cmdPublish(ctx context.Context, u *plan.User, epoch string) error {
	if err := u.OpenEpoch(ctx, epoch); err != nil {
		return err
	}
	if err := u.PublishKeys(ctx, epoch); err != nil {
		return err
	}
	fmt.Printf("published keys of %s for %s\n", u.Name(), epoch)
	return nil
}

func cmdVouch(ctx context.Context, u *plan.User, target, epoch string) error {
	if err := u.OpenEpoch(ctx, epoch); err != nil {
		return err
	}
	if err := u.VouchFor(ctx, target, epoch); err != nil {
		return err
	}
	fmt.Printf("%s vouched for %s on %s\n", u.Name(), target, epoch)
	return nil
}

func cmdLoad(ctx context.Context, u *plan.User, epoch string) error {
	if _, err := u.SKI().NewKeyring(epoch); err != nil {
		return err
	}
	err := u.LoadMasterKey(ctx, epoch)
	if errors.Is(err, blockstore.ErrNotFound) {
		return fmt.Errorf("nobody has vouched for %s on %s yet: %w", u.Name(), epoch, err)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s loaded the master key for %s\n", u.Name(), epoch)
	return nil
}

func cmdPost(ctx context.Context, u *plan.User, channel, path, epoch, message string) error {
	if err := u.OpenEpoch(ctx, epoch); err != nil {
		return err
	}
	index, id, err := u.PublishMessage(ctx, channel, path, []byte(message), epoch)
	if err != nil {
		return err
	}
	fmt.Printf("wrote block %s (index %d)\n", id, index)
	return nil
}

// cmdRead opens the epoch named by the block before reading it, since a
// fresh invocation holds no keyrings.
func cmdRead(ctx context.Context, u *plan.User, blocks blockstore.Store, channel, path, blockID string) error {
	block, err := blocks.Read(ctx, channel, path, blockID)
	if err != nil {
		return err
	}
	if err := u.OpenEpoch(ctx, block.Epoch); err != nil {
		return err
	}
	message, err := u.ReadMessageAt(ctx, channel, path, block.ID)
	if err != nil {
		return err
	}
	fmt.Printf("%s (by %s, %s)\n", message, block.Author, block.Epoch)
	return nil
}
