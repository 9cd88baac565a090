package blockstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/joncooperworks/vouch/internal/logging"
)

// BadgerStore persists blocks in a badger database.
type BadgerStore struct {
	// writes are serialized so concurrent writers to one path never
	// conflict on its counter
	wmu sync.Mutex
	db  *badger.DB
}

// OpenBadgerStore opens, creating if needed, a badger database in dir. An
// empty dir opens an in-memory database.
func OpenBadgerStore(dir string, log *logrus.Entry) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(badgerLogger{logging.OrDiscard(log).WithField("component", "badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("blockstore: open badger %s: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Write(ctx context.Context, author, channel, path string, data []byte, epoch string) (int, string, error) {
	if err := ctx.Err(); err != nil {
		return 0, "", err
	}
	key, err := CanonicalPath(channel, path)
	if err != nil {
		return 0, "", err
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	b := &Block{ID: newBlockID(), Author: author, Epoch: epoch, Data: data}
	err = s.db.Update(func(txn *badger.Txn) error {
		count, err := badgerCount(txn, key)
		if err != nil {
			return err
		}
		b.Index = int(count)
		value, err := encodeBlock(b)
		if err != nil {
			return err
		}
		if err := txn.Set(indexKey(key, count), value); err != nil {
			return err
		}
		if err := txn.Set(idKey(key, b.ID), encodeUint(count)); err != nil {
			return err
		}
		return txn.Set(countKey(key), encodeUint(count+1))
	})
	if err != nil {
		return 0, "", fmt.Errorf("blockstore: write %s: %w", key, err)
	}
	return b.Index, b.ID, nil
}

func (s *BadgerStore) Read(ctx context.Context, channel, path, blockID string) (*Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := CanonicalPath(channel, path)
	if err != nil {
		return nil, err
	}

	var b *Block
	err = s.db.View(func(txn *badger.Txn) error {
		var index uint64
		if blockID == "" {
			count, err := badgerCount(txn, key)
			if err != nil {
				return err
			}
			if count == 0 {
				return fmt.Errorf("%w: no blocks at %s", ErrNotFound, key)
			}
			index = count - 1
		} else {
			raw, err := badgerGet(txn, idKey(key, blockID))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: block %s at %s", ErrNotFound, blockID, key)
			}
			if err != nil {
				return err
			}
			if index, err = decodeUint(raw); err != nil {
				return err
			}
		}
		raw, err := badgerGet(txn, indexKey(key, index))
		if err != nil {
			return fmt.Errorf("blockstore: block %d at %s: %w", index, key, err)
		}
		b, err = decodeBlock(raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func badgerGet(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func badgerCount(txn *badger.Txn, path string) (uint64, error) {
	raw, err := badgerGet(txn, countKey(path))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return decodeUint(raw)
}

// badgerLogger routes badger's own logging through logrus, demoting its
// chatty info output to debug.
type badgerLogger struct {
	log *logrus.Entry
}

func (l badgerLogger) Errorf(f string, v ...interface{})   { l.log.Errorf(f, v...) }
func (l badgerLogger) Warningf(f string, v ...interface{}) { l.log.Warnf(f, v...) }
func (l badgerLogger) Infof(f string, v ...interface{})    { l.log.Debugf(f, v...) }
func (l badgerLogger) Debugf(f string, v ...interface{})   { l.log.Debugf(f, v...) }
