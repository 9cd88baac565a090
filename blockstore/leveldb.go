package blockstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// LevelStore persists blocks in a goleveldb database.
type LevelStore struct {
	wmu sync.Mutex
	db  *leveldb.DB
}

// OpenLevelStore opens, creating if needed, a leveldb database in dir.
func OpenLevelStore(dir string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("blockstore: open leveldb %s: %w", dir, err)
	}
	return &LevelStore{db: db}, nil
}

// NewMemLevelStore opens a leveldb database on in-memory storage.
func NewMemLevelStore() (*LevelStore, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("blockstore: open leveldb: %w", err)
	}
	return &LevelStore{db: db}, nil
}

func (s *LevelStore) Write(ctx context.Context, author, channel, path string, data []byte, epoch string) (int, string, error) {
	if err := ctx.Err(); err != nil {
		return 0, "", err
	}
	key, err := CanonicalPath(channel, path)
	if err != nil {
		return 0, "", err
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	count, err := s.count(key)
	if err != nil {
		return 0, "", err
	}
	b := &Block{ID: newBlockID(), Index: int(count), Author: author, Epoch: epoch, Data: data}
	value, err := encodeBlock(b)
	if err != nil {
		return 0, "", err
	}

	batch := new(leveldb.Batch)
	batch.Put(indexKey(key, count), value)
	batch.Put(idKey(key, b.ID), encodeUint(count))
	batch.Put(countKey(key), encodeUint(count+1))
	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return 0, "", fmt.Errorf("blockstore: write %s: %w", key, err)
	}
	return b.Index, b.ID, nil
}

func (s *LevelStore) Read(ctx context.Context, channel, path, blockID string) (*Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := CanonicalPath(channel, path)
	if err != nil {
		return nil, err
	}

	snap, err := s.db.GetSnapshot()
	if err != nil {
		return nil, fmt.Errorf("blockstore: snapshot: %w", err)
	}
	defer snap.Release()

	var index uint64
	if blockID == "" {
		raw, err := snap.Get(countKey(key), nil)
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, fmt.Errorf("%w: no blocks at %s", ErrNotFound, key)
		}
		if err != nil {
			return nil, fmt.Errorf("blockstore: read %s: %w", key, err)
		}
		count, err := decodeUint(raw)
		if err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, fmt.Errorf("%w: no blocks at %s", ErrNotFound, key)
		}
		index = count - 1
	} else {
		raw, err := snap.Get(idKey(key, blockID), nil)
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, fmt.Errorf("%w: block %s at %s", ErrNotFound, blockID, key)
		}
		if err != nil {
			return nil, fmt.Errorf("blockstore: read %s: %w", key, err)
		}
		if index, err = decodeUint(raw); err != nil {
			return nil, err
		}
	}

	raw, err := snap.Get(indexKey(key, index), nil)
	if err != nil {
		return nil, fmt.Errorf("blockstore: block %d at %s: %w", index, key, err)
	}
	return decodeBlock(raw)
}

// Close closes the database.
func (s *LevelStore) Close() error {
	return s.db.Close()
}

func (s *LevelStore) count(path string) (uint64, error) {
	raw, err := s.db.Get(countKey(path), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("blockstore: read counter for %s: %w", path, err)
	}
	return decodeUint(raw)
}
