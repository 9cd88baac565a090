package blockstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps blocks in memory. It is the store the demo and most
// tests run against.
type MemoryStore struct {
	mu     sync.RWMutex
	blocks map[string][]*Block
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blocks: make(map[string][]*Block)}
}

func (s *MemoryStore) Write(ctx context.Context, author, channel, path string, data []byte, epoch string) (int, string, error) {
	if err := ctx.Err(); err != nil {
		return 0, "", err
	}
	key, err := CanonicalPath(channel, path)
	if err != nil {
		return 0, "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := &Block{
		ID:     newBlockID(),
		Index:  len(s.blocks[key]),
		Author: author,
		Epoch:  epoch,
		Data:   append([]byte(nil), data...),
	}
	s.blocks[key] = append(s.blocks[key], b)
	return b.Index, b.ID, nil
}

func (s *MemoryStore) Read(ctx context.Context, channel, path, blockID string) (*Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := CanonicalPath(channel, path)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	blocks := s.blocks[key]
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: no blocks at %s", ErrNotFound, key)
	}
	if blockID == "" {
		return copyBlock(blocks[len(blocks)-1]), nil
	}
	for _, b := range blocks {
		if b.ID == blockID {
			return copyBlock(b), nil
		}
	}
	return nil, fmt.Errorf("%w: block %s at %s", ErrNotFound, blockID, key)
}

func (s *MemoryStore) Close() error { return nil }

func copyBlock(b *Block) *Block {
	c := *b
	c.Data = append([]byte(nil), b.Data...)
	return &c
}
