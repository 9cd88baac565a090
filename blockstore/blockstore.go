// Package blockstore is the append-only block store channels are written to
// and read from. Blocks are grouped by canonical path, "/channel/path", and
// each path keeps every block ever written to it in write order.
package blockstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a path has no blocks, or a requested
	// block id does not exist under the path.
	ErrNotFound = errors.New("blockstore: not found")

	// ErrInvalidPath is returned for an empty channel or path.
	ErrInvalidPath = errors.New("blockstore: invalid path")
)

// Block is one write to the store. Author and Epoch are metadata the store
// records alongside the opaque data; they are not authenticated by it.
type Block struct {
	ID     string `json:"id"`
	Index  int    `json:"index"`
	Author string `json:"author"`
	Epoch  string `json:"epoch"`
	Data   []byte `json:"data"`
}

func (b *Block) String() string {
	return fmt.Sprintf("Block(id=%s index=%d author=%s epoch=%s len=%d)", b.ID, b.Index, b.Author, b.Epoch, len(b.Data))
}

// Store is the block store contract.
//
// Implementations give read-your-writes visibility to the writer, order the
// writes to one path, and never drop a write, even under concurrent writers.
type Store interface {
	// Write appends data to channel/path and returns the block's index
	// within the path and its id.
	Write(ctx context.Context, author, channel, path string, data []byte, epoch string) (int, string, error)
	// Read returns the latest block for channel/path, or the block with
	// blockID when it is not empty.
	Read(ctx context.Context, channel, path, blockID string) (*Block, error)
	Close() error
}

// CanonicalPath joins channel and path into the single form blocks are
// stored under. Leading slashes on either part are ignored, so "cats",
// "/cats" and "//cats" name the same channel.
func CanonicalPath(channel, path string) (string, error) {
	c := strings.TrimLeft(channel, "/")
	p := strings.TrimLeft(path, "/")
	if c == "" || p == "" {
		return "", fmt.Errorf("%w: channel %q path %q", ErrInvalidPath, channel, path)
	}
	return "/" + c + "/" + p, nil
}

func newBlockID() string {
	return uuid.NewString()
}
