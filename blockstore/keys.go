package blockstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Key layout shared by the persistent backends. For a canonical path P:
//
//	p:P\x00n            number of blocks under P (uint64, big endian)
//	p:P\x00i:<index>    JSON encoded Block (index as uint64, big endian)
//	p:P\x00b:<blockID>  index of the block with that id
const (
	prefixPath = "p:"
	sepCount   = "\x00n"
	sepIndex   = "\x00i:"
	sepID      = "\x00b:"
)

func countKey(path string) []byte {
	return []byte(prefixPath + path + sepCount)
}

func indexKey(path string, index uint64) []byte {
	k := []byte(prefixPath + path + sepIndex)
	return binary.BigEndian.AppendUint64(k, index)
}

func idKey(path, blockID string) []byte {
	return []byte(prefixPath + path + sepID + blockID)
}

func encodeUint(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func decodeUint(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("blockstore: corrupt counter (%d bytes)", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

func encodeBlock(b *Block) ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("blockstore: encode block: %w", err)
	}
	return data, nil
}

func decodeBlock(data []byte) (*Block, error) {
	var b Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("blockstore: decode block: %w", err)
	}
	return &b, nil
}
