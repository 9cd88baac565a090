package blockstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Backends lists the names Open accepts.
var Backends = []string{"badger", "leveldb", "memory"}

// Open opens the named backend under dataDir. Persistent backends use a
// subdirectory named after the backend.
func Open(backend, dataDir string, log *logrus.Entry) (Store, error) {
	switch backend {
	case "memory":
		return NewMemoryStore(), nil
	case "badger", "leveldb":
	default:
		return nil, fmt.Errorf("blockstore: unknown backend %q", backend)
	}

	dir := filepath.Join(dataDir, "blocks-"+backend)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("blockstore: create %s: %w", dir, err)
	}
	if backend == "badger" {
		return OpenBadgerStore(dir, log)
	}
	return OpenLevelStore(dir)
}
