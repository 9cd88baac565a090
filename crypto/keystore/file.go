package keystore

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rogpeppe/go-internal/lockedfile"
)

func init() {
	RegisterKeyStore("file", func(opts Options) (KeyStore, error) {
		return NewFileStore(opts.Dir)
	})
}

// FileStore keeps one JSON keyfile per (user, epoch) in a directory.
// Reads and writes take an advisory file lock so that two processes acting
// for the same user never observe a half-written keyfile.
type FileStore struct {
	dir string
}

// NewFileStore initializes the keyfile directory, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("keystore directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", ErrPermission, err)
		}
		return nil, fmt.Errorf("failed to create keystore directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory the store writes to.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(user, epoch string) (string, error) {
	name, err := KeyfileName(user, epoch)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}

// Load reads and parses the keyfile for user and epoch.
func (s *FileStore) Load(user, epoch string) (*KeypairBundle, error) {
	path, err := s.path(user, epoch)
	if err != nil {
		return nil, err
	}
	data, err := lockedfile.Read(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		return nil, fmt.Errorf("%w: keyfile %s: %v", ErrPermission, path, err)
	case err != nil:
		return nil, fmt.Errorf("failed to read keyfile %s: %w", path, err)
	}
	defer zeroize(data)

	bundle, err := ParseKeyfile(data)
	if err != nil {
		return nil, fmt.Errorf("keyfile %s: %w", path, err)
	}
	return bundle, nil
}

// Save writes the keyfile for user and epoch with owner-only permissions.
func (s *FileStore) Save(user, epoch string, bundle *KeypairBundle) error {
	path, err := s.path(user, epoch)
	if err != nil {
		return err
	}
	data, err := MarshalKeyfile(bundle)
	if err != nil {
		return err
	}
	defer zeroize(data)

	if err := lockedfile.Write(path, bytes.NewReader(data), 0o600); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("%w: keyfile %s: %v", ErrPermission, path, err)
		}
		return fmt.Errorf("failed to write keyfile %s: %w", path, err)
	}
	return nil
}

// List returns the keyfile names in the store directory.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list keystore directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}
