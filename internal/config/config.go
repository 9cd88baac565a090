// Package config loads the vouch TOML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"github.com/joncooperworks/vouch/blockstore"
	"github.com/joncooperworks/vouch/crypto/keystore"
)

// DefaultFile is the config file name looked up in the data directory.
const DefaultFile = "vouch.toml"

// Config is the on-disk configuration. Command line flags override it.
type Config struct {
	DataDir string `toml:"data_dir"`
	User    string `toml:"user"`

	KeyStore        string `toml:"keystore"`
	KeyringService  string `toml:"keyring_service"`
	KeyringPassword string `toml:"keyring_password"`

	BlockStore string `toml:"blockstore"`

	LogLevel    string `toml:"log_level"`
	LogFile     string `toml:"log_file"`
	LogMaxKB    int64  `toml:"log_max_kb"`
	LogMaxRolls int    `toml:"log_max_rolls"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		DataDir:     "./data",
		KeyStore:    "file",
		BlockStore:  "badger",
		LogLevel:    "info",
		LogMaxKB:    1024,
		LogMaxRolls: 3,
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects unknown backends and log levels.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir must be set")
	}
	if !contains(keystore.ListBackends(), c.KeyStore) {
		return fmt.Errorf("unknown keystore %q (have %v)", c.KeyStore, keystore.ListBackends())
	}
	if !contains(blockstore.Backends, c.BlockStore) {
		return fmt.Errorf("unknown blockstore %q (have %v)", c.BlockStore, blockstore.Backends)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	if c.User != "" {
		if err := keystore.CheckUser(c.User); err != nil {
			return err
		}
	}
	return nil
}

// KeyDir is where file and encrypted-file keyring backends keep keyfiles.
func (c *Config) KeyDir() string {
	return filepath.Join(c.DataDir, "keys")
}

// KeyStoreOptions returns the options for opening the configured keystore.
func (c *Config) KeyStoreOptions() keystore.Options {
	return keystore.Options{
		Dir:         c.KeyDir(),
		ServiceName: c.KeyringService,
		Password:    c.KeyringPassword,
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
