// Command vouch runs the keyring, vouching and rekey workflows against a
// local key store and block store.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/sirupsen/logrus"
	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"github.com/joncooperworks/vouch/blockstore"
	"github.com/joncooperworks/vouch/crypto/keystore"
	"github.com/joncooperworks/vouch/internal/config"
	"github.com/joncooperworks/vouch/internal/logging"
	"github.com/joncooperworks/vouch/plan"
)

// exitPermission is the exit status for a key store that exists but cannot
// be read.
const exitPermission = 77

var (
	app = kingpin.New("vouch", "Group key distribution by vouching.")

	configFile = app.Flag("config", "Config file (default <data-dir>/vouch.toml).").Short('c').String()
	dataDir    = app.Flag("data-dir", "Directory for keys, blocks and logs.").String()
	userFlag   = app.Flag("user", "Act as this user.").Short('u').String()
	keyStore   = app.Flag("keystore", "Keypair backend: file, keyring or memory.").String()
	blockStore = app.Flag("blockstore", "Block store backend: badger, leveldb or memory.").String()
	logLevel   = app.Flag("log-level", "Log level.").String()
	logFile    = app.Flag("log-file", "Also log to this rotated file.").String()

	keyringCmd   = app.Command("keyring", "Create or load the keypairs for an epoch.")
	keyringEpoch = keyringCmd.Arg("epoch", "Channel epoch, e.g. /key/cats/v0.").Required().String()

	masterCmd   = app.Command("masterkey", "Start an epoch: generate its master key, publish keys and vouch for yourself.")
	masterEpoch = masterCmd.Arg("epoch", "Channel epoch.").Required().String()

	publishCmd   = app.Command("publish", "Publish your public and verify key blocks for an epoch.")
	publishEpoch = publishCmd.Arg("epoch", "Channel epoch.").Required().String()

	vouchCmd    = app.Command("vouch", "Vouch for another user on an epoch.")
	vouchTarget = vouchCmd.Arg("target", "User to vouch for.").Required().String()
	vouchEpoch  = vouchCmd.Arg("epoch", "Channel epoch.").Required().String()

	loadCmd   = app.Command("load", "Load the master key someone vouched to you.")
	loadEpoch = loadCmd.Arg("epoch", "Channel epoch.").Required().String()

	postCmd     = app.Command("post", "Encrypt, sign and publish a message.")
	postChannel = postCmd.Arg("channel", "Data channel.").Required().String()
	postPath    = postCmd.Arg("path", "Path within the channel.").Required().String()
	postEpoch   = postCmd.Arg("epoch", "Channel epoch to encrypt under.").Required().String()
	postMessage = postCmd.Arg("message", "Message text.").Required().String()

	readCmd     = app.Command("read", "Read, verify and decrypt a message.")
	readChannel = readCmd.Arg("channel", "Data channel.").Required().String()
	readPath    = readCmd.Arg("path", "Path within the channel.").Required().String()
	readBlockID = readCmd.Flag("block-id", "Read this block instead of the latest.").String()

	keysCmd = app.Command("keys", "List stored keypairs.")

	demoCmd = app.Command("demo", "Run the Alice, Bob and Eve walkthrough in memory.")
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, command); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, keystore.ErrPermission) {
			os.Exit(exitPermission)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, command string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{
		Level:    cfg.LogLevel,
		File:     cfg.LogFile,
		MaxKB:    cfg.LogMaxKB,
		MaxRolls: cfg.LogMaxRolls,
	})
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logrus.NewEntry(logger.Logger)

	if command == demoCmd.FullCommand() {
		return runDemo(ctx, os.Stdout, log)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	keys, err := keystore.NewKeyStore(cfg.KeyStore, cfg.KeyStoreOptions())
	if err != nil {
		return err
	}
	if command == keysCmd.FullCommand() {
		return listKeys(os.Stdout, keys)
	}

	if cfg.User == "" {
		return errors.New("--user is required")
	}
	blocks, err := blockstore.Open(cfg.BlockStore, cfg.DataDir, log)
	if err != nil {
		return err
	}
	defer blocks.Close()

	u, err := plan.NewUser(cfg.User, keys, blocks, log)
	if err != nil {
		return err
	}
	defer u.Close()

	switch command {
	case keyringCmd.FullCommand():
		return cmdKeyring(u, *keyringEpoch)
	case masterCmd.FullCommand():
		return cmdMasterKey(ctx, u, *masterEpoch)
	case publishCmd.FullCommand():
		return cmdPublish(ctx, u, *publishEpoch)
	case vouchCmd.FullCommand():
		return cmdVouch(ctx, u, *vouchTarget, *vouchEpoch)
	case loadCmd.FullCommand():
		return cmdLoad(ctx, u, *loadEpoch)
	case postCmd.FullCommand():
		return cmdPost(ctx, u, *postChannel, *postPath, *postEpoch, *postMessage)
	case readCmd.FullCommand():
		return cmdRead(ctx, u, blocks, *readChannel, *readPath, *readBlockID)
	}
	return fmt.Errorf("unknown command %q", command)
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig() (*config.Config, error) {
	dir := *dataDir
	if dir == "" {
		dir = config.Default().DataDir
	}
	path := *configFile
	if path == "" {
		path = filepath.Join(dir, config.DefaultFile)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&cfg.DataDir, *dataDir)
	override(&cfg.User, *userFlag)
	override(&cfg.KeyStore, *keyStore)
	override(&cfg.BlockStore, *blockStore)
	override(&cfg.LogLevel, *logLevel)
	override(&cfg.LogFile, *logFile)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
