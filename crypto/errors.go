package crypto

import (
	"errors"
	"fmt"

	"github.com/joncooperworks/vouch/crypto/keystore"
)

var (
	// ErrAuthentication is returned when a signature does not verify or an
	// authenticated decryption is rejected: wrong recipient, wrong sender,
	// or tampered bytes. It is never retried.
	ErrAuthentication = errors.New("authentication failed")

	// ErrDecryption is returned when a message cannot be opened with the
	// keyring's master key, typically because it was written under another
	// epoch. It wraps ErrAuthentication.
	ErrDecryption = fmt.Errorf("%w: decryption with master key failed", ErrAuthentication)

	// ErrPrecondition is returned when an operation is called in the wrong
	// keyring state, such as encrypting before a master key is present.
	ErrPrecondition = errors.New("precondition violated")

	// ErrKeyMaterial reports a malformed key block, vouch block or keyfile.
	ErrKeyMaterial = keystore.ErrKeyMaterial
)
