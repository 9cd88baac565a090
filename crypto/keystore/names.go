package keystore

import (
	"errors"
	"fmt"
	"strings"
)

// CheckUser validates a user name. Names become part of keyfile names and
// block store paths so only a conservative character set is accepted.
func CheckUser(user string) error {
	if user == "" {
		return errors.New("user cannot be empty")
	}
	for _, char := range user {
		if isNameChar(char) {
			continue
		}
		return fmt.Errorf("invalid character %q in user %q", char, user)
	}
	return nil
}

// CanonicalEpoch validates a channel-epoch identifier such as "/key/cats/v0"
// and returns it in its single "/a/b" form. Leading and trailing slashes are
// optional on input; segments may not contain dots.
func CanonicalEpoch(epoch string) (string, error) {
	trimmed := strings.Trim(epoch, "/")
	if trimmed == "" {
		return "", errors.New("epoch cannot be empty")
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == "" {
			return "", fmt.Errorf("empty segment in epoch %q", epoch)
		}
		for _, char := range segment {
			if !isNameChar(char) {
				return "", fmt.Errorf("invalid character %q in epoch %q", char, epoch)
			}
		}
	}
	return "/" + trimmed, nil
}

// KeyfileName maps (user, epoch) to the flat name used by every backend.
// Slashes become dots and the "/key" prefix is dropped, so alice's keys for
// "/key/cats/v0" live under "alice.cats.v0". Epochs outside "/key" keep a
// leading dot ("/dogs/v0" is "alice..dogs.v0") so no two epochs share a name.
func KeyfileName(user, epoch string) (string, error) {
	if err := CheckUser(user); err != nil {
		return "", err
	}
	canonical, err := CanonicalEpoch(epoch)
	if err != nil {
		return "", err
	}
	name := strings.TrimPrefix(canonical, "/key/")
	if name == canonical {
		name = "." + canonical[1:]
	}
	return user + "." + strings.ReplaceAll(name, "/", "."), nil
}

func isNameChar(char rune) bool {
	return (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') || char == '-' || char == '_'
}
