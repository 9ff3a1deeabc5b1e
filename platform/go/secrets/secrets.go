// Package secrets generates the random key material embedded in tenant
// config artifacts.
package secrets

import (
	"crypto/rand"
	"fmt"
)

const keyAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789" +
	"!@#$%^&*()-_=+[]{}<>?"

// KeyLength is the length of every generated auth key.
const KeyLength = 64

// AuthKeyNames lists the keys a tenant config artifact carries, in the
// order they are rendered.
var AuthKeyNames = []string{
	"AUTH_KEY",
	"SECURE_AUTH_KEY",
	"LOGGED_IN_KEY",
	"NONCE_KEY",
	"AUTH_SALT",
	"SECURE_AUTH_SALT",
	"LOGGED_IN_SALT",
	"NONCE_SALT",
}

// NewKey returns one 64-character key drawn from crypto/rand.
func NewKey() (string, error) {
	buf := make([]byte, KeyLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = keyAlphabet[int(b)%len(keyAlphabet)]
	}
	return string(buf), nil
}

// NewKeySet generates one independent key per name in AuthKeyNames.
func NewKeySet() (map[string]string, error) {
	keys := make(map[string]string, len(AuthKeyNames))
	for _, name := range AuthKeyNames {
		key, err := NewKey()
		if err != nil {
			return nil, fmt.Errorf("generate %s: %w", name, err)
		}
		keys[name] = key
	}
	return keys, nil
}
