// Package keyring stores the application's client secret in the operating
// system keyring, falling back to a 0600 file when no keyring service is
// reachable (headless Linux, containers).
package keyring

import (
	"errors"

	"github.com/zalando/go-keyring"
)

// ErrNotFound is returned when no secret is stored.
var ErrNotFound = errors.New("secret not found")

// SecretStore stores a single secret string.
type SecretStore interface {
	Get() (string, error)
	Set(value string) error
	Delete() error
}

// Keyring is a SecretStore backed by the OS keyring.
type Keyring struct {
	Service string
	User    string
}

var (
	keyringSet    = keyring.Set
	keyringGet    = keyring.Get
	keyringDelete = keyring.Delete
)

// NewKeyring returns the keyring entry holding the client secret.
func NewKeyring() *Keyring {
	return &Keyring{
		Service: "vodkeep",
		User:    "client_secret",
	}
}

func (k *Keyring) Get() (string, error) {
	v, err := keyringGet(k.Service, k.User)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return v, err
}

func (k *Keyring) Set(value string) error {
	return keyringSet(k.Service, k.User, value)
}

func (k *Keyring) Delete() error {
	err := keyringDelete(k.Service, k.User)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
