package keyring

import (
	"errors"
	"os"

	"github.com/warpdl/vodkeep/pkg/logger"
)

// EnvClientSecret overrides any stored secret when set.
const EnvClientSecret = "VODKEEP_CLIENT_SECRET"

// Secrets resolves the client secret from, in order, the environment, the
// OS keyring and the fallback file.
type Secrets struct {
	primary  SecretStore
	fallback SecretStore
	log      logger.Logger
	getenv   func(string) string
}

// New returns Secrets using the OS keyring with a file fallback in configDir.
func New(configDir string, l logger.Logger) *Secrets {
	return NewWithStores(NewKeyring(), NewFileStore(configDir), l)
}

// NewWithStores builds Secrets from explicit stores.
func NewWithStores(primary, fallback SecretStore, l logger.Logger) *Secrets {
	return &Secrets{primary: primary, fallback: fallback, log: logger.OrNop(l), getenv: os.Getenv}
}

// Get returns the secret and where it came from ("env", "keyring" or
// "file"). ErrNotFound is returned when no source has one.
func (s *Secrets) Get() (value, source string, err error) {
	if v := s.getenv(EnvClientSecret); v != "" {
		return v, "env", nil
	}
	v, err := s.primary.Get()
	if err == nil {
		return v, "keyring", nil
	}
	if !errors.Is(err, ErrNotFound) {
		s.log.Warning("keyring unavailable, trying file fallback: %v", err)
	}
	v, err = s.fallback.Get()
	if err != nil {
		return "", "", err
	}
	return v, "file", nil
}

// Set stores the secret in the keyring, or in the fallback file when the
// keyring cannot be written. A stale fallback copy is removed after a
// successful keyring write.
func (s *Secrets) Set(value string) error {
	if err := s.primary.Set(value); err != nil {
		s.log.Warning("keyring unavailable, storing secret in file: %v", err)
		return s.fallback.Set(value)
	}
	if err := s.fallback.Delete(); err != nil && !errors.Is(err, ErrNotFound) {
		s.log.Warning("could not remove fallback secret file: %v", err)
	}
	return nil
}

// Delete removes the secret from both stores.
func (s *Secrets) Delete() error {
	errPrimary := s.primary.Delete()
	errFallback := s.fallback.Delete()
	if errors.Is(errPrimary, ErrNotFound) && errors.Is(errFallback, ErrNotFound) {
		return ErrNotFound
	}
	if errPrimary != nil && !errors.Is(errPrimary, ErrNotFound) && errFallback != nil {
		return errPrimary
	}
	return nil
}
