package keyring

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	secretFileName = "client_secret"
	secretFileMode = 0600
)

// FileStore is a SecretStore writing the secret to a file in the config
// directory.
type FileStore struct {
	configDir string
	name      string
}

var (
	fileReadFile   = os.ReadFile
	fileRemove     = os.Remove
	fileRename     = os.Rename
	fileMkdirAll   = os.MkdirAll
	fileCreateTemp = os.CreateTemp
)

// NewFileStore creates the client secret FileStore in configDir.
func NewFileStore(configDir string) *FileStore {
	return NewNamedFileStore(configDir, secretFileName)
}

// NewNamedFileStore creates a FileStore for the file name in configDir.
func NewNamedFileStore(configDir, name string) *FileStore {
	return &FileStore{configDir: configDir, name: name}
}

// Path returns the file holding the secret.
func (f *FileStore) Path() string {
	return filepath.Join(f.configDir, f.name)
}

// Set writes the secret atomically through a temp file and rename.
func (f *FileStore) Set(value string) error {
	if err := fileMkdirAll(f.configDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := fileCreateTemp(f.configDir, "."+f.name+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		fileRemove(tmpPath)
		return fmt.Errorf("write secret: %w", err)
	}
	if err := tmp.Close(); err != nil {
		fileRemove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, secretFileMode); err != nil {
		fileRemove(tmpPath)
		return fmt.Errorf("set permissions: %w", err)
	}
	if err := fileRename(tmpPath, f.Path()); err != nil {
		fileRemove(tmpPath)
		return fmt.Errorf("rename secret file: %w", err)
	}
	return nil
}

func (f *FileStore) Get() (string, error) {
	data, err := fileReadFile(f.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (f *FileStore) Delete() error {
	err := fileRemove(f.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}
