package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// DefaultKey is the storage key holding the bearer token.
const DefaultKey = "token"

// File stores tokens in a JSON object on disk, one entry per key.
type File struct {
	mu   sync.Mutex
	path string
	key  string
}

// DefaultFilePath returns the per user credentials file location.
func DefaultFilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "portal", "credentials.json"), nil
}

// NewFile creates a store backed by path. An empty key uses DefaultKey.
func NewFile(path, key string) *File {
	if key == "" {
		key = DefaultKey
	}
	return &File{path: path, key: key}
}

// Path returns the backing file.
func (f *File) Path() string {
	return f.path
}

// Get implements authclient.CredentialStore.
func (f *File) Get(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if err != nil {
		return "", err
	}
	return entries[f.key], nil
}

// Set implements authclient.CredentialStore.
func (f *File) Set(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if err != nil {
		return err
	}
	entries[f.key] = token
	return f.write(entries)
}

// Clear implements authclient.CredentialStore.
func (f *File) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := entries[f.key]; !ok {
		return nil
	}
	delete(entries, f.key)
	return f.write(entries)
}

func (f *File) read() (map[string]string, error) {
	entries := map[string]string{}

	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	if len(raw) == 0 {
		return entries, nil
	}

	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode credentials file: %w", err)
	}
	return entries, nil
}

func (f *File) write(entries map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}

	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".credentials-*")
	if err != nil {
		return fmt.Errorf("create temp credentials file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write credentials file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod credentials file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close credentials file: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace credentials file: %w", err)
	}
	return nil
}
