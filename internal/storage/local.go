package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const defaultLocalBaseURL = "/uploads"

// LocalStore writes objects below a directory served by the HTTP router.
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore creates dir when missing.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("storage: local directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", dir, err)
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultLocalBaseURL
	}
	return &LocalStore{dir: dir, baseURL: baseURL}, nil
}

// Dir returns the root directory.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Put writes through a temporary file so readers never observe partial objects.
func (s *LocalStore) Put(_ context.Context, key string, body []byte, _ string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}

	target := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("storage: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("storage: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("storage: close: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("storage: chmod: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("storage: rename: %w", err)
	}

	return joinURL(s.baseURL, key), nil
}

// Delete removes files for keys.
func (s *LocalStore) Delete(_ context.Context, keys ...string) error {
	var errs []error
	for _, key := range keys {
		cleaned, err := cleanKey(key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		err = os.Remove(filepath.Join(s.dir, filepath.FromSlash(cleaned)))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
