// Package storage persists processed memorial images on the local filesystem or in an
// S3 compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DriverLocal = "local"
	DriverS3    = "s3"
)

// ErrInvalidKey is returned for keys that are empty, absolute or escape the root.
var ErrInvalidKey = errors.New("storage: invalid object key")

// Store writes and removes objects addressed by slash separated keys.
type Store interface {
	// Put stores body under key and returns the public URL of the object.
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
	// Delete removes keys. Missing objects are not an error.
	Delete(ctx context.Context, keys ...string) error
}

// Config selects and configures a backend.
type Config struct {
	Driver string

	LocalDir string
	// BaseURL prefixes object keys to form public URLs.
	BaseURL string

	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// New returns the backend named by cfg.Driver.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverLocal:
		return NewLocalStore(cfg.LocalDir, cfg.BaseURL)
	case DriverS3:
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q", cfg.Driver)
	}
}

// ObjectKey builds "<prefix>/<yyyy>/<mm>/<dd>/<uuid><suffix>".
func ObjectKey(prefix string, at time.Time, suffix string) string {
	at = at.UTC()
	return path.Join(
		strings.Trim(prefix, "/"),
		fmt.Sprintf("%04d/%02d/%02d", at.Year(), at.Month(), at.Day()),
		uuid.NewString()+suffix,
	)
}

func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
