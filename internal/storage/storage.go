// Package storage keeps uploaded photo objects in a local directory or an
// S3-compatible bucket. When no driver is configured the Noop store is used
// and every write returns ErrNotConfigured.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"baulot/internal/config"
)

// ErrNotConfigured is returned when photo storage is not configured.
var ErrNotConfigured = errors.New("photo storage not configured")

// ErrInvalidKey is returned for keys that would escape the store root.
var ErrInvalidKey = errors.New("invalid object key")

// ErrObjectNotFound is returned by Open for a missing object.
var ErrObjectNotFound = errors.New("object not found")

// ErrNoPublicURL is returned by stores whose objects are only reachable
// through the API.
var ErrNoPublicURL = errors.New("object has no public url")

// Store uploads, addresses, reads and removes photo objects.
type Store interface {
	Upload(ctx context.Context, key, contentType string, data []byte) error
	// PublicURL returns the URL under which key can be fetched directly.
	PublicURL(ctx context.Context, key string) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// New returns the store selected by cfg.Driver.
func New(cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "":
		return Noop{}, nil
	case config.StorageLocal:
		return NewLocal(cfg.LocalDir)
	case config.StorageS3:
		return NewS3(cfg)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// Noop is used when storage is disabled.
type Noop struct{}

func (Noop) Upload(context.Context, string, string, []byte) error { return ErrNotConfigured }

func (Noop) PublicURL(context.Context, string) (string, error) { return "", ErrNotConfigured }

func (Noop) Open(context.Context, string) (io.ReadCloser, error) { return nil, ErrNotConfigured }

func (Noop) Remove(context.Context, string) error { return nil }

// cleanKey normalizes key to a relative slash path inside the store.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	clean := path.Clean(key)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrInvalidKey
	}
	return clean, nil
}
