// Package physical provides the object storage interface for ledger archives.
package physical

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates the requested object was not found.
	ErrNotFound = errors.New("object not found")

	// ErrClosed indicates the backend has been closed.
	ErrClosed = errors.New("backend closed")
)

// Stats contains storage statistics.
type Stats struct {
	Objects     int64
	SizeBytes   int64
	BackendType string
}

// Backend stores archive objects under slash-separated keys.
// List returns keys in ascending order. All implementations must be thread-safe.
type Backend interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// ValidateKey rejects keys that are empty, absolute, or escape the archive root.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("invalid object key: empty")
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("invalid object key %q: must be relative", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid object key %q", key)
		}
		if strings.HasPrefix(part, ".") {
			return fmt.Errorf("invalid object key %q: hidden segment", key)
		}
	}
	return nil
}
