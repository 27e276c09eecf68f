// Package storage holds the object-store backends file bytes live in. The
// node records only keep the key and the reference returned by Put.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

const DefaultURLExpiry = 24 * time.Hour

var ErrObjectNotFound = errors.New("object not found")

type ObjectStore interface {
	// Put stores size bytes from r under key and returns a download reference.
	Put(ctx context.Context, key string, r io.Reader, size int64) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// URL returns a fresh download reference for key.
	URL(ctx context.Context, key string) (string, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
