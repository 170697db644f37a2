// Package storage provides durable object storage for generated and uploaded assets.
// It defines the ObjectStore interface (port) for hexagonal architecture and
// implementations for local disk and S3-compatible storage.
package storage

import (
	"context"
	"errors"
	"io"
)

// DispositionInline asks browsers to render the object instead of downloading it.
const DispositionInline = "inline"

// ErrInvalidKey is returned when an object key is empty or escapes the store root.
var ErrInvalidKey = errors.New("storage: invalid object key")

// PutOptions describes the object metadata stored alongside the bytes.
type PutOptions struct {
	ContentType        string
	ContentDisposition string
	// Size is the body length in bytes; zero means unknown.
	Size int64
}

// ObjectStore defines the interface for durable object storage.
// Implementations must be safe for concurrent use.
type ObjectStore interface {
	// Put writes the body under key and returns the object's public URL.
	// Writing an existing key overwrites it.
	Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (url string, err error)
}
