package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalStorage implements ObjectStore on local disk.
// Objects are served back over HTTP by Handler under the /files/ route.
type LocalStorage struct {
	dir     string
	baseURL string
}

// NewLocalStorage creates a new LocalStorage instance.
// The dir parameter specifies where objects are stored; if empty,
// a genbridge directory under os.TempDir() is used.
// publicBaseURL is the externally visible server address used to build object URLs.
// The directory is created if it doesn't exist.
func NewLocalStorage(dir, publicBaseURL string) (*LocalStorage, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "genbridge")
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	return &LocalStorage{
		dir:     dir,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

// Dir returns the storage root directory.
func (s *LocalStorage) Dir() string {
	return s.dir
}

// Put writes the body to dir/key and returns its public URL.
func (s *LocalStorage) Put(ctx context.Context, key string, body io.Reader, _ PutOptions) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if key == "" || !filepath.IsLocal(filepath.FromSlash(key)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	dst := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return "", fmt.Errorf("create object directory: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(dst), ".upload_*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	tmpName := f.Name()
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write object: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close object: %w", err)
	}

	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("commit object: %w", err)
	}

	return s.URL(key), nil
}

// URL returns the public URL for key.
func (s *LocalStorage) URL(key string) string {
	return s.baseURL + "/files/" + (&url.URL{Path: path.Clean(key)}).EscapedPath()
}

// Handler serves stored objects. Mount it with the "/files/" prefix stripped.
func (s *LocalStorage) Handler() http.Handler {
	return http.FileServer(http.Dir(s.dir))
}

// Compile-time check that LocalStorage implements ObjectStore.
var _ ObjectStore = (*LocalStorage)(nil)
