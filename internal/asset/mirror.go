// Package asset mirrors user uploads and vendor results into durable object storage.
package asset

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"github.com/maauso/genbridge-api/internal/asset/key"
	"github.com/maauso/genbridge-api/internal/generator"
	"github.com/maauso/genbridge-api/internal/storage"
)

// Purpose is the key prefix describing why an asset was stored.
type Purpose string

// Known purposes.
const (
	PurposeImageEditInput Purpose = "uploads/i2i"
	PurposeVideoInput     Purpose = "uploads/i2v"
	PurposeImageResult    Purpose = "ai-generated/images"
	PurposeVideoResult    Purpose = "ai-generated/videos"
)

func (p Purpose) suffixLen() int {
	if p == PurposeVideoResult {
		return 13
	}
	return 8
}

// StoredAsset is a durable object written by the mirror.
type StoredAsset struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
}

// StorageError reports a failed download or upload.
type StorageError struct {
	Op  string // "download" or "upload"
	Key string // object key or source URL
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("asset: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Mirror copies bytes into an ObjectStore under generated keys.
type Mirror struct {
	store       storage.ObjectStore
	httpClient  *http.Client
	logger      *slog.Logger
	now         func() time.Time
	maxDownload int64
	concurrency int
}

// MirrorOption configures a Mirror.
type MirrorOption func(*Mirror)

// WithHTTPClient sets the client used to download vendor results.
func WithHTTPClient(c *http.Client) MirrorOption {
	return func(m *Mirror) {
		m.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) MirrorOption {
	return func(m *Mirror) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the time source used for keys.
func WithClock(now func() time.Time) MirrorOption {
	return func(m *Mirror) {
		m.now = now
	}
}

// WithMaxDownloadBytes caps the size of a mirrored result.
func WithMaxDownloadBytes(n int64) MirrorOption {
	return func(m *Mirror) {
		if n > 0 {
			m.maxDownload = n
		}
	}
}

// WithConcurrency limits parallel downloads in MirrorAll.
func WithConcurrency(n int) MirrorOption {
	return func(m *Mirror) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// NewMirror creates a Mirror writing to store.
func NewMirror(store storage.ObjectStore, opts ...MirrorOption) *Mirror {
	m := &Mirror{
		store:       store,
		httpClient:  &http.Client{Timeout: 5 * time.Minute},
		logger:      slog.Default(),
		now:         time.Now,
		maxDownload: 512 << 20,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// UploadBytes stores user-supplied bytes. The extension comes from filename
// (png when absent). contentType is used when set; otherwise it is sniffed
// from the data, falling back to image/<ext>.
func (m *Mirror) UploadBytes(ctx context.Context, data []byte, purpose Purpose, filename, contentType string) (StoredAsset, error) {
	ext := extFromPath(filename)
	if ext == "" {
		ext = "png"
	}

	if contentType == "" || contentType == "application/octet-stream" {
		contentType = sniff(data, "image/"+ext)
	}

	return m.put(ctx, data, purpose, ext, contentType)
}

// MirrorFromURL downloads sourceURL and stores it. The extension comes from
// the URL path, defaulting to mp4 for video and png for image.
func (m *Mirror) MirrorFromURL(ctx context.Context, sourceURL string, purpose Purpose, kind generator.Kind) (StoredAsset, error) {
	data, err := m.download(ctx, sourceURL)
	if err != nil {
		return StoredAsset{}, &StorageError{Op: "download", Key: sourceURL, Err: err}
	}

	ext := extFromURL(sourceURL)
	var contentType string
	if kind == generator.KindVideo {
		if ext == "" {
			ext = "mp4"
		}
		contentType = "video/" + ext
	} else {
		if ext == "" {
			ext = "png"
		}
		contentType = sniff(data, "image/png")
	}

	return m.put(ctx, data, purpose, ext, contentType)
}

// MirrorAll mirrors every URL concurrently and returns assets in input order.
// The first failure cancels the remaining downloads.
func (m *Mirror) MirrorAll(ctx context.Context, urls []string, purpose Purpose, kind generator.Kind) ([]StoredAsset, error) {
	assets := make([]StoredAsset, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, u := range urls {
		g.Go(func() error {
			a, err := m.MirrorFromURL(gctx, u, purpose, kind)
			if err != nil {
				return err
			}
			assets[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return assets, nil
}

func (m *Mirror) put(ctx context.Context, data []byte, purpose Purpose, ext, contentType string) (StoredAsset, error) {
	k := key.Generate(string(purpose), ext, purpose.suffixLen(), m.now())

	u, err := m.store.Put(ctx, k, bytes.NewReader(data), storage.PutOptions{
		ContentType:        contentType,
		ContentDisposition: storage.DispositionInline,
		Size:               int64(len(data)),
	})
	if err != nil {
		return StoredAsset{}, &StorageError{Op: "upload", Key: k, Err: err}
	}

	m.logger.Debug("asset stored",
		slog.String("key", k),
		slog.String("content_type", contentType),
		slog.Int("bytes", len(data)),
	)

	return StoredAsset{Key: k, URL: u, ContentType: contentType}, nil
}

func (m *Mirror) download(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, m.maxDownload+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > m.maxDownload {
		return nil, fmt.Errorf("body exceeds %d bytes", m.maxDownload)
	}

	return data, nil
}

// sniff returns the detected image/video type of data, or fallback.
func sniff(data []byte, fallback string) string {
	mt := mimetype.Detect(data)
	for ; mt != nil; mt = mt.Parent() {
		t := mt.String()
		if strings.HasPrefix(t, "image/") || strings.HasPrefix(t, "video/") {
			return t
		}
	}
	return fallback
}

func extFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return extFromPath(u.Path)
}

func extFromPath(p string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(path.Base(p)), "."))
	if ext == "" || len(ext) > 5 || strings.ContainsAny(ext, "/\\ ") {
		return ""
	}
	return ext
}
