package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewS3Storage(t *testing.T) {
	cfg := S3Config{
		Bucket:          "test-bucket",
		Endpoint:        "http://localhost:4566", // LocalStack-like endpoint
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	}

	storage, err := NewS3Storage(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, "test-bucket", storage.bucket)
	assert.Equal(t, "auto", storage.region)
}

func TestNewS3Storage_MissingBucket(t *testing.T) {
	_, err := NewS3Storage(context.Background(), S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}

func TestS3Storage_URL(t *testing.T) {
	tests := []struct {
		name string
		cfg  S3Config
		want string
	}{
		{
			name: "public url",
			cfg:  S3Config{Bucket: "b", Region: "auto", Endpoint: "https://acc.r2.cloudflarestorage.com", PublicURL: "https://cdn.example.com/"},
			want: "https://cdn.example.com/ai-generated/videos/a.mp4",
		},
		{
			name: "custom endpoint",
			cfg:  S3Config{Bucket: "b", Region: "auto", Endpoint: "http://minio:9000"},
			want: "http://minio:9000/b/ai-generated/videos/a.mp4",
		},
		{
			name: "aws",
			cfg:  S3Config{Bucket: "b", Region: "eu-west-1"},
			want: "https://b.s3.eu-west-1.amazonaws.com/ai-generated/videos/a.mp4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, err := NewS3Storage(context.Background(), tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, storage.URL("ai-generated/videos/a.mp4"))
		})
	}
}

func TestS3Storage_Put_MockServer(t *testing.T) {
	var (
		mu        sync.Mutex
		gotPath   string
		gotType   string
		gotDisp   string
		gotBody   string
		gotMethod string
	)

	// Create a mock S3 server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotDisp = r.Header.Get("Content-Disposition")
		gotBody = string(body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Endpoint:        server.URL,
		PublicURL:       "https://cdn.example.com",
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	}

	storage, err := NewS3Storage(context.Background(), cfg)
	require.NoError(t, err)

	url, err := storage.Put(context.Background(), "uploads/i2i/test.png", strings.NewReader("test content"), PutOptions{
		ContentType:        "image/png",
		ContentDisposition: DispositionInline,
		Size:               int64(len("test content")),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/uploads/i2i/test.png", url)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/test-bucket/uploads/i2i/test.png", gotPath)
	assert.Equal(t, "image/png", gotType)
	assert.Equal(t, "inline", gotDisp)
	assert.Contains(t, gotBody, "test content")
}

func TestS3Storage_Put_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`)
	}))
	defer server.Close()

	storage, err := NewS3Storage(context.Background(), S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Endpoint:        server.URL,
		AccessKeyID:     "k",
		SecretAccessKey: "s",
	})
	require.NoError(t, err)

	_, err = storage.Put(context.Background(), "a.png", strings.NewReader("x"), PutOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload to S3")
}
