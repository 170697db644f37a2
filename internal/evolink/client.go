package evolink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Static errors for Evolink client operations.
var (
	// ErrAPIKeyRequired is returned when no API key is configured.
	ErrAPIKeyRequired = errors.New("evolink: API key is required")
	// ErrTaskIDRequired is returned when the task ID is not provided.
	ErrTaskIDRequired = errors.New("evolink: task ID is required")
	// ErrNoTaskIDReturned is returned when the create response contains no task ID.
	ErrNoTaskIDReturned = errors.New("evolink: create failed: no task ID returned")
)

const maxErrorBody = 64 << 10

// Client defines the interface for interacting with the Evolink API.
type Client interface {
	// CreateImage submits an image generation (or image edit) task.
	CreateImage(ctx context.Context, req ImageRequest) (Task, error)

	// CreateVideo submits a video generation task.
	CreateVideo(ctx context.Context, req VideoRequest) (Task, error)

	// GetTask fetches the current state of a task.
	GetTask(ctx context.Context, taskID string) (Task, error)
}

// HTTPClient is the HTTP implementation of the Evolink Client interface.
// It never retries: each call performs exactly one request.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithBaseURL sets a custom base URL for the Evolink API.
func WithBaseURL(u string) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseURL = strings.TrimRight(u, "/")
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) ClientOption {
	return func(hc *HTTPClient) {
		if l != nil {
			hc.logger = l
		}
	}
}

// NewHTTPClient builds the shared *http.Client used for vendor calls.
// A non-nil proxy routes every request through it; otherwise the
// standard proxy environment variables apply.
func NewHTTPClient(timeout time.Duration, proxy *url.URL) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxy != nil {
		transport.Proxy = http.ProxyURL(proxy)
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// NewClient creates a new Evolink HTTP client.
func NewClient(apiKey string, opts ...ClientOption) (*HTTPClient, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	c := &HTTPClient{
		apiKey:     apiKey,
		baseURL:    "https://api.evolink.ai",
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// CreateImage submits an image generation task and returns the created task.
func (c *HTTPClient) CreateImage(ctx context.Context, req ImageRequest) (Task, error) {
	return c.create(ctx, "/v1/images/generations", req)
}

// CreateVideo submits a video generation task and returns the created task.
func (c *HTTPClient) CreateVideo(ctx context.Context, req VideoRequest) (Task, error) {
	return c.create(ctx, "/v1/videos/generations", req)
}

func (c *HTTPClient) create(ctx context.Context, path string, body any) (Task, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return Task{}, fmt.Errorf("evolink: marshal request: %w", err)
	}

	var resp taskResponse
	raw, err := c.doRequest(ctx, http.MethodPost, c.baseURL+path, bodyBytes, &resp)
	if err != nil {
		return Task{}, err
	}

	if resp.ID == "" {
		return Task{}, &UpstreamError{
			StatusCode: http.StatusBadGateway,
			Body:       truncate(raw),
			Message:    ErrNoTaskIDReturned.Error(),
			Err:        ErrNoTaskIDReturned,
		}
	}

	c.logger.Debug("evolink task created",
		slog.String("task_id", resp.ID),
		slog.String("path", path),
	)

	return toTask(resp), nil
}

// GetTask checks the status of a task and returns its current state.
func (c *HTTPClient) GetTask(ctx context.Context, taskID string) (Task, error) {
	if taskID == "" {
		return Task{}, ErrTaskIDRequired
	}

	var resp taskResponse
	if _, err := c.doRequest(ctx, http.MethodGet, c.baseURL+"/v1/tasks/"+url.PathEscape(taskID), nil, &resp); err != nil {
		return Task{}, err
	}
	if resp.ID == "" {
		resp.ID = taskID
	}

	return toTask(resp), nil
}

func toTask(resp taskResponse) Task {
	progress := int(math.Round(resp.Progress))
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	return Task{
		ID:       resp.ID,
		Status:   Status(strings.ToLower(resp.Status)),
		Progress: progress,
		Results:  resp.Results,
		Error:    errorMessage(resp.Error),
	}
}

// doRequest performs a single HTTP request and returns the raw response body.
func (c *HTTPClient) doRequest(ctx context.Context, method, endpoint string, body []byte, result any) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("evolink: create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Message: err.Error(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: "read response: " + err.Error(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError(resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return nil, &UpstreamError{
				StatusCode: http.StatusBadGateway,
				Body:       truncate(respBody),
				Message:    "malformed response",
				Err:        err,
			}
		}
	}

	return respBody, nil
}

func newStatusError(status int, body []byte) *UpstreamError {
	e := &UpstreamError{
		StatusCode: status,
		Body:       truncate(body),
		Message:    http.StatusText(status),
	}

	var env errorEnvelope
	if json.Unmarshal(body, &env) == nil && len(env.Error) > 0 {
		e.Detail = env.Error
		if msg := errorMessage(env.Error); msg != "" {
			e.Message = msg
		}
	}
	if e.Message == "" {
		e.Message = "request failed"
	}

	return e
}

// errorMessage extracts a message from an "error" member that is either
// an object with a message field or a plain string.
func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var detail errorDetail
	if err := json.Unmarshal(raw, &detail); err == nil {
		return detail.Message
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(b)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
