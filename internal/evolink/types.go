// Package evolink provides an HTTP client for the Evolink image and video generation API.
package evolink

import (
	"encoding/json"
	"fmt"
)

// Status represents the status of an Evolink task.
type Status string

// Evolink task statuses aligned with the Evolink API.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Generation types accepted by the video endpoint.
const (
	GenerationTypeText      = "TEXT"
	GenerationTypeFirstLast = "FIRST&LAST"
)

// ImageRequest is the body of POST /v1/images/generations.
// Image-to-image requests are text-to-image requests with ImageURLs set.
type ImageRequest struct {
	Model     string   `json:"model"`
	Prompt    string   `json:"prompt"`
	ImageURLs []string `json:"image_urls,omitempty"`
	Size      string   `json:"size,omitempty"`
	Quality   string   `json:"quality,omitempty"`
}

// VideoRequest is the body of POST /v1/videos/generations.
type VideoRequest struct {
	Model          string   `json:"model"`
	Prompt         string   `json:"prompt"`
	AspectRatio    string   `json:"aspect_ratio,omitempty"`
	Quality        string   `json:"quality,omitempty"`
	ImageURLs      []string `json:"image_urls,omitempty"`
	GenerationType string   `json:"generation_type,omitempty"`
}

// taskResponse is returned by both the generation endpoints and GET /v1/tasks/{id}.
type taskResponse struct {
	ID       string          `json:"id"`
	Status   string          `json:"status"`
	Progress float64         `json:"progress"`
	Results  []string        `json:"results"`
	Error    json.RawMessage `json:"error,omitempty"`
}

// errorEnvelope is the error body returned on non-2xx responses.
type errorEnvelope struct {
	Error json.RawMessage `json:"error"`
}

// errorDetail is the usual shape of the "error" member.
type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// Task is the client's view of a vendor task.
type Task struct {
	ID       string
	Status   Status
	Progress int      // 0-100, advisory
	Results  []string // Result URLs, only meaningful when Status is StatusCompleted
	Error    string   // Vendor error message, if any
}

// UpstreamError is returned when the vendor answers with a non-2xx status,
// a malformed body, or cannot be reached at all (StatusCode 0).
type UpstreamError struct {
	StatusCode int
	Body       string
	Message    string
	// Detail is the vendor's "error" object, when the body carried one.
	Detail json.RawMessage
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("evolink: upstream unreachable: %s", e.Message)
	}
	return fmt.Sprintf("evolink: upstream status %d: %s", e.StatusCode, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
