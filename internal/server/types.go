// Package server provides the HTTP API for genbridge.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

// CodeSuccess is the envelope code of every successful response.
const CodeSuccess = 1000

// Envelope wraps every response body. Code is CodeSuccess on success and
// mirrors the HTTP status otherwise.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   any    `json:"error,omitempty"`
}

// VideoGenerateRequest is the JSON body of the video routes.
type VideoGenerateRequest struct {
	Prompt      string `json:"prompt"`
	Resolution  string `json:"resolution,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty"`
	// ImageURL is an optional first frame, usually returned by the upload route.
	ImageURL string `json:"imageUrl,omitempty"`
}

// TextToImageRequest is the JSON body of the text-to-image route.
type TextToImageRequest struct {
	Prompt  string `json:"prompt"`
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
}

// UploadResponse is returned by the image upload route.
type UploadResponse struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// ImagesResponse carries mirrored image URLs.
type ImagesResponse struct {
	Images []string `json:"images"`
	TaskID string   `json:"taskId"`
}

// VideoResponse is returned by the synchronous video route.
type VideoResponse struct {
	Status   string `json:"status"`
	VideoURL string `json:"videoUrl"`
	Progress int    `json:"progress"`
	TaskID   string `json:"taskId"`
}

// TaskCreatedResponse is returned by the submit-and-poll routes.
type TaskCreatedResponse struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

// TaskStatusResponse is returned by the task status route. Status is
// "success" for completed jobs and the job status otherwise.
type TaskStatusResponse struct {
	Status   string   `json:"status"`
	Progress int      `json:"progress"`
	VideoURL string   `json:"videoUrl,omitempty"`
	Images   []string `json:"images,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
