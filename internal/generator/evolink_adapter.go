package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/maauso/genbridge-api/internal/evolink"
)

// Default Evolink models.
const (
	DefaultImageModel = "nano-banana-2-lite"
	DefaultVideoModel = "veo3.1-fast"
)

// EvolinkAdapter adapts the Evolink client to the Generator interface.
type EvolinkAdapter struct {
	client     evolink.Client
	imageModel string
	videoModel string
}

// EvolinkOption configures an EvolinkAdapter.
type EvolinkOption func(*EvolinkAdapter)

// WithImageModel overrides the default image model.
func WithImageModel(model string) EvolinkOption {
	return func(a *EvolinkAdapter) {
		if model != "" {
			a.imageModel = model
		}
	}
}

// WithVideoModel overrides the default video model.
func WithVideoModel(model string) EvolinkOption {
	return func(a *EvolinkAdapter) {
		if model != "" {
			a.videoModel = model
		}
	}
}

// NewEvolinkAdapter creates a new Evolink generator adapter.
func NewEvolinkAdapter(client evolink.Client, opts ...EvolinkOption) *EvolinkAdapter {
	a := &EvolinkAdapter{
		client:     client,
		imageModel: DefaultImageModel,
		videoModel: DefaultVideoModel,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Create submits an image or video job to Evolink.
func (a *EvolinkAdapter) Create(ctx context.Context, req Request) (string, error) {
	var (
		task evolink.Task
		err  error
	)

	switch req.Kind {
	case KindImage:
		task, err = a.client.CreateImage(ctx, a.imageRequest(req))
	case KindVideo:
		task, err = a.client.CreateVideo(ctx, a.videoRequest(req))
	default:
		return "", fmt.Errorf("evolink adapter: unsupported kind %q", req.Kind)
	}
	if err != nil {
		return "", fmt.Errorf("evolink adapter create %s: %w", req.Kind, err)
	}

	return task.ID, nil
}

func (a *EvolinkAdapter) imageRequest(req Request) evolink.ImageRequest {
	model := req.Model
	if model == "" {
		model = a.imageModel
	}
	return evolink.ImageRequest{
		Model:     model,
		Prompt:    req.Prompt,
		ImageURLs: req.ImageURLs,
		Size:      req.Size,
		Quality:   req.Quality,
	}
}

func (a *EvolinkAdapter) videoRequest(req Request) evolink.VideoRequest {
	model := req.Model
	if model == "" {
		model = a.videoModel
	}
	out := evolink.VideoRequest{
		Model:          model,
		Prompt:         req.Prompt,
		Quality:        req.Quality,
		GenerationType: evolink.GenerationTypeText,
	}
	if req.AspectRatio != "" && !strings.EqualFold(req.AspectRatio, "auto") {
		out.AspectRatio = req.AspectRatio
	}
	if len(req.ImageURLs) > 0 {
		out.ImageURLs = req.ImageURLs
		out.GenerationType = evolink.GenerationTypeFirstLast
	}
	return out
}

// Status checks the status of an Evolink task.
func (a *EvolinkAdapter) Status(ctx context.Context, jobID string) (Snapshot, error) {
	task, err := a.client.GetTask(ctx, jobID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("evolink adapter status: %w", err)
	}

	// Map Evolink status to common status
	var status Status
	switch task.Status {
	case evolink.StatusPending, "queued", "submitted":
		status = StatusPending
	case evolink.StatusProcessing, "running", "in_progress":
		status = StatusProcessing
	case evolink.StatusCompleted, "succeeded", "success":
		status = StatusCompleted
	case evolink.StatusFailed, "error", "cancelled", "canceled":
		status = StatusFailed
	default:
		status = Status(task.Status)
	}

	return Snapshot{
		ID:       task.ID,
		Status:   status,
		Progress: task.Progress,
		Results:  task.Results,
		Error:    task.Error,
	}, nil
}

// Compile-time check that EvolinkAdapter implements Generator.
var _ Generator = (*EvolinkAdapter)(nil)
