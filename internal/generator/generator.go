// Package generator provides the common interface for AI generation providers.
// The Evolink adapter implements it; the job package only depends on this port.
package generator

import (
	"context"
	"net/url"
	"path"
	"strings"
)

// Kind is the type of asset a job produces.
type Kind string

// Supported generation kinds.
const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// IsValid returns true if the kind is known.
func (k Kind) IsValid() bool {
	return k == KindImage || k == KindVideo
}

// imageExts are result extensions that identify an image job.
var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".gif": true,
}

// KindFromResults guesses the kind of a job from its first result URL.
// Anything not recognised as an image, including no results, is a video.
func KindFromResults(results []string) Kind {
	if len(results) == 0 {
		return KindVideo
	}
	u, err := url.Parse(results[0])
	if err != nil {
		return KindVideo
	}
	if imageExts[strings.ToLower(path.Ext(u.Path))] {
		return KindImage
	}
	return KindVideo
}

// Status represents the status of a generation job.
type Status string

// Common job statuses across providers.
const (
	StatusPending    Status = "pending"    // Job accepted but not yet running
	StatusProcessing Status = "processing" // Job is currently running
	StatusCompleted  Status = "completed"  // Job finished; results may still be attaching
	StatusFailed     Status = "failed"     // Job failed with error
)

// IsTerminal returns true if the status represents a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Request contains the parameters for creating a job.
type Request struct {
	Kind        Kind
	Model       string   // Provider model; adapters apply a default when empty
	Prompt      string   // Text prompt
	ImageURLs   []string // Reference images, already mirrored to public storage
	Size        string   // Image size or aspect ratio hint (image jobs)
	Quality     string   // Image quality ("2K") or video resolution ("720p")
	AspectRatio string   // Video aspect ratio; "auto" lets the provider decide
}

// Snapshot is a point-in-time view of a job as reported by the provider.
type Snapshot struct {
	ID       string
	Status   Status
	Progress int      // 0-100, advisory
	Results  []string // Result URLs in provider order
	Error    string   // Provider error text, if any
}

// Generator defines the interface for generation providers.
type Generator interface {
	// Create submits a job and returns its provider-issued ID.
	// Implementations attempt creation exactly once.
	Create(ctx context.Context, req Request) (jobID string, err error)

	// Status fetches the current state of a job.
	Status(ctx context.Context, jobID string) (Snapshot, error)
}
