package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/maauso/genbridge-api/internal/asset"
	"github.com/maauso/genbridge-api/internal/auth"
	"github.com/maauso/genbridge-api/internal/catalog"
	"github.com/maauso/genbridge-api/internal/credit"
	"github.com/maauso/genbridge-api/internal/evolink"
	"github.com/maauso/genbridge-api/internal/generator"
	"github.com/maauso/genbridge-api/internal/job"
)

// DefaultMaxUploadBytes caps multipart bodies when no limit is configured.
const DefaultMaxUploadBytes = 20 << 20

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service        *job.Service
	logger         *slog.Logger
	maxUploadBytes int64
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithMaxUploadBytes caps the size of multipart request bodies.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.Service, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:        service,
		logger:         logger,
		maxUploadBytes: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// VideoModels handles GET /api/ai/video-models.
func (h *Handlers) VideoModels(w http.ResponseWriter, r *http.Request) {
	writeOK(w, catalog.VideoModels())
}

// UploadImage handles POST /api/upload/image.
func (h *Handlers) UploadImage(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	form, err := h.readImageForm(w, r)
	if err != nil {
		h.fail(w, r, id, err)
		return
	}

	stored, err := h.service.UploadImage(r.Context(), job.UploadInput{UserID: id.ID, Image: form.Image})
	if err != nil {
		h.fail(w, r, id, err)
		return
	}

	writeOK(w, UploadResponse{URL: stored.URL, Key: stored.Key})
}

// ImageToImage handles POST /api/ai/image-to-image and blocks until the
// edited image is stored.
func (h *Handlers) ImageToImage(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	form, err := h.readImageForm(w, r)
	if err != nil {
		h.fail(w, r, id, err)
		return
	}

	res, err := h.service.EditImage(detach(r), job.ImageEditInput{
		UserID:      id.ID,
		Prompt:      form.Prompt,
		AspectRatio: form.AspectRatio,
		Image:       form.Image,
	})
	if err != nil {
		h.fail(w, r, id, err)
		return
	}

	writeOK(w, ImagesResponse{Images: res.URLs, TaskID: res.TaskID})
}

// SubmitImageToImage handles POST /api/ai/evolink/image-to-image and
// returns the task ID without waiting.
func (h *Handlers) SubmitImageToImage(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	form, err := h.readImageForm(w, r)
	if err != nil {
		h.fail(w, r, id, err)
		return
	}

	j, err := h.service.SubmitImageEdit(detach(r), job.ImageEditInput{
		UserID:      id.ID,
		Prompt:      form.Prompt,
		AspectRatio: form.AspectRatio,
		Image:       form.Image,
	})
	if err != nil {
		h.fail(w, r, id, err)
		return
	}

	writeOK(w, TaskCreatedResponse{TaskID: j.ID, Status: string(j.Status)})
}

// TextToImage handles POST /api/ai/text-to-image.
func (h *Handlers) TextToImage(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	var req TextToImageRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, id, err)
		return
	}

	res, err := h.service.TextToImage(detach(r), job.TextToImageInput{
		UserID:  id.ID,
		Prompt:  req.Prompt,
		Size:    req.Size,
		Quality: req.Quality,
	})
	if err != nil {
		h.fail(w, r, id, err)
		return
	}

	writeOK(w, ImagesResponse{Images: res.URLs, TaskID: res.TaskID})
}

// GenerateVideo handles POST /api/ai/video-generate and blocks until the
// video is available.
func (h *Handlers) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	var req VideoGenerateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, id, err)
		return
	}

	res, err := h.service.GenerateVideo(detach(r), videoInput(id, req))
	if err != nil {
		h.fail(w, r, id, err)
		return
	}

	writeOK(w, VideoResponse{
		Status:   "success",
		VideoURL: res.URLs[0],
		Progress: res.Progress,
		TaskID:   res.TaskID,
	})
}

// CreateVideo handles POST /api/ai/video-generate/create and returns the
// task ID without waiting.
func (h *Handlers) CreateVideo(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	var req VideoGenerateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, id, err)
		return
	}

	j, err := h.service.SubmitVideo(detach(r), videoInput(id, req))
	if err != nil {
		h.fail(w, r, id, err)
		return
	}

	writeOK(w, TaskCreatedResponse{TaskID: j.ID, Status: string(j.Status)})
}

// TaskStatus handles GET /api/ai/video-generate/task-status?taskId=.
// It never debits credits.
func (h *Handlers) TaskStatus(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	taskID := r.URL.Query().Get("taskId")

	j, err := h.service.TaskStatus(detach(r), id.ID, taskID)
	if err != nil {
		h.fail(w, r, id, err)
		return
	}

	writeOK(w, taskStatusResponse(j))
}

func taskStatusResponse(j *job.Job) TaskStatusResponse {
	switch j.Status {
	case job.StatusCompleted:
		resp := TaskStatusResponse{Status: "success", Progress: 100}
		if j.Kind == generator.KindImage {
			resp.Images = j.Results
		} else if len(j.Results) > 0 {
			resp.VideoURL = j.Results[0]
		}
		return resp
	case job.StatusFailed:
		msg := "Video generation failed"
		if j.Kind == generator.KindImage {
			msg = "Image generation failed"
		}
		return TaskStatusResponse{Status: "failed", Progress: 0, Error: msg}
	default:
		return TaskStatusResponse{Status: string(j.Status), Progress: j.Progress}
	}
}

func videoInput(id auth.Identity, req VideoGenerateRequest) job.VideoInput {
	return job.VideoInput{
		UserID:      id.ID,
		Prompt:      req.Prompt,
		Resolution:  req.Resolution,
		AspectRatio: req.AspectRatio,
		ImageURL:    req.ImageURL,
	}
}

// imageForm is the parsed multipart body of the image routes.
type imageForm struct {
	Prompt      string
	AspectRatio string
	Image       *job.Upload // nil when the "image" part is absent
}

// readImageForm parses the multipart body. A missing image or prompt is
// left for the service to report, after the credit check.
func (h *Handlers) readImageForm(w http.ResponseWriter, r *http.Request) (imageForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return imageForm{}, fmt.Errorf("%w: body exceeds %d bytes", job.ErrInvalidInput, tooLarge.Limit)
		}
		return imageForm{}, fmt.Errorf("%w: malformed multipart form", job.ErrInvalidInput)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	form := imageForm{
		Prompt:      r.FormValue("prompt"),
		AspectRatio: r.FormValue("aspectRatio"),
	}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return form, nil
	}
	if err != nil {
		return imageForm{}, fmt.Errorf("%w: unreadable image", job.ErrInvalidInput)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return imageForm{}, fmt.Errorf("%w: unreadable image", job.ErrInvalidInput)
	}

	form.Image = &job.Upload{
		Data:        data,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	}
	return form, nil
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body", job.ErrInvalidInput)
	}
	return nil
}

// detach keeps request values but ignores client disconnects, so a
// generation that has started runs to completion.
func detach(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func identity(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

// fail logs err with request context and writes its envelope.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, id auth.Identity, err error) {
	status, env := errorEnvelope(err)

	attrs := []any{
		slog.String("route", r.URL.Path),
		slog.String("user_id", id.ID),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		attrs = append(attrs, slog.String("request_id", rid))
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", attrs...)
	} else {
		h.logger.Warn("request rejected", attrs...)
	}

	writeJSON(w, status, env)
}

// errorEnvelope maps pipeline errors to an HTTP status and envelope.
func errorEnvelope(err error) (int, Envelope) {
	var upErr *evolink.UpstreamError
	var storageErr *asset.StorageError

	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return newErrorEnvelope(http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, credit.ErrInsufficientCredits):
		return newErrorEnvelope(http.StatusPaymentRequired, "Insufficient credits")
	case errors.Is(err, job.ErrInvalidInput):
		return newErrorEnvelope(http.StatusBadRequest, strings.TrimPrefix(err.Error(), job.ErrInvalidInput.Error()+": "))
	case errors.Is(err, job.ErrJobNotFound):
		return newErrorEnvelope(http.StatusNotFound, "Task not found")
	case errors.As(err, &upErr):
		status := upErr.StatusCode
		if status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		msg := upErr.Message
		if msg == "" {
			msg = "Upstream request failed"
		}
		status, env := newErrorEnvelope(status, msg)
		if len(upErr.Detail) > 0 {
			env.Error = upErr.Detail
		}
		return status, env
	case errors.Is(err, job.ErrGenerationFailed):
		return newErrorEnvelope(http.StatusInternalServerError, "Generation failed")
	case errors.Is(err, job.ErrTimeout):
		return newErrorEnvelope(http.StatusInternalServerError, "Generation timed out")
	case errors.As(err, &storageErr):
		return newErrorEnvelope(http.StatusInternalServerError, "Storage error")
	default:
		return newErrorEnvelope(http.StatusInternalServerError, "Internal server error")
	}
}

func newErrorEnvelope(status int, message string) (int, Envelope) {
	return status, Envelope{Code: status, Message: message}
}

// writeOK writes a success envelope.
func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Envelope{Code: CodeSuccess, Message: "success", Data: data})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error envelope with status as its code.
func writeError(w http.ResponseWriter, status int, message string) {
	_, env := newErrorEnvelope(status, message)
	writeJSON(w, status, env)
}
