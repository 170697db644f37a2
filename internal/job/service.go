package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/genbridge-api/internal/asset"
	"github.com/maauso/genbridge-api/internal/credit"
	"github.com/maauso/genbridge-api/internal/generator"
)

// ErrInvalidInput is returned when a required field is missing or malformed.
var ErrInvalidInput = errors.New("job: invalid input")

// Debit memos recorded in the credit ledger.
const (
	MemoImageToImage = "image-to-image"
	MemoTextToImage  = "text-to-image"
	MemoVideo        = "video-generate"
)

// asyncImageQuality is the quality requested by the submit-and-poll image route.
const asyncImageQuality = "2K"

// AssetMirror stores input uploads and vendor results.
type AssetMirror interface {
	UploadBytes(ctx context.Context, data []byte, purpose asset.Purpose, filename, contentType string) (asset.StoredAsset, error)
	MirrorFromURL(ctx context.Context, sourceURL string, purpose asset.Purpose, kind generator.Kind) (asset.StoredAsset, error)
	MirrorAll(ctx context.Context, urls []string, purpose asset.Purpose, kind generator.Kind) ([]asset.StoredAsset, error)
}

// CreditGate checks balances before work and debits after success.
type CreditGate interface {
	CheckBalance(ctx context.Context, userID string, cost int) (bool, error)
	Debit(ctx context.Context, userID string, cost int, memo string) error
}

// Upload is a user-supplied file.
type Upload struct {
	Data        []byte `validate:"required,min=1"`
	Filename    string
	ContentType string
}

// UploadInput is the input of UploadImage.
type UploadInput struct {
	UserID string  `validate:"required"`
	Image  *Upload `validate:"required"`
}

// ImageEditInput is the input of the image-to-image operations.
type ImageEditInput struct {
	UserID      string  `validate:"required"`
	Prompt      string  `validate:"required,max=4000"`
	AspectRatio string  `validate:"omitempty,max=16"`
	Image       *Upload `validate:"required"`
}

// TextToImageInput is the input of TextToImage.
type TextToImageInput struct {
	UserID  string `validate:"required"`
	Prompt  string `validate:"required,max=4000"`
	Size    string `validate:"omitempty,max=16"`
	Quality string `validate:"omitempty,max=16"`
}

// VideoInput is the input of the video operations.
type VideoInput struct {
	UserID      string `validate:"required"`
	Prompt      string `validate:"required,max=4000"`
	Resolution  string `validate:"omitempty,oneof=720p 1080p"`
	AspectRatio string `validate:"omitempty,oneof=16:9 9:16 auto"`
	ImageURL    string `validate:"omitempty,url"`
}

// Result is the outcome of a synchronous generation.
type Result struct {
	TaskID   string
	Kind     generator.Kind
	URLs     []string
	Progress int
	// Degraded is set when URLs are vendor URLs because mirroring failed.
	Degraded bool
	// Charged is false only when the post-success debit failed.
	Charged bool
}

// submission describes one pipeline run.
type submission struct {
	userID       string
	cost         int
	memo         string
	req          generator.Request
	input        *Upload
	inputPurpose asset.Purpose
}

// Service runs the generation pipeline shared by every route: credit
// check, validation, input mirroring, job creation, then either polling to
// completion or handing the job to a background tracker.
type Service struct {
	generator generator.Generator
	poller    *Poller
	mirror    AssetMirror
	credits   CreditGate
	repo      Repository
	validate  *validator.Validate
	logger    *slog.Logger

	trackCtx  context.Context
	stopTrack context.CancelFunc

	mu     sync.Mutex
	closed bool
	active map[string]struct{}
	wg     sync.WaitGroup
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a Service.
func NewService(gen generator.Generator, poller *Poller, mirror AssetMirror, credits CreditGate, repo Repository, opts ...ServiceOption) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		generator: gen,
		poller:    poller,
		mirror:    mirror,
		credits:   credits,
		repo:      repo,
		validate:  validator.New(),
		logger:    slog.Default(),
		trackCtx:  ctx,
		stopTrack: cancel,
		active:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UploadImage stores a reference image for a later image-to-video request.
// It is free and creates no job.
func (s *Service) UploadImage(ctx context.Context, in UploadInput) (asset.StoredAsset, error) {
	if err := s.check(in); err != nil {
		return asset.StoredAsset{}, err
	}

	stored, err := s.mirror.UploadBytes(ctx, in.Image.Data, asset.PurposeVideoInput, in.Image.Filename, in.Image.ContentType)
	if err != nil {
		s.logger.Error("image upload failed",
			slog.String("user_id", in.UserID),
			slog.String("error", err.Error()),
		)
		return asset.StoredAsset{}, err
	}
	return stored, nil
}

// EditImage runs an image-to-image generation and waits for the result.
func (s *Service) EditImage(ctx context.Context, in ImageEditInput) (*Result, error) {
	in.Prompt = strings.TrimSpace(in.Prompt)
	if err := s.admit(ctx, in.UserID, credit.CostImage, in); err != nil {
		return nil, err
	}
	return s.runSync(ctx, s.imageEdit(in, ""))
}

// SubmitImageEdit submits an image-to-image generation and returns the
// tracked job without waiting.
func (s *Service) SubmitImageEdit(ctx context.Context, in ImageEditInput) (*Job, error) {
	in.Prompt = strings.TrimSpace(in.Prompt)
	if err := s.admit(ctx, in.UserID, credit.CostImage, in); err != nil {
		return nil, err
	}
	return s.submitAsync(ctx, s.imageEdit(in, asyncImageQuality))
}

// TextToImage runs a text-to-image generation and waits for the result.
func (s *Service) TextToImage(ctx context.Context, in TextToImageInput) (*Result, error) {
	in.Prompt = strings.TrimSpace(in.Prompt)
	if err := s.admit(ctx, in.UserID, credit.CostImage, in); err != nil {
		return nil, err
	}
	return s.runSync(ctx, submission{
		userID: in.UserID,
		cost:   credit.CostImage,
		memo:   MemoTextToImage,
		req: generator.Request{
			Kind:    generator.KindImage,
			Prompt:  in.Prompt,
			Size:    in.Size,
			Quality: in.Quality,
		},
	})
}

// GenerateVideo runs a video generation and waits for the result.
func (s *Service) GenerateVideo(ctx context.Context, in VideoInput) (*Result, error) {
	in.Prompt = strings.TrimSpace(in.Prompt)
	if err := s.admit(ctx, in.UserID, credit.CostVideo, in); err != nil {
		return nil, err
	}
	return s.runSync(ctx, videoSubmission(in))
}

// SubmitVideo submits a video generation and returns the tracked job
// without waiting.
func (s *Service) SubmitVideo(ctx context.Context, in VideoInput) (*Job, error) {
	in.Prompt = strings.TrimSpace(in.Prompt)
	if err := s.admit(ctx, in.UserID, credit.CostVideo, in); err != nil {
		return nil, err
	}
	return s.submitAsync(ctx, videoSubmission(in))
}

// TaskStatus reports a job's state without debiting. Tracked jobs are read
// from the repository. Jobs this process does not track are classified from
// a fresh vendor snapshot, and terminal outcomes are stored so later calls
// return the same answer.
func (s *Service) TaskStatus(ctx context.Context, userID, taskID string) (*Job, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, fmt.Errorf("%w: missing taskId", ErrInvalidInput)
	}

	// Checked before the read: a tracker saves its terminal record before it
	// stops tracking, so an untracked job read afterwards is settled or orphaned.
	tracked := s.tracking(taskID)

	j, err := s.repo.FindByID(ctx, taskID)
	switch {
	case errors.Is(err, ErrJobNotFound):
		// The kind is unknown until the vendor reports results.
		return s.refresh(ctx, New(taskID, "", userID, 0))
	case err != nil:
		s.logger.Error("job lookup failed",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	if j.UserID != userID {
		return nil, ErrJobNotFound
	}
	if j.IsTerminal() || tracked {
		return j, nil
	}
	return s.refresh(ctx, j)
}

// Shutdown stops accepting new trackers and waits for running ones. When
// ctx expires first, running trackers are cancelled and leave their jobs
// as last saved.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.stopTrack()
		return ctx.Err()
	}
}

func (s *Service) imageEdit(in ImageEditInput, quality string) submission {
	return submission{
		userID: in.UserID,
		cost:   credit.CostImage,
		memo:   MemoImageToImage,
		req: generator.Request{
			Kind:    generator.KindImage,
			Prompt:  in.Prompt,
			Size:    in.AspectRatio,
			Quality: quality,
		},
		input:        in.Image,
		inputPurpose: asset.PurposeImageEditInput,
	}
}

func videoSubmission(in VideoInput) submission {
	req := generator.Request{
		Kind:        generator.KindVideo,
		Prompt:      in.Prompt,
		Quality:     in.Resolution,
		AspectRatio: in.AspectRatio,
	}
	if in.ImageURL != "" {
		req.ImageURLs = []string{in.ImageURL}
	}
	return submission{
		userID: in.UserID,
		cost:   credit.CostVideo,
		memo:   MemoVideo,
		req:    req,
	}
}

// admit checks the balance first, then validates input.
func (s *Service) admit(ctx context.Context, userID string, cost int, input any) error {
	ok, err := s.credits.CheckBalance(ctx, userID, cost)
	if err != nil {
		s.logger.Error("balance check failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return err
	}
	if !ok {
		s.logger.Info("insufficient credits",
			slog.String("user_id", userID),
			slog.Int("cost", cost),
		)
		return credit.ErrInsufficientCredits
	}
	return s.check(input)
}

func (s *Service) check(input any) error {
	if err := s.validate.Struct(input); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, validationMessage(err))
	}
	return nil
}

// start mirrors the input image, if any, and creates the vendor job.
func (s *Service) start(ctx context.Context, sub submission) (string, error) {
	logger := s.logger.With(
		slog.String("user_id", sub.userID),
		slog.String("kind", string(sub.req.Kind)),
	)

	if sub.input != nil {
		stored, err := s.mirror.UploadBytes(ctx, sub.input.Data, sub.inputPurpose, sub.input.Filename, sub.input.ContentType)
		if err != nil {
			logger.Error("input upload failed", slog.String("error", err.Error()))
			return "", err
		}
		sub.req.ImageURLs = append(sub.req.ImageURLs, stored.URL)
	}

	id, err := s.generator.Create(ctx, sub.req)
	if err != nil {
		logger.Error("job creation failed", slog.String("error", err.Error()))
		return "", err
	}

	logger.Info("generation job created", slog.String("task_id", id))
	return id, nil
}

func (s *Service) runSync(ctx context.Context, sub submission) (*Result, error) {
	id, err := s.start(ctx, sub)
	if err != nil {
		return nil, err
	}

	results, err := s.poller.Wait(ctx, id, nil)
	if err != nil {
		s.logger.Error("generation did not complete",
			slog.String("task_id", id),
			slog.String("user_id", sub.userID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	urls, degraded, err := s.mirrorOutputs(ctx, sub.req.Kind, id, results)
	if err != nil {
		return nil, err
	}

	return &Result{
		TaskID:   id,
		Kind:     sub.req.Kind,
		URLs:     urls,
		Progress: 100,
		Degraded: degraded,
		Charged:  s.charge(ctx, sub.userID, sub.cost, sub.memo, id),
	}, nil
}

func (s *Service) submitAsync(ctx context.Context, sub submission) (*Job, error) {
	id, err := s.start(ctx, sub)
	if err != nil {
		return nil, err
	}

	j := New(id, sub.req.Kind, sub.userID, sub.cost)
	j.Memo = sub.memo
	if err := s.repo.Save(ctx, j); err != nil {
		s.logger.Error("failed to record job",
			slog.String("task_id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("record job %s: %w", id, err)
	}

	snapshot := j.Clone()
	s.startTracking(ctx, j)
	return snapshot, nil
}

// mirrorOutputs copies results into storage. Video falls back to the
// vendor URLs when mirroring fails; image mirroring failures are returned.
func (s *Service) mirrorOutputs(ctx context.Context, kind generator.Kind, taskID string, results []string) ([]string, bool, error) {
	purpose := asset.PurposeImageResult
	if kind == generator.KindVideo {
		purpose = asset.PurposeVideoResult
	}

	assets, err := s.mirror.MirrorAll(ctx, results, purpose, kind)
	if err != nil {
		if kind == generator.KindVideo {
			s.logger.Warn("video mirroring failed, returning vendor urls",
				slog.String("task_id", taskID),
				slog.String("error", err.Error()),
			)
			return append([]string(nil), results...), true, nil
		}
		s.logger.Error("result mirroring failed",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
		return nil, false, err
	}

	urls := make([]string, len(assets))
	for i, a := range assets {
		urls[i] = a.URL
	}
	return urls, false, nil
}

// charge debits a successful job and reports whether the debit happened.
// The result has already been produced, so a failed debit is logged only.
func (s *Service) charge(ctx context.Context, userID string, cost int, memo, taskID string) bool {
	if err := s.credits.Debit(ctx, userID, cost, memo); err != nil {
		s.logger.Error("debit after successful generation failed",
			slog.String("user_id", userID),
			slog.String("task_id", taskID),
			slog.Int("cost", cost),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// startTracking runs track in the background on a context detached from
// the request but cancelled by Shutdown.
func (s *Service) startTracking(reqCtx context.Context, j *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.logger.Warn("service shutting down, job not tracked", slog.String("task_id", j.ID))
		return
	}
	s.active[j.ID] = struct{}{}
	s.wg.Add(1)

	ctx, cancel := context.WithCancel(context.WithoutCancel(reqCtx))
	stop := context.AfterFunc(s.trackCtx, cancel)

	go func() {
		defer s.wg.Done()
		defer cancel()
		defer stop()
		defer s.untrack(j.ID)
		s.track(ctx, j)
	}()
}

func (s *Service) tracking(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[id]
	return ok
}

func (s *Service) untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}

// track polls an async job to completion, mirrors its results and debits
// once on success. It is the only path that debits an async job.
func (s *Service) track(ctx context.Context, j *Job) {
	logger := s.logger.With(
		slog.String("task_id", j.ID),
		slog.String("user_id", j.UserID),
	)

	results, err := s.poller.Wait(ctx, j.ID, func(snap generator.Snapshot) {
		j.Observe(snap)
		s.save(ctx, j, logger)
	})
	if err != nil {
		if ctx.Err() != nil {
			logger.Warn("job tracking interrupted", slog.String("error", err.Error()))
			return
		}
		if !errors.Is(err, ErrGenerationFailed) && !errors.Is(err, ErrTimeout) {
			// The vendor job may still finish; the status route settles it.
			logger.Warn("job tracking stopped on status error, left for refresh",
				slog.String("error", err.Error()),
			)
			return
		}
		_ = j.Fail(err.Error())
		s.save(ctx, j, logger)
		logger.Error("tracked job failed", slog.String("error", err.Error()))
		return
	}

	urls, degraded, err := s.mirrorOutputs(ctx, j.Kind, j.ID, results)
	if err != nil {
		_ = j.Fail(err.Error())
		s.save(ctx, j, logger)
		return
	}

	charged := s.charge(ctx, j.UserID, j.Cost, j.Memo, j.ID)
	_ = j.Complete(urls, degraded, charged)
	s.save(ctx, j, logger)

	logger.Info("tracked job completed",
		slog.Int("results", len(urls)),
		slog.Bool("degraded", degraded),
		slog.Bool("charged", charged),
	)
}

// refresh classifies a job this process is not tracking from a fresh vendor
// snapshot. It never debits, and it never overwrites a record another writer
// settled in the meantime.
func (s *Service) refresh(ctx context.Context, j *Job) (*Job, error) {
	snap, err := s.generator.Status(ctx, j.ID)
	if err != nil {
		s.logger.Error("status check failed",
			slog.String("task_id", j.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	if j.Kind == "" {
		j.Kind = generator.KindFromResults(snap.Results)
	}

	outcome := Classify(snap)
	if outcome == OutcomeRunning {
		j.Observe(snap)
		return j, nil
	}

	if cur, err := s.settled(ctx, j); cur != nil || err != nil {
		return cur, err
	}

	switch outcome {
	case OutcomeFailed:
		msg := snap.Error
		if msg == "" {
			msg = ErrGenerationFailed.Error()
		}
		_ = j.Fail(msg)
	case OutcomeSucceeded:
		urls, degraded, err := s.mirrorOutputs(ctx, j.Kind, j.ID, snap.Results)
		if err != nil {
			return nil, err
		}
		if cur, err := s.settled(ctx, j); cur != nil || err != nil {
			return cur, err
		}
		_ = j.Complete(urls, degraded, false)
	}

	if err := s.repo.Save(ctx, j); err != nil {
		return nil, fmt.Errorf("record job %s: %w", j.ID, err)
	}
	return j, nil
}

// settled returns the stored record when a tracker owns the job or has
// already finished it. A nil record means refresh may write its own.
func (s *Service) settled(ctx context.Context, j *Job) (*Job, error) {
	cur, err := s.repo.FindByID(ctx, j.ID)
	switch {
	case errors.Is(err, ErrJobNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	case cur.UserID != j.UserID:
		return nil, ErrJobNotFound
	case cur.IsTerminal() || s.tracking(j.ID):
		return cur, nil
	}
	return nil, nil
}

func (s *Service) save(ctx context.Context, j *Job, logger *slog.Logger) {
	if err := s.repo.Save(ctx, j); err != nil {
		logger.Error("failed to save job", slog.String("error", err.Error()))
	}
}

// validationMessage turns the first validation error into "missing prompt"
// style text naming the top-level field.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]

	field := fe.Field()
	if parts := strings.Split(fe.Namespace(), "."); len(parts) > 1 {
		field = parts[1]
	}
	if field != "" {
		field = strings.ToLower(field[:1]) + field[1:]
	}

	switch fe.Tag() {
	case "required", "min":
		return "missing " + field
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return "invalid " + field
	}
}

// Compile-time checks that the credit gate and asset mirror fit the ports.
var (
	_ CreditGate  = (*credit.Gate)(nil)
	_ AssetMirror = (*asset.Mirror)(nil)
)
