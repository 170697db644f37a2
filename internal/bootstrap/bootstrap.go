// Package bootstrap provides dependency initialization for the GenBridge API.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/maauso/genbridge-api/internal/asset"
	"github.com/maauso/genbridge-api/internal/auth"
	"github.com/maauso/genbridge-api/internal/config"
	"github.com/maauso/genbridge-api/internal/credit"
	"github.com/maauso/genbridge-api/internal/evolink"
	"github.com/maauso/genbridge-api/internal/generator"
	"github.com/maauso/genbridge-api/internal/job"
	"github.com/maauso/genbridge-api/internal/storage"
)

// downloadTimeout bounds a single result download by the asset mirror.
const downloadTimeout = 5 * time.Minute

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Service *job.Service
	Auth    auth.Authenticator
	// Files serves locally stored objects; nil when S3 is configured.
	Files http.Handler

	closers []func(context.Context) error
}

// NewDependencies creates and initializes all dependencies for the application.
// On error, anything already opened is released.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *Dependencies, err error) {
	deps := &Dependencies{}
	defer func() {
		if err != nil {
			_ = deps.Close(context.WithoutCancel(ctx))
		}
	}()

	authn, err := auth.NewJWTAuthenticator(cfg.AuthJWTSecret, auth.WithCookieName(cfg.AuthCookieName))
	if err != nil {
		return nil, fmt.Errorf("create authenticator: %w", err)
	}
	deps.Auth = authn

	store, files, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	deps.Files = files

	proxy, err := cfg.ProxyURL()
	if err != nil {
		return nil, fmt.Errorf("outbound proxy: %w", err)
	}
	client, err := evolink.NewClient(cfg.EvolinkAPIKey,
		evolink.WithBaseURL(cfg.EvolinkBaseURL),
		evolink.WithHTTPClient(evolink.NewHTTPClient(cfg.EvolinkTimeout(), proxy)),
		evolink.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create Evolink client: %w", err)
	}
	gen := generator.NewEvolinkAdapter(client)

	ledger, err := deps.initLedger(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	repo, err := deps.initRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	poller := job.NewPoller(gen,
		job.WithMaxAttempts(cfg.PollMaxAttempts),
		job.WithPollInterval(cfg.PollInterval()),
		job.WithPollerLogger(logger),
	)

	deps.Service = job.NewService(
		gen,
		poller,
		newMirror(store, proxy, logger),
		credit.NewGate(ledger, logger),
		repo,
		job.WithServiceLogger(logger),
	)
	// Trackers must stop before the stores they write to close.
	deps.closers = append([]func(context.Context) error{deps.Service.Shutdown}, deps.closers...)

	return deps, nil
}

// Close stops background tracking and releases connections.
func (d *Dependencies) Close(ctx context.Context) error {
	var errs []error
	for _, c := range d.closers {
		if err := c(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newMirror builds the asset mirror. Result downloads use the same outbound
// proxy as vendor calls.
func newMirror(store storage.ObjectStore, proxy *url.URL, logger *slog.Logger) *asset.Mirror {
	return asset.NewMirror(store,
		asset.WithHTTPClient(evolink.NewHTTPClient(downloadTimeout, proxy)),
		asset.WithLogger(logger),
	)
}

// initStorage creates the appropriate object store based on configuration.
// Local storage also returns the handler that serves its objects.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.ObjectStore, http.Handler, error) {
	if cfg.S3Enabled() {
		s3Store, err := storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			PublicURL:       cfg.S3PublicURL,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.StorageDir, cfg.PublicBaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("storage_dir", cfg.StorageDir),
		slog.String("public_base_url", cfg.PublicBaseURL),
	)
	return localStore, localStore.Handler(), nil
}

func (d *Dependencies) initLedger(ctx context.Context, cfg *config.Config, logger *slog.Logger) (credit.Ledger, error) {
	if !cfg.PostgresEnabled() {
		logger.Warn("using in-memory credit ledger; balances are lost on restart",
			slog.Int("default_credits", cfg.DefaultCredits),
		)
		return credit.NewMemoryLedger(cfg.DefaultCredits), nil
	}

	ledger, err := credit.NewPostgresLedger(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("create credit ledger: %w", err)
	}
	d.closers = append(d.closers, ledger.Close)

	if err := ledger.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping credit ledger: %w", err)
	}
	if err := ledger.Migrate(ctx); err != nil {
		return nil, err
	}
	logger.Info("postgres credit ledger configured")
	return ledger, nil
}

func (d *Dependencies) initRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (job.Repository, error) {
	if !cfg.RedisEnabled() {
		return job.NewMemoryRepository(), nil
	}

	repo, err := job.NewRedisRepository(ctx, job.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.JobTTL(),
	})
	if err != nil {
		return nil, fmt.Errorf("create job repository: %w", err)
	}
	d.closers = append(d.closers, func(context.Context) error { return repo.Close() })

	logger.Info("redis job repository configured",
		slog.String("addr", cfg.RedisAddr),
		slog.Duration("ttl", cfg.JobTTL()),
	)
	return repo, nil
}
