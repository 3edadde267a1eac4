// Package config loads server configuration from the environment and wires
// the lifecycle coordinator with its repository, blob store and cleanup
// queue.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pressly-club/magazine-content/pkg/contentlife"
	"github.com/pressly-club/magazine-content/pkg/contentlife/queue"
	"github.com/pressly-club/magazine-content/pkg/contentlife/reconcile"
	repomemory "github.com/pressly-club/magazine-content/pkg/contentlife/repo/memory"
	repopg "github.com/pressly-club/magazine-content/pkg/contentlife/repo/postgres"
	fsstorage "github.com/pressly-club/magazine-content/pkg/contentlife/storage/fs"
	memorystorage "github.com/pressly-club/magazine-content/pkg/contentlife/storage/memory"
	s3storage "github.com/pressly-club/magazine-content/pkg/contentlife/storage/s3"
)

// ServerConfig represents server configuration for the magazine content
// service.
type ServerConfig struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`

	// Database configuration
	DatabaseType string `env:"DATABASE_TYPE" env-default:"memory"` // "memory", "postgres"
	DatabaseURL  string `env:"DATABASE_URL"`

	// Storage configuration
	StorageType string `env:"STORAGE_TYPE" env-default:"memory"` // "memory", "fs", "s3"
	FSBaseDir   string `env:"FS_BASE_DIR" env-default:"./data/blobs"`
	S3          S3Config

	// Cleanup queue configuration
	QueueType           string        `env:"QUEUE_TYPE" env-default:"bolt"` // "memory", "bolt"
	QueuePath           string        `env:"QUEUE_PATH" env-default:"./data/cleanup.db"`
	CleanupInterval     time.Duration `env:"CLEANUP_INTERVAL" env-default:"15s"`
	CleanupMaxAttempts  int           `env:"CLEANUP_MAX_ATTEMPTS" env-default:"8"`
	CleanupBaseDelay    time.Duration `env:"CLEANUP_BASE_DELAY" env-default:"30s"`
	CleanupMaxDelay     time.Duration `env:"CLEANUP_MAX_DELAY" env-default:"1h"`
	ReconcileMinBlobAge time.Duration `env:"RECONCILE_MIN_BLOB_AGE" env-default:"6h"`
	ReconcileInterval   time.Duration `env:"RECONCILE_INTERVAL" env-default:"1h"`
}

// S3Config holds settings for the S3 blob store.
type S3Config struct {
	Region          string `env:"S3_REGION" env-default:"us-east-1"`
	Bucket          string `env:"S3_BUCKET"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	Endpoint        string `env:"S3_ENDPOINT"`
	UsePathStyle    bool   `env:"S3_USE_PATH_STYLE" env-default:"false"`
	CreateBucket    bool   `env:"S3_CREATE_BUCKET" env-default:"false"`
}

// Load reads server configuration from the environment.
func Load() (*ServerConfig, error) {
	var cfg ServerConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}
	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}
	switch c.StorageType {
	case "memory", "fs":
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("s3_bucket is required when using s3 storage")
		}
	default:
		return errors.New("storage_type must be 'memory', 'fs' or 's3'")
	}
	if c.QueueType != "memory" && c.QueueType != "bolt" {
		return errors.New("queue_type must be 'memory' or 'bolt'")
	}
	return nil
}

// App is a fully wired service plus the background pieces the server runs.
type App struct {
	Service contentlife.Service
	Queue   contentlife.CleanupQueue
	Worker  *queue.Worker
	Sweeper *reconcile.Sweeper

	closers []func() error
}

// Close releases pooled resources (queue database, connection pool).
func (a *App) Close() error {
	var firstErr error
	for _, close := range a.closers {
		if err := close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// BuildApp wires the coordinator from configuration.
func (c *ServerConfig) BuildApp(ctx context.Context, logger *slog.Logger) (*App, error) {
	app := &App{}

	blobs, err := c.buildBlobStore(ctx)
	if err != nil {
		return nil, err
	}

	repo, err := c.buildRepository(ctx, app)
	if err != nil {
		return nil, err
	}

	q, err := c.buildQueue(app)
	if err != nil {
		return nil, err
	}

	svc, err := contentlife.New(
		contentlife.WithRepository(repo),
		contentlife.WithBlobStore(blobs),
		contentlife.WithCleanupQueue(q),
		contentlife.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	app.Service = svc
	app.Queue = q
	app.Worker = queue.NewWorker(q, blobs,
		queue.WithInterval(c.CleanupInterval),
		queue.WithWorkerLogger(logger),
	)
	app.Sweeper = reconcile.NewSweeper(repo, blobs, q,
		reconcile.WithMinAge(c.ReconcileMinBlobAge),
		reconcile.WithInterval(c.ReconcileInterval),
		reconcile.WithLogger(logger),
	)
	return app, nil
}

func (c *ServerConfig) buildBlobStore(ctx context.Context) (contentlife.BlobStore, error) {
	switch c.StorageType {
	case "memory":
		return memorystorage.New(), nil
	case "fs":
		return fsstorage.New(fsstorage.Config{BaseDir: c.FSBaseDir})
	case "s3":
		return s3storage.New(ctx, s3storage.Config{
			Region:                 c.S3.Region,
			Bucket:                 c.S3.Bucket,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UsePathStyle:           c.S3.UsePathStyle,
			CreateBucketIfNotExist: c.S3.CreateBucket,
		})
	}
	return nil, fmt.Errorf("unknown storage type %q", c.StorageType)
}

func (c *ServerConfig) buildRepository(ctx context.Context, app *App) (contentlife.MetadataRepository, error) {
	switch c.DatabaseType {
	case "memory":
		return repomemory.New(), nil
	case "postgres":
		pool, err := pgxpool.New(ctx, c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		app.closers = append(app.closers, func() error {
			pool.Close()
			return nil
		})
		return repopg.NewWithPool(pool), nil
	}
	return nil, fmt.Errorf("unknown database type %q", c.DatabaseType)
}

func (c *ServerConfig) buildQueue(app *App) (contentlife.CleanupQueue, error) {
	switch c.QueueType {
	case "memory":
		return queue.NewMemory(
			queue.WithMemoryMaxAttempts(c.CleanupMaxAttempts),
			queue.WithMemoryBackoff(c.CleanupBaseDelay, c.CleanupMaxDelay),
		), nil
	case "bolt":
		if err := os.MkdirAll(filepath.Dir(c.QueuePath), 0o755); err != nil {
			return nil, fmt.Errorf("create queue directory: %w", err)
		}
		q, err := queue.OpenBolt(c.QueuePath,
			queue.WithMaxAttempts(c.CleanupMaxAttempts),
			queue.WithBackoff(c.CleanupBaseDelay, c.CleanupMaxDelay),
		)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, q.Close)
		return q, nil
	}
	return nil, fmt.Errorf("unknown queue type %q", c.QueueType)
}
