package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/yukaisun/crossarb/internal/blob/s3"
	"github.com/yukaisun/crossarb/internal/config"
	"github.com/yukaisun/crossarb/internal/domain"
	"github.com/yukaisun/crossarb/internal/metrics"
	"github.com/yukaisun/crossarb/internal/pubsub/redis"
	"github.com/yukaisun/crossarb/internal/recorder"
	"github.com/yukaisun/crossarb/internal/store/postgres"
)

// Dependencies bundles the optional sinks the trading loop feeds. Nil fields
// mean the sink is disabled; Metrics and Recorder are always present.
type Dependencies struct {
	Recorder  *recorder.Recorder
	Metrics   *metrics.Metrics
	Publisher domain.QuotePublisher
	ExecStore domain.ExecutionStore
}

// Wire constructs the configured sinks and returns them with a cleanup
// function that releases resources in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Metrics: metrics.New()}

	var archiver recorder.Archiver
	if cfg.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire s3: %w", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire s3: %w", err)
		}
		archiver = s3blob.NewCSVArchiver(s3Client, cfg.S3.Prefix, logger)
		logger.Info("s3 archiving enabled", slog.String("bucket", cfg.S3.Bucket))
	}

	rec, err := recorder.New(cfg.Logs.Dir, cfg.Trading.Ticker, logger, archiver)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire recorder: %w", err)
	}
	closers = append(closers, rec.Close)
	deps.Recorder = rec

	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Publisher = redis.NewPublisher(redisClient, cfg.Trading.Ticker)
		logger.Info("redis publishing enabled", slog.String("addr", cfg.Redis.Addr))
	}

	if cfg.Postgres.DSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire postgres: %w", err)
		}
		closers = append(closers, pool.Close)

		store := postgres.NewExecutionStore(pool, cfg.Trading.Ticker)
		if err := store.EnsureSchema(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire postgres: %w", err)
		}
		deps.ExecStore = store
		logger.Info("postgres execution store enabled")
	}

	return deps, cleanup, nil
}
