package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/support-copilot/internal/domain/matcher"
	"github.com/yanqian/support-copilot/internal/domain/support"
	"github.com/yanqian/support-copilot/internal/infra/config"
	"github.com/yanqian/support-copilot/internal/infra/embedder"
	"github.com/yanqian/support-copilot/internal/infra/recordrepo"
	"github.com/yanqian/support-copilot/internal/infra/seed"
)

const seedTimeout = 2 * time.Minute

func provideMatcherConfig(cfg *config.Config) matcher.Config {
	return matcher.Config{
		TopK:               cfg.Matcher.TopK,
		GoodMatchThreshold: cfg.Matcher.GoodMatchThreshold,
		Timeout:            cfg.Matcher.Timeout,
	}
}

func provideEmbeddingOptions(cfg *config.Config) embedder.Options {
	return embedder.Options{
		Backend:        cfg.Embedding.Backend,
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.EmbeddingModel,
		HashDimensions: cfg.Embedding.HashDimensions,
		MaxBatchTokens: cfg.Embedding.MaxBatchTokens,
	}
}

func provideModelLoader(opts embedder.Options, logger *slog.Logger) (matcher.ModelLoader, error) {
	logger.Info("embedding backend selected", "backend", embedder.ResolveBackend(opts))
	return embedder.NewLoader(opts, logger)
}

func provideRecordLister(repo support.Repository) support.RecordLister {
	return repo
}

// provideRecordRepository builds the record store: Postgres when reachable, memory otherwise,
// optionally fronted by a Valkey snapshot cache, then imports the configured seed file.
func provideRecordRepository(cfg *config.Config, logger *slog.Logger) (support.Repository, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var repo support.Repository
	if pgRepo, pool := providePostgresRepository(cfg, logger); pgRepo != nil {
		closers = append(closers, pool.Close)
		repo = pgRepo
	} else {
		repo = recordrepo.NewMemoryRepository()
	}

	if client := provideValkeyClient(cfg, logger); client != nil {
		closers = append(closers, client.Close)
		repo = recordrepo.NewCachedRepository(repo, recordrepo.NewValkeyCache(client), cfg.Records.Redis.Prefix, cfg.Records.Redis.TTL, logger)
	}

	if err := seedRecords(cfg, repo, logger); err != nil {
		cleanup()
		return nil, nil, err
	}
	return repo, cleanup, nil
}

func providePostgresRepository(cfg *config.Config, logger *slog.Logger) (*recordrepo.PostgresRepository, *pgxpool.Pool) {
	dsn := strings.TrimSpace(cfg.Records.Postgres.DSN)
	if dsn == "" {
		logger.Info("records postgres dsn not set, using memory repository")
		return nil, nil
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		logger.Error("invalid postgres dsn, using memory repository", "error", err)
		return nil, nil
	}
	if cfg.Records.Postgres.MaxConns > 0 {
		poolConfig.MaxConns = cfg.Records.Postgres.MaxConns
	}
	if cfg.Records.Postgres.MinConns > 0 {
		poolConfig.MinConns = cfg.Records.Postgres.MinConns
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Error("failed to initialize postgres pool, using memory repository", "error", err)
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres ping failed, using memory repository", "error", err)
		pool.Close()
		return nil, nil
	}
	repo := recordrepo.NewPostgresRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Error("postgres schema setup failed, using memory repository", "error", err)
		pool.Close()
		return nil, nil
	}
	logger.Info("records postgres repository enabled")
	return repo, pool
}

func provideValkeyClient(cfg *config.Config, logger *slog.Logger) valkey.Client {
	if !cfg.Records.Redis.Enabled {
		return nil
	}
	opt, err := buildValkeyOptions(cfg.Records.Redis.Addr)
	if err != nil {
		logger.Error("invalid valkey configuration, record cache disabled", "error", err)
		return nil
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		logger.Error("failed to create valkey client, record cache disabled", "error", err)
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		logger.Error("valkey ping failed, record cache disabled", "error", err)
		client.Close()
		return nil
	}
	logger.Info("record snapshot cache enabled", "addr", cfg.Records.Redis.Addr, "ttl", cfg.Records.Redis.TTL.String())
	return client
}

func buildValkeyOptions(addr string) (valkey.ClientOption, error) {
	if strings.Contains(addr, "://") {
		return valkey.ParseURL(addr)
	}
	return valkey.ClientOption{InitAddress: []string{addr}}, nil
}

func seedRecords(cfg *config.Config, repo support.Repository, logger *slog.Logger) error {
	location := strings.TrimSpace(cfg.Records.SeedPath)
	if location == "" {
		return nil
	}
	var objects seed.ObjectOpener
	if strings.TrimSpace(cfg.Records.ObjectStorage.Endpoint) != "" {
		minioObjects, err := seed.NewMinioObjects(seed.ObjectConfig{
			Endpoint:  cfg.Records.ObjectStorage.Endpoint,
			AccessKey: cfg.Records.ObjectStorage.AccessKey,
			SecretKey: cfg.Records.ObjectStorage.SecretKey,
			Region:    cfg.Records.ObjectStorage.Region,
		})
		if err != nil {
			return err
		}
		objects = minioObjects
	}
	ctx, cancel := context.WithTimeout(context.Background(), seedTimeout)
	defer cancel()
	if _, err := seed.NewLoader(objects, logger).Seed(ctx, location, repo); err != nil {
		return fmt.Errorf("seed records: %w", err)
	}
	return nil
}
