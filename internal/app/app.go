// Package app initializes and holds long-lived application services, acting
// as a dependency injection container for the CLI commands.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/guidecrawler/internal/api"
	"github.com/JakeFAU/guidecrawler/internal/chunker"
	"github.com/JakeFAU/guidecrawler/internal/clock/system"
	"github.com/JakeFAU/guidecrawler/internal/config"
	"github.com/JakeFAU/guidecrawler/internal/crawler"
	"github.com/JakeFAU/guidecrawler/internal/dispatcher"
	"github.com/JakeFAU/guidecrawler/internal/embedding"
	"github.com/JakeFAU/guidecrawler/internal/extract"
	collyfetcher "github.com/JakeFAU/guidecrawler/internal/fetcher/colly"
	"github.com/JakeFAU/guidecrawler/internal/hash/sha256"
	"github.com/JakeFAU/guidecrawler/internal/id/uuid"
	"github.com/JakeFAU/guidecrawler/internal/ingest"
	"github.com/JakeFAU/guidecrawler/internal/policy/ratelimit"
	queueMemory "github.com/JakeFAU/guidecrawler/internal/queue/memory"
	"github.com/JakeFAU/guidecrawler/internal/retrieval"
	"github.com/JakeFAU/guidecrawler/internal/storage"
	memoryStorage "github.com/JakeFAU/guidecrawler/internal/storage/memory"
	"github.com/JakeFAU/guidecrawler/internal/storage/postgres"
	"github.com/JakeFAU/guidecrawler/internal/tokenizer"
	"github.com/JakeFAU/guidecrawler/internal/worker"
)

// App holds the shared, long-lived services. It is built once per CLI
// invocation and closed when the command finishes.
type App struct {
	Config      config.Config
	Logger      *zap.Logger
	Documents   storage.DocumentStore
	Jobs        crawler.JobStore
	Engine      *crawler.Engine
	Coordinator *ingest.Coordinator
	Retrieval   *retrieval.Service
	Queue       *queueMemory.Queue
	Dispatcher  *dispatcher.Dispatcher
	Server      *api.Server

	ready   api.ReadyFunc
	closers []func()
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.Logger
}

// New builds every service from cfg. Postgres is connected and migrated when
// db.driver is "postgres"; otherwise everything lives in memory.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}
	logger.Info("initializing application services",
		zap.String("db_driver", cfg.DB.Driver),
		zap.String("embedding_provider", cfg.Embedding.Provider),
	)

	clock := system.New()
	if err := a.initStores(ctx, clock); err != nil {
		a.Close()
		return nil, err
	}

	embedder := buildEmbedder(cfg, logger)
	var answerer embedding.Answerer
	if cfg.Answer.Enabled {
		answerer = embedding.NewChatAnswerer(cfg.Embedding.BaseURL, cfg.Embedding.APIKey, cfg.Answer.Model)
	}

	extractor := extract.New()
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.Crawler.RatePerSecond,
		Burst:             cfg.Crawler.RateBurst,
	})
	a.Engine = crawler.NewEngine(fetcher, extractor, limiter, crawler.Config{
		MaxPages:       cfg.Crawler.MaxPages,
		SameDomainOnly: cfg.Crawler.SameDomainOnly,
		Concurrency:    cfg.Crawler.Concurrency,
		Timeout:        cfg.FetchTimeout(),
	}, logger.Named("crawler"))

	var counter tokenizer.Counter = tokenizer.WordCounter{}
	if cfg.Chunker.Tokenizer != config.TokenizerWords {
		bpe, err := tokenizer.New(cfg.Embedding.Model, logger.Named("tokenizer"))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("load tokenizer: %w", err)
		}
		counter = bpe
	}
	chunk := chunker.New(
		counter,
		extractor,
		chunker.Config{MaxTokens: cfg.Chunker.MaxTokens},
	)
	a.Coordinator = ingest.New(a.Documents, chunk, embedder, sha256.New(), a.Engine, logger.Named("ingest"))
	a.Retrieval = retrieval.NewService(a.Documents, embedder, answerer, retrieval.Config{
		DefaultTopK: cfg.Ask.TopKDefault,
		MaxTopK:     cfg.Ask.TopKMax,
	}, logger.Named("retrieval"))

	a.Queue = queueMemory.NewQueue(cfg.Crawler.QueueDepth)
	a.closers = append(a.closers, a.Queue.Close)
	workers := make([]*worker.Worker, 0, cfg.Server.Workers)
	for i := 0; i < cfg.Server.Workers; i++ {
		workers = append(workers, worker.New(
			a.Queue,
			a.Jobs,
			a.Coordinator,
			clock,
			worker.Config{ProgressInterval: cfg.ProgressInterval()},
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	a.Dispatcher = dispatcher.New(a.Queue, workers, a.Jobs, uuid.New(), clock, logger.Named("dispatcher"))
	a.Server = api.NewServer(a.Coordinator, a.Retrieval, a.Dispatcher, a.Jobs, a.ready, cfg, logger)

	logger.Info("application services initialized")
	return a, nil
}

func (a *App) initStores(ctx context.Context, clock crawler.Clock) error {
	switch a.Config.DB.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, postgres.PoolConfig{
			DSN:      a.Config.DB.DSN,
			MaxConns: int32(a.Config.DB.MaxConns), //nolint:gosec // validated small value
		})
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := postgres.Migrate(ctx, pool, a.Config.Embedding.Dimensions); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
		docs, err := postgres.NewDocumentStore(pool, a.Logger.Named("postgres"))
		if err != nil {
			return fmt.Errorf("init document store: %w", err)
		}
		jobs, err := postgres.NewJobStore(pool, clock)
		if err != nil {
			return fmt.Errorf("init job store: %w", err)
		}
		a.Documents, a.Jobs = docs, jobs
		a.ready = func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				return fmt.Errorf("ping postgres: %w", err)
			}
			return nil
		}
	case config.DriverMemory, "":
		a.Documents = memoryStorage.NewDocumentStore()
		a.Jobs = memoryStorage.NewJobStore(clock)
	default:
		return fmt.Errorf("unknown db driver: %s", a.Config.DB.Driver)
	}
	return nil
}

func buildEmbedder(cfg config.Config, logger *zap.Logger) embedding.Embedder {
	if cfg.Embedding.Provider == config.ProviderHash {
		logger.Warn("using offline hashing embedder; retrieval quality is lexical only")
		return embedding.NewHashing(cfg.Embedding.Dimensions)
	}
	return embedding.NewOpenAI(embedding.Config{
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		BatchSize:  cfg.Embedding.BatchSize,
		Dimensions: cfg.Embedding.Dimensions,
	}, logger.Named("embedding"))
}

// Close releases services in reverse construction order and flushes the
// logger.
func (a *App) Close() {
	a.Logger.Info("shutting down application services")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if err := a.Logger.Sync(); err != nil {
		// stderr sync fails on some platforms; nothing left to report it to.
		a.Logger.Debug("logger sync failed", zap.Error(err))
	}
}
