package app

import (
	"context"
	"os"
	"time"

	"jobradar/internal/cache"
	"jobradar/internal/collector"
	"jobradar/internal/config"
	"jobradar/internal/database"
	dbpostgres "jobradar/internal/database/postgres"
	"jobradar/internal/embedding"
	"jobradar/internal/extraction"
	"jobradar/internal/logger"
	"jobradar/internal/monitoring"
	"jobradar/internal/normalize"
	"jobradar/internal/quota"
	"jobradar/internal/repository"
	"jobradar/internal/search"
	"jobradar/internal/source"
	"jobradar/internal/ws"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Container owns every long-lived dependency of a process.
type Container struct {
	Config  config.Config
	Sources config.SourcesFile
	Log     *zap.SugaredLogger

	DB    database.DB
	Redis *cache.Redis

	Jobs    *repository.PostgresJobRepository
	Batches *repository.PostgresBatchJobRepository
	Runs    *repository.PostgresRunRepository
	Stats   *repository.PostgresStatsRepository

	Ledger       *quota.Ledger
	Adapters     *source.Registry
	Planner      collector.Planner
	Orchestrator *collector.Orchestrator

	Embeddings *embedding.Client
	Submitter  *embedding.Submitter
	Poller     *embedding.Poller
	Extractor  *extraction.Runner
	Search     *search.Service
	Monitor    *monitoring.Service

	Hub       *ws.Hub
	Publisher *ws.Publisher
}

func NewContainer(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (*Container, error) {
	log = logger.OrNop(log)

	sources, err := loadSources(cfg.SourcesFile, log)
	if err != nil {
		return nil, err
	}

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, err := dbpostgres.Connect(dbCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	c := &Container{Config: cfg, Sources: sources, Log: log, DB: db}
	c.Redis = cache.NewRedis(cfg.Redis, log.Named("cache"))

	c.Jobs = repository.NewPostgresJobRepository(db)
	c.Batches = repository.NewPostgresBatchJobRepository(db)
	c.Runs = repository.NewPostgresRunRepository(db)
	c.Stats = repository.NewPostgresStatsRepository(db)

	c.Ledger = quota.NewLedger(quota.NewPostgresStore(db), sources.Limits(), config.FallbackDailyLimit, log.Named("quota"))

	enabled := sources.Enabled()
	c.Adapters, err = source.BuildRegistry(enabled, cfg.Collection.FetchTimeout)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	c.Planner = collector.NewPlanner(sources.Categories, cfg.Collection.Locations)

	c.Hub = ws.NewHub(log.Named("ws"))
	c.Publisher = ws.NewPublisher(c.Redis.Client(), c.Hub, log.Named("ws"))

	c.Orchestrator = collector.NewOrchestrator(
		c.Adapters,
		c.Ledger,
		normalize.New(cfg.Collection.DescriptionMaxChars),
		c.Jobs,
		c.Runs,
		c.Publisher,
		collector.Config{
			ResultsPerSpec:    cfg.Collection.ResultsPerSpec,
			MaxAgeHours:       cfg.Collection.MaxAgeHours,
			MaxListingsPerRun: cfg.Collection.MaxListingsPerRun,
			FetchTimeout:      cfg.Collection.FetchTimeout,
			BatchIdentifier:   cfg.Collection.BatchIdentifier,
		},
		log.Named("collector"),
	)

	c.Embeddings = embedding.NewClient(embedding.ClientConfig{
		BaseURL: cfg.Embedding.BaseURL,
		APIKey:  cfg.Embedding.APIKey,
		Model:   cfg.Embedding.Model,
		Timeout: cfg.Embedding.RequestTimeout,
		Logger:  log.Named("embedding"),
	})
	c.Submitter = embedding.NewSubmitter(c.Jobs, c.Batches, c.Embeddings, embedding.SubmitConfig{
		BatchSize:  cfg.Embedding.BatchSize,
		MaxBatches: cfg.Embedding.MaxBatchesPerRun,
		Timeout:    cfg.Embedding.RequestTimeout,
	}, log.Named("embedding"))
	c.Poller = embedding.NewPoller(c.Jobs, c.Batches, c.Embeddings, embedding.PollConfig{
		Parallelism: cfg.Embedding.PollParallelism,
		Timeout:     cfg.Embedding.RequestTimeout,
		Dimensions:  cfg.Embedding.Dimensions,
	}, log.Named("embedding"))

	c.Extractor = extraction.NewRunner(c.Jobs, extraction.NewClient(extraction.ClientConfig{
		BaseURL: cfg.Extraction.BaseURL,
		APIKey:  cfg.Extraction.APIKey,
		Model:   cfg.Extraction.Model,
		Timeout: cfg.Extraction.RequestTimeout,
	}), extraction.Config{
		RequestsPerSecond: cfg.Extraction.RequestsPerSecond,
		Limit:             cfg.Extraction.LimitPerRun,
		Timeout:           cfg.Extraction.RequestTimeout,
	}, log.Named("extraction"))

	c.Search = search.NewService(c.Jobs, c.Embeddings, cfg.Embedding.Dimensions, cfg.Embedding.RequestTimeout, log.Named("search"))

	names := make([]string, 0, len(enabled))
	for _, s := range enabled {
		names = append(names, s.Name)
	}
	c.Monitor = monitoring.NewService(c.Stats, c.Runs, c.Jobs, c.Batches, c.Ledger, monitoring.Config{
		WindowHours: cfg.Monitoring.WindowHours,
		Thresholds: monitoring.Thresholds{
			MinDailyJobs:              cfg.Monitoring.MinDailyJobs,
			MaxMissingCompanyRate:     cfg.Monitoring.MaxMissingCompanyRate,
			MaxHoursWithoutCollection: cfg.Monitoring.MaxHoursWithoutCollection,
			MaxDuplicateRate:          cfg.Monitoring.MaxDuplicateRate,
		},
		Sources: names,
	}, log.Named("monitoring"))

	return c, nil
}

// loadSources reads the sources file. A missing file yields an empty set so
// the HTTP server can run without collection config.
func loadSources(path string, log *zap.SugaredLogger) (config.SourcesFile, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			log.Warnw("sources file not found, collection disabled", "path", path)
			return config.SourcesFile{}, nil
		}
		return config.SourcesFile{}, errors.Wrapf(err, "stat sources file %s", path)
	}
	return config.LoadSources(path)
}

func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	var err error
	if c.Redis != nil {
		err = errors.CombineErrors(err, c.Redis.Close())
	}
	if c.DB != nil {
		err = errors.CombineErrors(err, c.DB.Close())
	}
	return err
}
