package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mvkaushik27/nalanda/internal/cache"
	"github.com/mvkaushik27/nalanda/internal/classify"
	"github.com/mvkaushik27/nalanda/internal/config"
	"github.com/mvkaushik27/nalanda/internal/embedding"
	"github.com/mvkaushik27/nalanda/internal/general"
	"github.com/mvkaushik27/nalanda/internal/indexer"
	"github.com/mvkaushik27/nalanda/internal/monitoring"
	"github.com/mvkaushik27/nalanda/internal/observability"
	"github.com/mvkaushik27/nalanda/internal/query"
	"github.com/mvkaushik27/nalanda/internal/retrieval"
	"github.com/mvkaushik27/nalanda/internal/semantic"
	"github.com/mvkaushik27/nalanda/internal/storage"
	"github.com/mvkaushik27/nalanda/internal/website"
)

// App bundles the wired components shared across handlers.
type App struct {
	Config     *config.Config
	Logger     *observability.Logger
	DB         *sql.DB
	Catalogue  *storage.CatalogueRepository
	Cache      cache.Client
	Loader     *semantic.Loader
	Searcher   *semantic.Searcher
	Embedder   embedding.Embedder
	Builder    *indexer.Builder
	Store      *general.Store
	Router     *retrieval.Router
	Audit      *monitoring.AuditLogger
	Errors     *monitoring.ErrorTracker
	Alerts     *monitoring.AlertListener
	ClassCache *classify.Cache
}

// BuildApp wires the full pipeline from configuration.
func BuildApp(cfg *config.Config, logger *observability.Logger) (*App, error) {
	db, err := storage.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := storage.InitSchema(context.Background(), db, cfg.Database.Driver); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	catalogue := storage.NewCatalogueRepository(db, cfg.Database.Driver, logger)

	var cacheClient cache.Client
	var publisher monitoring.AlertPublisher
	var subscriber monitoring.AlertSubscriber
	if cfg.Cache.Driver == "redis" {
		redisClient, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		cacheClient = redisClient
		publisher = redisClient
		subscriber = redisClient
	} else {
		cacheClient = cache.NewMemoryClient(cfg.Cache.MaxEntries)
	}

	var embedder embedding.Embedder
	if cfg.Embedding.BaseURL != "" {
		embedder, err = embedding.NewClient(embedding.Config{
			APIKey:    cfg.Embedding.APIKey,
			Model:     cfg.Embedding.Model,
			BaseURL:   cfg.Embedding.BaseURL,
			Dimension: cfg.Embedding.Dimension,
			Timeout:   cfg.Embedding.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("create embedding client: %w", err)
		}
	} else {
		logger.Warn().Msg("no embedding service configured, using deterministic mock embeddings")
		embedder = embedding.NewMockClient(cfg.Embedding.Dimension)
	}

	loader := semantic.NewLoader(logger, cfg.Vector.CatalogueIndexPath, cfg.Vector.GeneralIndexPath, cfg.Vector.LoadTimeout)
	lexical := semantic.NewLexicalSearcher(logger, catalogue)
	lexical.MinSimilarity = cfg.Retrieval.LexicalFloor
	searcher := semantic.NewSearcher(logger, loader, embedder, lexical)

	store, err := general.LoadStore(cfg.Vector.GeneralQueriesPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.Vector.GeneralQueriesPath).Msg("question store unavailable, general answers degraded")
		store = general.NewStore(nil)
	}
	resolver := general.NewResolver(logger, store, searcher)
	resolver.SemanticThreshold = cfg.Retrieval.SemanticThreshold
	resolver.FuzzyCutoff = cfg.Retrieval.FuzzyCutoff
	resolver.SynonymThreshold = cfg.Retrieval.SynonymThreshold

	fetcher := website.NewFetcher(logger, cfg.Website.URL, cfg.Website.CachePath,
		cfg.Website.CacheTTL, cfg.Website.FetchTimeout, cfg.Website.Enabled)

	classCache := classify.NewCache(cfg.Classifier.CacheTTL, cfg.Classifier.CacheMaxEntries, cfg.Classifier.CacheEvictCount)
	classifier := classify.New(logger, classCache, classify.Options{
		ModelEnabled:    cfg.Classifier.ExternalEnabled,
		ExternalTimeout: cfg.Classifier.ExternalTimeout,
	})

	corrector := query.NewCorrector(logger, nil, catalogue.AuthorTokens)

	audit := monitoring.NewAuditLogger(logger, cfg.Audit.QueryLogPath, cfg.Audit.AdminLogPath)
	tracker := monitoring.NewErrorTracker(logger, publisher, cfg.Audit.AlertChannel)
	limiter := monitoring.NewRateLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)

	var alerts *monitoring.AlertListener
	if subscriber != nil {
		alerts = monitoring.NewAlertListener(logger, subscriber, cfg.Audit.AlertChannel)
		if err := alerts.Start(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("alert listener unavailable")
			alerts = nil
		}
	}

	var respCache cache.Client
	if cfg.Retrieval.CacheResults {
		respCache = cacheClient
	}

	router := retrieval.NewRouter(logger, retrieval.Options{
		Limiter:       limiter,
		Audit:         audit,
		Errors:        tracker,
		Corrector:     corrector,
		Classifier:    classifier,
		Catalogue:     catalogue,
		Vector:        searcher,
		Resolver:      resolver,
		Website:       fetcher,
		ResponseCache: respCache,
		CacheTTL:      cfg.Cache.TTL,

		SemanticTopK:   cfg.Retrieval.SemanticTopK,
		MaxResults:     cfg.Retrieval.MaxResults,
		MaxQueryLength: cfg.Retrieval.MaxQueryLength,
		VowelRatioMin:  cfg.Retrieval.VowelRatioMin,

		Links: retrieval.Links{
			Website:       cfg.Website.URL,
			OPAC:          cfg.Website.OPACURL,
			HelpdeskEmail: cfg.Website.HelpdeskEmail,
		},
		RateWindow:  cfg.RateLimit.Window,
		ClearCaches: []func(){classCache.Clear, loader.Invalidate},
	})

	builder := indexer.NewBuilder(logger, embedder, cfg.Embedding.BatchSize)

	return &App{
		Config:     cfg,
		Logger:     logger,
		DB:         db,
		Catalogue:  catalogue,
		Cache:      cacheClient,
		Loader:     loader,
		Searcher:   searcher,
		Embedder:   embedder,
		Builder:    builder,
		Store:      store,
		Router:     router,
		Audit:      audit,
		Errors:     tracker,
		Alerts:     alerts,
		ClassCache: classCache,
	}, nil
}
