package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/medrag/internal/ai"
	"github.com/xxxsen/medrag/internal/config"
	"github.com/xxxsen/medrag/internal/db"
	"github.com/xxxsen/medrag/internal/embedcache"
	"github.com/xxxsen/medrag/internal/filestore"
	"github.com/xxxsen/medrag/internal/ingest"
	"github.com/xxxsen/medrag/internal/job"
	"github.com/xxxsen/medrag/internal/pipeline"
	"github.com/xxxsen/medrag/internal/repo"
	"github.com/xxxsen/medrag/internal/schedule"
	"github.com/xxxsen/medrag/internal/search"
	"github.com/xxxsen/medrag/internal/vectorstore"
	"github.com/xxxsen/medrag/internal/websearch"
)

// app holds every long-lived component. Each is built once and shared by
// reference.
type app struct {
	cfg        *config.Config
	pg         *sql.DB
	cacheDB    *sql.DB
	cacheStore repo.EmbeddingCacheStore
	embedder   ai.IEmbedder
	generator  ai.IGenerator
	index      *vectorstore.Index
	fetcher    websearch.Fetcher
	searcher   websearch.Searcher
	archive    filestore.Store
	ingestion  *ingest.Ingestion
	urls       *ingest.URLIngestion
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	if err := a.init(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init() error {
	logger := logutil.GetLogger(context.Background())
	cfg := a.cfg
	if cfg.Database.Enabled() {
		pg, err := db.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		a.pg = pg
		if err := db.ApplyMigrations(pg); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}
	if err := a.initCacheStore(); err != nil {
		return err
	}

	embedder, err := ai.BuildEmbedder(cfg.AI)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	if a.cacheStore != nil {
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, a.cacheStore)
	}
	a.embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.AI.EmbedCache.LRUSize,
		time.Duration(cfg.AI.EmbedCache.LRUTTLSeconds)*time.Second)

	generator, err := ai.BuildGenerator(cfg.AI)
	if err != nil {
		return fmt.Errorf("init generator: %w", err)
	}
	a.generator = generator

	index, err := vectorstore.New(cfg.VectorStore, vectorstore.Deps{DB: a.pg})
	if err != nil {
		return fmt.Errorf("init vector store: %w", err)
	}
	a.index = index

	a.fetcher = websearch.NewFetcherFromConfig(cfg.Fetch)
	searcher, err := websearch.NewSearcher(cfg.WebSearch)
	if err != nil {
		return fmt.Errorf("init web search: %w", err)
	}
	a.searcher = searcher

	archive, err := filestore.New(cfg.Archive)
	if err != nil {
		return fmt.Errorf("init archive: %w", err)
	}
	a.archive = archive

	proc := pipeline.New(a.embedder, pipeline.Options{
		ChunkSize:    cfg.Ingest.ChunkSize,
		ChunkOverlap: cfg.Ingest.ChunkOverlap,
		MaxChunks:    cfg.Ingest.MaxChunks,
	})
	opts := []ingest.Option{ingest.WithConcurrency(cfg.Ingest.Concurrency)}
	if archive != nil {
		opts = append(opts, ingest.WithArchive(archive))
	}
	a.ingestion = ingest.NewIngestion(proc, index, opts...)
	a.urls = ingest.NewURLIngestion(a.fetcher, a.ingestion, cfg.Ingest.MaxContentBytes)

	logger.Info("components initialized",
		zap.String("embedder", a.embedder.ModelName()),
		zap.Bool("generator", a.generator != nil),
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.String("web_search", cfg.WebSearch.Provider),
		zap.String("embed_cache", cfg.AI.EmbedCache.Store),
		zap.Bool("archive", archive != nil),
	)
	return nil
}

func (a *app) initCacheStore() error {
	switch a.cfg.AI.EmbedCache.Store {
	case "postgres":
		a.cacheStore = repo.NewEmbeddingCacheRepo(a.pg)
	case "sqlite":
		sdb, err := repo.OpenSQLite(a.cfg.AI.EmbedCache.SQLitePath)
		if err != nil {
			return fmt.Errorf("open embedding cache: %w", err)
		}
		a.cacheDB = sdb
		if err := repo.ApplySQLiteMigrations(sdb); err != nil {
			return fmt.Errorf("embedding cache migrations: %w", err)
		}
		a.cacheStore = repo.NewSQLiteEmbeddingCacheRepo(sdb)
	}
	return nil
}

func (a *app) searchService() (*search.Service, error) {
	if a.generator == nil {
		return nil, fmt.Errorf("ai.generator is required for answering")
	}
	return search.NewService(search.Deps{
		Embedder:  a.embedder,
		Generator: a.generator,
		Index:     a.index,
		Searcher:  a.searcher,
		Fetcher:   a.fetcher,
	}, a.cfg.Search)
}

func (a *app) searchOptions() search.Options {
	return search.Options{TopK: a.cfg.Search.TopK, Threshold: a.cfg.Search.Threshold}
}

func (a *app) scheduler() (*schedule.CronScheduler, error) {
	s := schedule.NewCronScheduler()
	jobs := a.cfg.Jobs
	if spec := jobs.EmbedCacheCleanup.Spec; spec != "" && a.cacheStore != nil {
		if err := s.AddJob(job.NewEmbedCacheCleanupJob(a.cacheStore, a.cfg.AI.EmbedCache.MaxAgeDays), spec); err != nil {
			return nil, err
		}
	}
	if spec := jobs.SourceRefresh.Spec; spec != "" && len(jobs.SourceRefresh.URLs) > 0 {
		refresh := job.NewSourceRefreshJob(a.urls, jobs.SourceRefresh.URLs, jobs.SourceRefresh.Source, jobs.SourceRefresh.Category)
		if err := s.AddJob(refresh, spec); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (a *app) Close() {
	if a.pg != nil {
		_ = a.pg.Close()
	}
	if a.cacheDB != nil {
		_ = a.cacheDB.Close()
	}
}
