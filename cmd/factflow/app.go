package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/factflow/aggregation"
	"github.com/BaSui01/factflow/config"
	"github.com/BaSui01/factflow/internal/cache"
	"github.com/BaSui01/factflow/internal/database"
	"github.com/BaSui01/factflow/internal/metrics"
	"github.com/BaSui01/factflow/internal/pool"
	"github.com/BaSui01/factflow/llm/embedding"
	"github.com/BaSui01/factflow/llm/entailment"
	"github.com/BaSui01/factflow/models"
	"github.com/BaSui01/factflow/pipeline"
	"github.com/BaSui01/factflow/rag"
	"github.com/BaSui01/factflow/scoring"
)

// corpusEmbedBatch 内存语料补齐向量时的批大小
const corpusEmbedBatch = 64

// =============================================================================
// 🧩 App：按配置装配验证管线
// =============================================================================

// App 持有一次进程生命周期内的全部组件，serve、verify、warmup 共用
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Collector

	db       *gorm.DB
	dbPool   *database.PoolManager
	results  *database.ResultRepository
	redis    *cache.Manager
	models   *models.Cache
	workers  *pool.GoroutinePool
	verifier *pipeline.Verifier
}

// NewApp 装配组件。collector 可为 nil（CLI 单次验证不暴露指标）。
func NewApp(ctx context.Context, cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger, metrics: collector}

	built := false
	defer func() {
		if !built {
			_ = a.Close()
		}
	}()

	if err := a.initDatabase(ctx); err != nil {
		return nil, err
	}
	a.initRedis()
	if err := a.initModels(); err != nil {
		return nil, err
	}

	store, err := a.initEvidenceStore(ctx)
	if err != nil {
		return nil, err
	}

	a.workers = pool.NewGoroutinePool(pool.GoroutinePoolConfig{
		MaxWorkers: cfg.Pipeline.Workers,
		QueueSize:  cfg.Pipeline.QueueSize,
	}, logger)

	retriever := rag.NewHybridRetriever(store, rag.RetrieverConfig{
		TopK:          cfg.Retrieval.TopK,
		MaxTopK:       cfg.Retrieval.MaxTopK,
		Multiplier:    cfg.Retrieval.RetrievalMultiplier,
		RRFK:          cfg.Retrieval.RRFK,
		VectorWeight:  cfg.Retrieval.VectorWeight,
		KeywordWeight: cfg.Retrieval.KeywordWeight,
	}, logger)

	scorer, err := scoring.New(a.models, a.workers, scoring.Config{
		MaxPremiseChars:  cfg.Scoring.MaxPremiseChars,
		FallbackToSingle: cfg.Scoring.FallbackToSingle,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build scorer: %w", err)
	}
	if collector != nil {
		scorer.WithObserver(collector)
	}

	deps := pipeline.Dependencies{
		Models:    a.models,
		Retriever: retriever,
		Scorer:    scorer,
		Aggregator: aggregation.NewAggregator(aggregation.Thresholds{
			SupportRatio: cfg.Aggregation.SupportRatio,
			RefuteRatio:  cfg.Aggregation.RefuteRatio,
		}),
		Pool: a.workers,
	}
	if a.results != nil {
		deps.Recorder = a.results
	}
	if collector != nil {
		deps.Metrics = collector
	}

	a.verifier, err = pipeline.New(deps, pipeline.ConfigFrom(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	built = true
	return a, nil
}

// needsDatabase 证据库为 postgres 或需要记录结果时才连接数据库
func (a *App) needsDatabase() bool {
	return a.cfg.Retrieval.Backend == "postgres" || a.cfg.Database.RecordResults
}

func (a *App) initDatabase(ctx context.Context) error {
	if !a.needsDatabase() {
		return nil
	}

	db, err := database.Open(a.cfg.Database, a.logger)
	if err != nil {
		return err
	}
	a.db = db

	var opts []database.PoolOption
	if a.metrics != nil {
		opts = append(opts, database.WithStatsObserver(a.cfg.Database.Driver, a.metrics))
	}
	a.dbPool, err = database.NewPoolManager(db, database.PoolConfigFrom(a.cfg.Database), a.logger, opts...)
	if err != nil {
		return fmt.Errorf("failed to configure database pool: %w", err)
	}

	if a.cfg.Database.RecordResults {
		a.results = database.NewResultRepository(db, a.logger).WithTxRunner(a.dbPool)
		if a.metrics != nil {
			a.results.WithObserver(a.metrics)
		}
		// sqlite 用于本地试用，直接由 gorm 建表
		if database.IsSQLite(a.cfg.Database.Driver) {
			if err := a.results.AutoMigrate(ctx); err != nil {
				return fmt.Errorf("failed to migrate results table: %w", err)
			}
		}
	}
	return nil
}

func (a *App) initRedis() {
	if !a.cfg.Redis.Enabled {
		return
	}
	cacheCfg := cache.DefaultConfig()
	cacheCfg.Addr = a.cfg.Redis.Addr
	cacheCfg.Password = a.cfg.Redis.Password
	cacheCfg.DB = a.cfg.Redis.DB
	cacheCfg.PoolSize = a.cfg.Redis.PoolSize
	cacheCfg.MinIdleConns = a.cfg.Redis.MinIdleConns
	cacheCfg.DefaultTTL = a.cfg.Redis.EmbeddingTTL
	cacheCfg.TLS = a.cfg.Redis.TLS

	m, err := cache.NewManager(cacheCfg, a.logger)
	if err != nil {
		// 嵌入缓存只是加速手段
		a.logger.Warn("redis unavailable, embedding memo disabled", zap.Error(err))
		return
	}
	a.redis = m
}

func (a *App) initModels() error {
	factories := map[models.Kind]models.Factory{
		models.KindEmbedding:  a.embeddingFactory(),
		models.KindEntailment: a.entailmentFactory(),
	}

	var opts []models.Option
	if a.metrics != nil {
		opts = append(opts, models.WithLoadObserver(a.metrics))
	}
	c, err := models.NewCache(models.Config{
		Device:      a.cfg.Models.Device,
		BatchSizes:  a.cfg.Models.BatchSizes,
		LoadTimeout: a.cfg.Models.LoadTimeout,
	}, factories, a.logger, opts...)
	if err != nil {
		return fmt.Errorf("failed to create model cache: %w", err)
	}
	a.models = c
	return nil
}

func (a *App) embeddingFactory() models.Factory {
	pc := a.cfg.Models.Embedding
	return func(ctx context.Context, device models.Device) (any, error) {
		var p embedding.Provider = embedding.NewOpenAIProvider(embedding.OpenAIConfig{
			APIKey:     pc.APIKey,
			BaseURL:    pc.BaseURL,
			Model:      pc.Model,
			Dimensions: pc.Dimensions,
			Timeout:    pc.Timeout,
			MaxRetries: pc.MaxRetries,
		})
		if a.redis != nil {
			memo := models.NewCachedEmbedder(p, a.redis, a.cfg.Redis.EmbeddingTTL, a.logger)
			if a.metrics != nil {
				memo.WithObserver(a.metrics)
			}
			p = memo
		}
		return p, nil
	}
}

func (a *App) entailmentFactory() models.Factory {
	pc := a.cfg.Models.Entailment
	return func(ctx context.Context, device models.Device) (any, error) {
		return entailment.NewHTTPProvider(entailment.HTTPConfig{
			BaseURL:      pc.BaseURL,
			APIKey:       pc.APIKey,
			Model:        pc.Model,
			Path:         pc.Path,
			Timeout:      pc.Timeout,
			RateLimitRPS: pc.RateLimitRPS,
			MaxRetries:   pc.MaxRetries,
		}), nil
	}
}

func (a *App) initEvidenceStore(ctx context.Context) (rag.EvidenceStore, error) {
	switch a.cfg.Retrieval.Backend {
	case "postgres":
		if a.db == nil {
			return nil, errors.New("postgres retrieval backend requires a database connection")
		}
		store := rag.NewPostgresEvidenceStore(a.db, rag.PostgresStoreConfig{
			TextSearchConfig: a.cfg.Retrieval.TextSearchConfig,
		}, a.logger)
		if a.metrics != nil {
			store.WithObserver(a.metrics)
		}
		return store, nil

	default:
		store := rag.NewInMemoryEvidenceStore(a.logger)
		if a.cfg.Retrieval.CorpusPath == "" {
			a.logger.Warn("memory retrieval backend has no corpus, every claim will be INSUFFICIENT")
			return store, nil
		}
		records, err := rag.LoadCorpus(ctx, a.cfg.Retrieval.CorpusPath)
		if err != nil {
			return nil, err
		}
		if err := a.embedCorpus(ctx, records); err != nil {
			// 没有向量时退化为纯关键词检索
			a.logger.Warn("failed to embed corpus, vector search limited to pre-embedded records", zap.Error(err))
		}
		if err := store.Add(records...); err != nil {
			return nil, fmt.Errorf("failed to index corpus: %w", err)
		}
		a.logger.Info("evidence corpus loaded",
			zap.String("path", a.cfg.Retrieval.CorpusPath),
			zap.Int("records", store.Count()),
		)
		return store, nil
	}
}

// embedCorpus fills in missing vectors for records loaded without one.
func (a *App) embedCorpus(ctx context.Context, records []rag.EvidenceRecord) error {
	var missing []int
	for i, r := range records {
		if len(r.Embedding) == 0 {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	embedder, err := a.models.Embedder(ctx)
	if err != nil {
		return err
	}

	for start := 0; start < len(missing); start += corpusEmbedBatch {
		end := min(start+corpusEmbedBatch, len(missing))
		docs := make([]string, 0, end-start)
		for _, idx := range missing[start:end] {
			docs = append(docs, records[idx].Content)
		}
		vecs, err := embedder.EmbedDocuments(ctx, docs)
		if err != nil {
			return err
		}
		if len(vecs) != len(docs) {
			return fmt.Errorf("embedder returned %d vectors for %d documents", len(vecs), len(docs))
		}
		for j, idx := range missing[start:end] {
			records[idx].Embedding = vecs[j]
		}
	}
	a.logger.Info("corpus embedded", zap.Int("records", len(missing)))
	return nil
}

// Warmup 加载全部模型并记录各自耗时
func (a *App) Warmup(ctx context.Context) error {
	timings, err := a.models.WarmupAll(ctx)
	for kind, d := range timings {
		a.logger.Info("model warmed up", zap.String("kind", string(kind)), zap.Duration("load_time", d))
	}
	return err
}

// Close 按依赖逆序释放资源
func (a *App) Close() error {
	var errs []error
	if a.workers != nil {
		a.workers.Close()
	}
	if a.models != nil {
		errs = append(errs, a.models.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.dbPool != nil {
		errs = append(errs, a.dbPool.Close())
	} else if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
