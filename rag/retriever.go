package rag

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/factflow/types"
)

// ErrNoEmbedding marks a vector sub-query skipped for lack of a claim embedding.
var ErrNoEmbedding = errors.New("no claim embedding")

// RetrieverConfig 混合检索配置
type RetrieverConfig struct {
	TopK          int     `json:"top_k"`
	MaxTopK       int     `json:"max_top_k"`
	Multiplier    int     `json:"retrieval_multiplier"`
	RRFK          float64 `json:"rrf_k"`
	VectorWeight  float64 `json:"vector_weight"`
	KeywordWeight float64 `json:"keyword_weight"`
}

// DefaultRetrieverConfig 返回默认检索配置
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		TopK:          10,
		MaxTopK:       100,
		Multiplier:    3,
		RRFK:          DefaultRRFK,
		VectorWeight:  0.5,
		KeywordWeight: 0.5,
	}
}

// SearchRequest 一次混合检索请求。TopK 为 0 时取配置值，
// Weights 为 nil 时取配置权重。
type SearchRequest struct {
	Embedding []float64
	Text      string
	TopK      int
	Weights   *Weights
	Filters   types.Filters
}

// SearchResult 混合检索结果
type SearchResult struct {
	Candidates []types.EvidenceCandidate
	Mode       types.RetrievalMode
	Degraded   bool
	VectorErr  error
	KeywordErr error
}

// HybridRetriever 混合检索器
type HybridRetriever struct {
	store  EvidenceStore
	config RetrieverConfig
	logger *zap.Logger
}

// NewHybridRetriever 创建混合检索器
func NewHybridRetriever(store EvidenceStore, config RetrieverConfig, logger *zap.Logger) *HybridRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultRetrieverConfig()
	if config.TopK <= 0 {
		config.TopK = def.TopK
	}
	if config.MaxTopK <= 0 {
		config.MaxTopK = max(def.MaxTopK, config.TopK)
	}
	if config.Multiplier < 1 {
		config.Multiplier = def.Multiplier
	}
	if config.RRFK <= 0 {
		config.RRFK = def.RRFK
	}
	return &HybridRetriever{
		store:  store,
		config: config,
		logger: logger.With(zap.String("component", "hybrid_retriever")),
	}
}

// Config returns the effective configuration.
func (r *HybridRetriever) Config() RetrieverConfig {
	return r.config
}

// Search runs both sub-queries concurrently and fuses them. Sub-query
// failures degrade the result instead of failing it; only an invalid
// request returns an error.
func (r *HybridRetriever) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if strings.TrimSpace(req.Text) == "" && len(req.Embedding) == 0 {
		return nil, types.NewInvalidRequestError("search needs claim text or embedding")
	}
	if err := req.Filters.Validate(); err != nil {
		return nil, err
	}

	topK := r.limitTopK(req.TopK)
	weights := Weights{Vector: r.config.VectorWeight, Keyword: r.config.KeywordWeight}
	if req.Weights != nil {
		weights = *req.Weights
	}
	perQuery := topK * r.config.Multiplier

	var (
		vectorHits, keywordHits []StoreHit
		vectorErr, keywordErr   error
	)

	var g errgroup.Group
	g.Go(func() error {
		if len(req.Embedding) == 0 {
			vectorErr = ErrNoEmbedding
			return nil
		}
		vectorHits, vectorErr = r.store.VectorQuery(ctx, req.Embedding, perQuery, req.Filters)
		return nil
	})
	g.Go(func() error {
		if strings.TrimSpace(req.Text) == "" {
			keywordErr = types.NewInvalidRequestError("empty claim text")
			return nil
		}
		keywordHits, keywordErr = r.store.KeywordQuery(ctx, req.Text, perQuery, req.Filters)
		return nil
	})
	_ = g.Wait()

	result := &SearchResult{VectorErr: vectorErr, KeywordErr: keywordErr}
	switch {
	case vectorErr == nil && keywordErr == nil:
		result.Mode = types.RetrievalHybrid
	case vectorErr != nil && keywordErr == nil:
		result.Mode = types.RetrievalKeywordOnly
		result.Degraded = true
		vectorHits = nil
	case vectorErr == nil && keywordErr != nil:
		result.Mode = types.RetrievalVectorOnly
		result.Degraded = true
		keywordHits = nil
	default:
		result.Mode = types.RetrievalNone
		result.Degraded = true
		result.Candidates = []types.EvidenceCandidate{}
		r.logger.Warn("both retrieval sub-queries failed",
			zap.NamedError("vector_error", vectorErr),
			zap.NamedError("keyword_error", keywordErr))
		return result, nil
	}

	if result.Degraded {
		r.logger.Warn("retrieval degraded",
			zap.String("mode", string(result.Mode)),
			zap.NamedError("vector_error", vectorErr),
			zap.NamedError("keyword_error", keywordErr))
	}

	result.Candidates = truncate(Fuse(vectorHits, keywordHits, weights, r.config.RRFK), topK)

	r.logger.Debug("retrieval completed",
		zap.String("mode", string(result.Mode)),
		zap.Int("vector_hits", len(vectorHits)),
		zap.Int("keyword_hits", len(keywordHits)),
		zap.Int("candidates", len(result.Candidates)))

	return result, nil
}

// SearchKeywordOnly is the degraded path used when no claim embedding can
// be produced. Unlike Search it returns the keyword sub-query error.
func (r *HybridRetriever) SearchKeywordOnly(ctx context.Context, text string, topK int, filters types.Filters) ([]types.EvidenceCandidate, error) {
	if strings.TrimSpace(text) == "" {
		return nil, types.NewInvalidRequestError("search needs claim text")
	}
	if err := filters.Validate(); err != nil {
		return nil, err
	}
	topK = r.limitTopK(topK)

	hits, err := r.store.KeywordQuery(ctx, text, topK*r.config.Multiplier, filters)
	if err != nil {
		return nil, err
	}
	return truncate(Fuse(nil, hits, Weights{Keyword: 1}, r.config.RRFK), topK), nil
}

// limitTopK applies the default for a non-positive topK and clamps it to
// MaxTopK so the per-query limit cannot overflow.
func (r *HybridRetriever) limitTopK(topK int) int {
	if topK <= 0 {
		return r.config.TopK
	}
	return min(topK, r.config.MaxTopK)
}
