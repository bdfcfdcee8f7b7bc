package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/factflow/internal/cache"
	"github.com/BaSui01/factflow/llm/embedding"
)

// EmbeddingStore is the key/value surface the memo needs.
// internal/cache.Manager satisfies it.
type EmbeddingStore interface {
	GetJSON(ctx context.Context, key string, dest any) error
	GetMany(ctx context.Context, keys []string) ([]string, []bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// CacheObserver receives memo hit/miss events.
type CacheObserver interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

const embeddingCacheType = "embedding"

// CachedEmbedder 带 Redis 备忘录的嵌入提供者
type CachedEmbedder struct {
	inner    embedding.Provider
	store    EmbeddingStore
	ttl      time.Duration
	observer CacheObserver
	logger   *zap.Logger
}

var _ embedding.Provider = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner with a memo keyed by model and normalized text.
func NewCachedEmbedder(inner embedding.Provider, store EmbeddingStore, ttl time.Duration, logger *zap.Logger) *CachedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{
		inner:  inner,
		store:  store,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "embedding_memo")),
	}
}

// WithObserver 设置命中率观察者
func (e *CachedEmbedder) WithObserver(o CacheObserver) *CachedEmbedder {
	e.observer = o
	return e
}

func (e *CachedEmbedder) Name() string      { return e.inner.Name() }
func (e *CachedEmbedder) Model() string     { return e.inner.Model() }
func (e *CachedEmbedder) Dimensions() int   { return e.inner.Dimensions() }
func (e *CachedEmbedder) MaxBatchSize() int { return e.inner.MaxBatchSize() }

// Embed bypasses the memo.
func (e *CachedEmbedder) Embed(ctx context.Context, req *embedding.EmbeddingRequest) (*embedding.EmbeddingResponse, error) {
	return e.inner.Embed(ctx, req)
}

// EmbedQuery returns the memoized query vector or computes and stores it.
func (e *CachedEmbedder) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	key := e.key(embedding.InputTypeQuery, query)
	var cached []float64
	err := e.store.GetJSON(ctx, key, &cached)
	switch {
	case err == nil && len(cached) > 0:
		e.record(1, 0)
		return cached, nil
	case err != nil && !cache.IsCacheMiss(err):
		e.logger.Debug("embedding memo lookup failed", zap.Error(err))
	}
	e.record(0, 1)

	vec, err := e.inner.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	e.store1(ctx, key, vec)
	return vec, nil
}

// EmbedDocuments serves hits from the memo and embeds only the misses.
func (e *CachedEmbedder) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	keys := make([]string, len(documents))
	for i, d := range documents {
		keys[i] = e.key(embedding.InputTypeDocument, d)
	}
	out := e.lookup(ctx, keys)

	var missIdx []int
	var missText []string
	for i, v := range out {
		if v == nil {
			missIdx = append(missIdx, i)
			missText = append(missText, documents[i])
		}
	}
	if len(missIdx) == 0 {
		return out, nil
	}

	vecs, err := e.inner.EmbedDocuments(ctx, missText)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		e.store1(ctx, keys[i], vecs[j])
	}
	return out, nil
}

// Warmup delegates to the wrapped provider.
func (e *CachedEmbedder) Warmup(ctx context.Context) error {
	if w, ok := e.inner.(Warmer); ok {
		return w.Warmup(ctx)
	}
	return nil
}

// Close closes the wrapped provider.
func (e *CachedEmbedder) Close() error {
	if c, ok := e.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// lookup returns one slot per key; nil means miss. Store failures are
// treated as misses.
func (e *CachedEmbedder) lookup(ctx context.Context, keys []string) [][]float64 {
	out := make([][]float64, len(keys))
	values, found, err := e.store.GetMany(ctx, keys)
	if err != nil {
		e.logger.Debug("embedding memo lookup failed", zap.Error(err))
		e.record(0, len(keys))
		return out
	}

	hits := 0
	for i := range keys {
		if !found[i] {
			continue
		}
		var vec []float64
		if err := json.Unmarshal([]byte(values[i]), &vec); err != nil || len(vec) == 0 {
			continue
		}
		out[i] = vec
		hits++
	}
	e.record(hits, len(keys)-hits)
	return out
}

func (e *CachedEmbedder) store1(ctx context.Context, key string, vec []float64) {
	if err := e.store.SetJSON(ctx, key, vec, e.ttl); err != nil {
		e.logger.Debug("embedding memo store failed", zap.Error(err))
	}
}

func (e *CachedEmbedder) record(hits, misses int) {
	if e.observer == nil {
		return
	}
	for i := 0; i < hits; i++ {
		e.observer.RecordCacheHit(embeddingCacheType)
	}
	for i := 0; i < misses; i++ {
		e.observer.RecordCacheMiss(embeddingCacheType)
	}
}

func (e *CachedEmbedder) key(inputType embedding.InputType, text string) string {
	h := sha256.New()
	h.Write([]byte(e.inner.Model()))
	h.Write([]byte{0})
	h.Write([]byte(inputType))
	h.Write([]byte{0})
	h.Write([]byte(normalizeText(text)))
	return "emb:" + hex.EncodeToString(h.Sum(nil))
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
