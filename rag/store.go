package rag

import (
	"context"
	"time"

	"github.com/BaSui01/factflow/types"
)

// StoreHit 子查询命中，Rank 从 1 开始
type StoreHit struct {
	EvidenceID string   `json:"evidence_id"`
	Content    string   `json:"content"`
	SourceURL  string   `json:"source_url,omitempty"`
	Rank       int      `json:"rank"`
	Similarity *float64 `json:"similarity,omitempty"`
}

// EvidenceStore 证据库接口
type EvidenceStore interface {
	// VectorQuery 语义子查询，按相似度降序返回至多 topK 条
	VectorQuery(ctx context.Context, embedding []float64, topK int, filters types.Filters) ([]StoreHit, error)

	// KeywordQuery 词法子查询，按相关度降序返回至多 topK 条
	KeywordQuery(ctx context.Context, text string, topK int, filters types.Filters) ([]StoreHit, error)
}

// EvidenceRecord 证据库中的一条证据
type EvidenceRecord struct {
	ID          string     `json:"id"`
	Content     string     `json:"content"`
	SourceURL   string     `json:"source_url,omitempty"`
	Source      string     `json:"source,omitempty"`
	TenantID    string     `json:"tenant_id,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Embedding   []float64  `json:"embedding,omitempty"`
}

// QueryObserver receives sub-query timings.
type QueryObserver interface {
	RecordDBQuery(database, operation string, duration time.Duration)
}

// rankHits assigns 1-indexed ranks in slice order.
func rankHits(hits []StoreHit) []StoreHit {
	for i := range hits {
		hits[i].Rank = i + 1
	}
	return hits
}
