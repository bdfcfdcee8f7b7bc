package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/factflow/types"
)

// BM25 参数
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

type indexedRecord struct {
	EvidenceRecord
	termFreq map[string]int
	length   int
}

// InMemoryEvidenceStore 内存证据库（余弦相似度 + BM25）
type InMemoryEvidenceStore struct {
	mu        sync.RWMutex
	records   []indexedRecord
	byID      map[string]int
	docFreq   map[string]int
	totalLen  int
	dimension int
	logger    *zap.Logger
}

var _ EvidenceStore = (*InMemoryEvidenceStore)(nil)

// NewInMemoryEvidenceStore 创建内存证据库
func NewInMemoryEvidenceStore(logger *zap.Logger) *InMemoryEvidenceStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryEvidenceStore{
		byID:    make(map[string]int),
		docFreq: make(map[string]int),
		logger:  logger.With(zap.String("component", "memory_evidence_store")),
	}
}

// Add 添加或替换证据。所有带向量的证据维度必须一致。
func (s *InMemoryEvidenceStore) Add(records ...EvidenceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("evidence record has no id")
		}
		if len(rec.Embedding) > 0 {
			if s.dimension == 0 {
				s.dimension = len(rec.Embedding)
			} else if len(rec.Embedding) != s.dimension {
				return fmt.Errorf("evidence %s: embedding dimension %d, store uses %d",
					rec.ID, len(rec.Embedding), s.dimension)
			}
		}

		terms := tokenize(rec.Content)
		ir := indexedRecord{
			EvidenceRecord: rec,
			termFreq:       make(map[string]int, len(terms)),
			length:         len(terms),
		}
		for _, t := range terms {
			ir.termFreq[t]++
		}

		if i, ok := s.byID[rec.ID]; ok {
			s.unindex(s.records[i])
			s.records[i] = ir
		} else {
			s.byID[rec.ID] = len(s.records)
			s.records = append(s.records, ir)
		}
		s.index(ir)
	}

	s.logger.Debug("evidence added", zap.Int("count", len(records)), zap.Int("total", len(s.records)))
	return nil
}

func (s *InMemoryEvidenceStore) index(r indexedRecord) {
	s.totalLen += r.length
	for t := range r.termFreq {
		s.docFreq[t]++
	}
}

func (s *InMemoryEvidenceStore) unindex(r indexedRecord) {
	s.totalLen -= r.length
	for t := range r.termFreq {
		if s.docFreq[t]--; s.docFreq[t] <= 0 {
			delete(s.docFreq, t)
		}
	}
}

// Count 返回证据条数
func (s *InMemoryEvidenceStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

type scoredRecord struct {
	rec   *indexedRecord
	score float64
}

// VectorQuery ranks by cosine similarity.
func (s *InMemoryEvidenceStore) VectorQuery(ctx context.Context, embedding []float64, topK int, filters types.Filters) ([]StoreHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(embedding) == 0 {
		return nil, ErrNoEmbedding
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dimension != 0 && len(embedding) != s.dimension {
		return nil, types.NewInvalidRequestError(
			fmt.Sprintf("query embedding dimension %d, store uses %d", len(embedding), s.dimension))
	}

	scored := make([]scoredRecord, 0, len(s.records))
	for i := range s.records {
		r := &s.records[i]
		if len(r.Embedding) == 0 || !filters.Match(r.TenantID, r.Source, r.PublishedAt) {
			continue
		}
		scored = append(scored, scoredRecord{rec: r, score: cosineSimilarity(embedding, r.Embedding)})
	}

	return toHits(scored, topK, true), nil
}

// KeywordQuery ranks by BM25. Records with no matching term are excluded.
func (s *InMemoryEvidenceStore) KeywordQuery(ctx context.Context, text string, topK int, filters types.Filters) ([]StoreHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queryTerms := tokenize(text)
	if len(queryTerms) == 0 {
		return []StoreHit{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := float64(len(s.records))
	if n == 0 {
		return []StoreHit{}, nil
	}
	avgLen := float64(s.totalLen) / n
	if avgLen == 0 {
		avgLen = 1
	}

	scored := make([]scoredRecord, 0)
	for i := range s.records {
		r := &s.records[i]
		if !filters.Match(r.TenantID, r.Source, r.PublishedAt) {
			continue
		}
		score := 0.0
		for _, q := range queryTerms {
			tf, ok := r.termFreq[q]
			if !ok {
				continue
			}
			df := float64(s.docFreq[q])
			idf := math.Log((n-df+0.5)/(df+0.5) + 1.0)
			num := float64(tf) * (bm25K1 + 1.0)
			den := float64(tf) + bm25K1*(1.0-bm25B+bm25B*(float64(r.length)/avgLen))
			score += idf * num / den
		}
		if score > 0 {
			scored = append(scored, scoredRecord{rec: r, score: score})
		}
	}

	return toHits(scored, topK, false), nil
}

func toHits(scored []scoredRecord, topK int, withSimilarity bool) []StoreHit {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].rec.ID < scored[j].rec.ID
	})
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}

	hits := make([]StoreHit, len(scored))
	for i, sr := range scored {
		hits[i] = StoreHit{
			EvidenceID: sr.rec.ID,
			Content:    sr.rec.Content,
			SourceURL:  sr.rec.SourceURL,
		}
		if withSimilarity {
			sim := sr.score
			hits[i].Similarity = &sim
		}
	}
	return rankHits(hits)
}
