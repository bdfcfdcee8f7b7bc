package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/factflow/types"
)

// PostgresStoreConfig Postgres 证据库配置
type PostgresStoreConfig struct {
	Table            string `json:"table"`
	TextSearchConfig string `json:"text_search_config"`
}

// DefaultPostgresStoreConfig 返回默认配置
func DefaultPostgresStoreConfig() PostgresStoreConfig {
	return PostgresStoreConfig{
		Table:            "evidence",
		TextSearchConfig: "english",
	}
}

// PostgresEvidenceStore 基于 gorm + pgvector 的证据库。
// 表结构见 internal/migration 的 postgres 迁移脚本。
type PostgresEvidenceStore struct {
	db       *gorm.DB
	config   PostgresStoreConfig
	observer QueryObserver
	logger   *zap.Logger
}

var _ EvidenceStore = (*PostgresEvidenceStore)(nil)

// NewPostgresEvidenceStore 创建 Postgres 证据库
func NewPostgresEvidenceStore(db *gorm.DB, config PostgresStoreConfig, logger *zap.Logger) *PostgresEvidenceStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultPostgresStoreConfig()
	if config.Table == "" {
		config.Table = def.Table
	}
	if config.TextSearchConfig == "" {
		config.TextSearchConfig = def.TextSearchConfig
	}
	return &PostgresEvidenceStore{
		db:     db,
		config: config,
		logger: logger.With(zap.String("component", "postgres_evidence_store")),
	}
}

// WithObserver reports query durations to o.
func (s *PostgresEvidenceStore) WithObserver(o QueryObserver) *PostgresEvidenceStore {
	s.observer = o
	return s
}

type vectorRow struct {
	ID        string
	Content   string
	SourceURL string
	Distance  float64
}

type keywordRow struct {
	ID        string
	Content   string
	SourceURL string
	Score     float64
}

// VectorQuery orders by pgvector cosine distance.
func (s *PostgresEvidenceStore) VectorQuery(ctx context.Context, embedding []float64, topK int, filters types.Filters) ([]StoreHit, error) {
	if len(embedding) == 0 {
		return nil, ErrNoEmbedding
	}

	where, args := compileFilters(filters)
	query := fmt.Sprintf(
		"SELECT id, content, source_url, embedding <=> ?::vector AS distance FROM %s WHERE embedding IS NOT NULL%s ORDER BY distance ASC, id ASC LIMIT ?",
		s.config.Table, where)
	args = append([]any{vectorLiteral(embedding)}, args...)
	args = append(args, topK)

	var rows []vectorRow
	start := time.Now()
	err := s.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error
	s.observe("vector_query", time.Since(start))
	if err != nil {
		s.logger.Debug("vector query failed", zap.Error(err))
		return nil, fmt.Errorf("vector query: %w", err)
	}

	hits := make([]StoreHit, len(rows))
	for i, r := range rows {
		sim := 1 - r.Distance
		hits[i] = StoreHit{EvidenceID: r.ID, Content: r.Content, SourceURL: r.SourceURL, Similarity: &sim}
	}
	return rankHits(hits), nil
}

// KeywordQuery matches any query term against the content_tsv column and
// orders by ts_rank_cd.
func (s *PostgresEvidenceStore) KeywordQuery(ctx context.Context, text string, topK int, filters types.Filters) ([]StoreHit, error) {
	tsquery := buildTSQuery(text)
	if tsquery == "" {
		return []StoreHit{}, nil
	}

	where, args := compileFilters(filters)
	query := fmt.Sprintf(
		"SELECT id, content, source_url, ts_rank_cd(content_tsv, q) AS score FROM %s, to_tsquery(?::regconfig, ?) q WHERE content_tsv @@ q%s ORDER BY score DESC, id ASC LIMIT ?",
		s.config.Table, where)
	args = append([]any{s.config.TextSearchConfig, tsquery}, args...)
	args = append(args, topK)

	var rows []keywordRow
	start := time.Now()
	err := s.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error
	s.observe("keyword_query", time.Since(start))
	if err != nil {
		s.logger.Debug("keyword query failed", zap.Error(err))
		return nil, fmt.Errorf("keyword query: %w", err)
	}

	hits := make([]StoreHit, len(rows))
	for i, r := range rows {
		hits[i] = StoreHit{EvidenceID: r.ID, Content: r.Content, SourceURL: r.SourceURL}
	}
	return rankHits(hits), nil
}

func (s *PostgresEvidenceStore) observe(op string, d time.Duration) {
	if s.observer != nil {
		s.observer.RecordDBQuery("postgres", op, d)
	}
}

// compileFilters renders filters as AND clauses with positional args.
func compileFilters(f types.Filters) (string, []any) {
	var (
		b    strings.Builder
		args []any
	)
	if f.TenantID != "" {
		b.WriteString(" AND tenant_id = ?")
		args = append(args, f.TenantID)
	}
	if len(f.Sources) > 0 {
		b.WriteString(" AND source IN ?")
		args = append(args, f.Sources)
	}
	if f.PublishedAfter != nil {
		b.WriteString(" AND published_at >= ?")
		args = append(args, *f.PublishedAfter)
	}
	if f.PublishedBefore != nil {
		b.WriteString(" AND published_at <= ?")
		args = append(args, *f.PublishedBefore)
	}
	return b.String(), args
}

// buildTSQuery ORs the claim terms. tokenize strips tsquery operators.
func buildTSQuery(text string) string {
	terms := tokenize(text)
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return strings.Join(out, " | ")
}
