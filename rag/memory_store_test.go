package rag

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/factflow/types"
)

func seededStore(t *testing.T) *InMemoryEvidenceStore {
	t.Helper()
	jan := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	jun := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	s := NewInMemoryEvidenceStore(zap.NewNop())
	require.NoError(t, s.Add(
		EvidenceRecord{ID: "e1", Content: "The Eiffel Tower is in Paris", Source: "wiki", TenantID: "acme", PublishedAt: &jan, Embedding: []float64{1, 0, 0}},
		EvidenceRecord{ID: "e2", Content: "Paris is the capital of France", Source: "news", TenantID: "acme", PublishedAt: &jun, Embedding: []float64{0.8, 0.2, 0}},
		EvidenceRecord{ID: "e3", Content: "Berlin is the capital of Germany", Source: "wiki", TenantID: "other", Embedding: []float64{0, 1, 0}},
		EvidenceRecord{ID: "e4", Content: "No vector for this Paris note", Source: "wiki", TenantID: "acme"},
	))
	return s
}

func TestInMemoryEvidenceStore_VectorQuery(t *testing.T) {
	s := seededStore(t)

	hits, err := s.VectorQuery(context.Background(), []float64{1, 0, 0}, 2, types.Filters{})
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "e1", hits[0].EvidenceID)
	assert.Equal(t, 1, hits[0].Rank)
	require.NotNil(t, hits[0].Similarity)
	assert.InDelta(t, 1.0, *hits[0].Similarity, 1e-9)
	assert.Equal(t, "e2", hits[1].EvidenceID)
	assert.Equal(t, 2, hits[1].Rank)
}

func TestInMemoryEvidenceStore_VectorQuerySkipsRecordsWithoutEmbedding(t *testing.T) {
	s := seededStore(t)

	hits, err := s.VectorQuery(context.Background(), []float64{1, 0, 0}, 10, types.Filters{})
	require.NoError(t, err)
	assert.Len(t, hits, 3)
	for _, h := range hits {
		assert.NotEqual(t, "e4", h.EvidenceID)
	}
}

func TestInMemoryEvidenceStore_VectorQueryDimensionMismatch(t *testing.T) {
	s := seededStore(t)

	_, err := s.VectorQuery(context.Background(), []float64{1, 0}, 2, types.Filters{})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))

	_, err = s.VectorQuery(context.Background(), nil, 2, types.Filters{})
	assert.ErrorIs(t, err, ErrNoEmbedding)
}

func TestInMemoryEvidenceStore_KeywordQuery(t *testing.T) {
	s := seededStore(t)

	hits, err := s.KeywordQuery(context.Background(), "capital of France", 10, types.Filters{})
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	assert.Equal(t, "e2", hits[0].EvidenceID)
	assert.Nil(t, hits[0].Similarity)
	for _, h := range hits {
		assert.NotEqual(t, "e1", h.EvidenceID)
	}
}

func TestInMemoryEvidenceStore_KeywordQueryNoTerms(t *testing.T) {
	s := seededStore(t)

	hits, err := s.KeywordQuery(context.Background(), "?!", 10, types.Filters{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestInMemoryEvidenceStore_Filters(t *testing.T) {
	s := seededStore(t)
	after := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		filters types.Filters
		want    []string
	}{
		{"tenant", types.Filters{TenantID: "acme"}, []string{"e1", "e2", "e4"}},
		{"source", types.Filters{Sources: []string{"news"}}, []string{"e2"}},
		{"published after", types.Filters{PublishedAfter: &after}, []string{"e2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := s.KeywordQuery(context.Background(), "paris capital berlin", 10, tt.filters)
			require.NoError(t, err)

			var got []string
			for _, h := range hits {
				got = append(got, h.EvidenceID)
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestInMemoryEvidenceStore_AddReplaces(t *testing.T) {
	s := seededStore(t)
	require.Equal(t, 4, s.Count())

	require.NoError(t, s.Add(EvidenceRecord{ID: "e3", Content: "Rome is in Italy", Embedding: []float64{0, 0, 1}}))
	assert.Equal(t, 4, s.Count())

	hits, err := s.KeywordQuery(context.Background(), "berlin", 10, types.Filters{})
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = s.KeywordQuery(context.Background(), "rome", 10, types.Filters{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "e3", hits[0].EvidenceID)
}

func TestInMemoryEvidenceStore_AddValidation(t *testing.T) {
	s := NewInMemoryEvidenceStore(nil)

	assert.Error(t, s.Add(EvidenceRecord{Content: "no id"}))
	require.NoError(t, s.Add(EvidenceRecord{ID: "a", Embedding: []float64{1, 2}}))
	assert.Error(t, s.Add(EvidenceRecord{ID: "b", Embedding: []float64{1, 2, 3}}))
}

func TestInMemoryEvidenceStore_CanceledContext(t *testing.T) {
	s := seededStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.KeywordQuery(ctx, "paris", 10, types.Filters{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInMemoryEvidenceStore_WithRetriever(t *testing.T) {
	s := seededStore(t)
	r := NewHybridRetriever(s, DefaultRetrieverConfig(), zap.NewNop())

	res, err := r.Search(context.Background(), SearchRequest{
		Embedding: []float64{0.9, 0.1, 0},
		Text:      "Paris capital",
		TopK:      3,
	})
	require.NoError(t, err)
	assert.Equal(t, types.RetrievalHybrid, res.Mode)
	require.Len(t, res.Candidates, 3)
	assert.Equal(t, "e2", res.Candidates[0].EvidenceID)
}
