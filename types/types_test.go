package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaim_Validate(t *testing.T) {
	assert.Error(t, Claim{Text: "   "}.Validate())
	assert.NoError(t, Claim{Text: "The Eiffel Tower is in Paris."}.Validate())

	after := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	before := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	err := Claim{Text: "x", Filters: Filters{PublishedAfter: &after, PublishedBefore: &before}}.Validate()
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrInvalidRequest))
}

func TestFilters_Match(t *testing.T) {
	published := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	after := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	before := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		filters Filters
		tenant  string
		source  string
		pub     *time.Time
		want    bool
	}{
		{"zero filters match everything", Filters{}, "t1", "wiki", nil, true},
		{"tenant mismatch", Filters{TenantID: "t2"}, "t1", "wiki", nil, false},
		{"source allowed", Filters{Sources: []string{"news", "wiki"}}, "", "wiki", nil, true},
		{"source rejected", Filters{Sources: []string{"news"}}, "", "wiki", nil, false},
		{"date inside range", Filters{PublishedAfter: &after, PublishedBefore: &before}, "", "", &published, true},
		{"date missing with range", Filters{PublishedAfter: &after}, "", "", nil, false},
		{"date before range", Filters{PublishedAfter: &before}, "", "", &published, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filters.Match(tt.tenant, tt.source, tt.pub))
		})
	}
}

func TestEvidenceCandidate_BestRankAndSimilarity(t *testing.T) {
	rv, rk := 4, 2
	sim := 0.8

	c := EvidenceCandidate{RankVector: &rv, RankKeyword: &rk, Similarity: &sim}
	assert.Equal(t, 2, c.BestRank())
	assert.Equal(t, 0.8, c.SimilarityOr(1.0))

	kwOnly := EvidenceCandidate{RankKeyword: &rk}
	assert.Equal(t, 2, kwOnly.BestRank())
	assert.Equal(t, 1.0, kwOnly.SimilarityOr(1.0))

	assert.Equal(t, 0, EvidenceCandidate{}.BestRank())
}

func TestNewEntailmentResult_Argmax(t *testing.T) {
	r := NewEntailmentResult("e1", [3]float64{0.1, 0.7, 0.2})
	assert.Equal(t, LabelContradiction, r.Label)
	assert.InDelta(t, 0.7, r.Confidence, 1e-9)
	assert.InDelta(t, 0.2, r.Score(LabelNeutral), 1e-9)

	tie := NewEntailmentResult("e2", [3]float64{0.4, 0.4, 0.2})
	assert.Equal(t, LabelEntailment, tie.Label)
}

func TestVerificationResult_Degradations(t *testing.T) {
	var r VerificationResult
	assert.False(t, r.Degraded())

	r.AddDegradation(ErrRetrievalDegraded, StageRetrieval, "vector query failed")
	assert.True(t, r.Degraded())
	assert.True(t, r.HasDegradation(ErrRetrievalDegraded))
	assert.False(t, r.HasDegradation(ErrBudgetExceeded))
}
