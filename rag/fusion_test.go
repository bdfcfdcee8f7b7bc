package rag

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func hitsOf(ids ...string) []StoreHit {
	hits := make([]StoreHit, len(ids))
	for i, id := range ids {
		hits[i] = StoreHit{EvidenceID: id, Content: "content " + id}
	}
	return rankHits(hits)
}

func TestNormalizeWeights(t *testing.T) {
	tests := []struct {
		name            string
		vector, keyword float64
		want            Weights
	}{
		{"equal", 0.5, 0.5, Weights{0.5, 0.5}},
		{"unnormalized", 3, 1, Weights{0.75, 0.25}},
		{"both zero", 0, 0, Weights{0.5, 0.5}},
		{"negative vector", -1, 2, Weights{0, 1}},
		{"both negative", -1, -1, Weights{0.5, 0.5}},
		{"keyword only", 0, 0.2, Weights{0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeWeights(tt.vector, tt.keyword)
			assert.InDelta(t, tt.want.Vector, got.Vector, 1e-12)
			assert.InDelta(t, tt.want.Keyword, got.Keyword, 1e-12)
		})
	}
}

func TestFuse_BothListsScore(t *testing.T) {
	vector := hitsOf("a", "b")
	keyword := hitsOf("b", "c")

	out := Fuse(vector, keyword, Weights{Vector: 0.5, Keyword: 0.5}, 60)
	require.Len(t, out, 3)

	// b: 0.5/62 + 0.5/61 beats a: 0.5/61 and c: 0.5/62
	assert.Equal(t, "b", out[0].EvidenceID)
	assert.Equal(t, "a", out[1].EvidenceID)
	assert.Equal(t, "c", out[2].EvidenceID)

	assert.InDelta(t, 0.5/62+0.5/61, out[0].FusedScore, 1e-12)
	require.NotNil(t, out[0].RankVector)
	require.NotNil(t, out[0].RankKeyword)
	assert.Equal(t, 2, *out[0].RankVector)
	assert.Equal(t, 1, *out[0].RankKeyword)

	assert.Nil(t, out[1].RankKeyword)
	assert.Nil(t, out[2].RankVector)
}

func TestFuse_MissingRankContributesZero(t *testing.T) {
	out := Fuse(hitsOf("only"), nil, Weights{Vector: 1, Keyword: 1}, 60)
	require.Len(t, out, 1)
	assert.InDelta(t, 0.5/61, out[0].FusedScore, 1e-12)
}

func TestFuse_TiesBrokenByBestRankThenID(t *testing.T) {
	// a is rank 1 in vector, z is rank 1 in keyword: equal scores under
	// equal weights, equal best rank, so the ID decides.
	out := Fuse(hitsOf("z"), hitsOf("a"), Weights{Vector: 0.5, Keyword: 0.5}, 60)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].EvidenceID)
	assert.Equal(t, "z", out[1].EvidenceID)
}

func TestFuse_DuplicateWithinListKeepsBestRank(t *testing.T) {
	vector := []StoreHit{{EvidenceID: "x"}, {EvidenceID: "y"}, {EvidenceID: "x"}}
	out := Fuse(vector, nil, Weights{Vector: 1}, 60)
	require.Len(t, out, 2)
	assert.Equal(t, "x", out[0].EvidenceID)
	assert.Equal(t, 1, *out[0].RankVector)
	assert.Equal(t, 2, *out[1].RankVector)
}

func TestFuse_DefaultK(t *testing.T) {
	out := Fuse(hitsOf("a"), nil, Weights{Vector: 1}, 0)
	require.Len(t, out, 1)
	assert.InDelta(t, 1.0/(DefaultRRFK+1), out[0].FusedScore, 1e-12)
}

func TestFuse_CarriesSimilarityFromVectorList(t *testing.T) {
	sim := 0.87
	vector := []StoreHit{{EvidenceID: "a", Similarity: &sim}}
	keyword := []StoreHit{{EvidenceID: "a", Content: "from keyword", SourceURL: "https://k"}}

	out := Fuse(vector, keyword, Weights{Vector: 0.5, Keyword: 0.5}, 60)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].Similarity)
	assert.Equal(t, 0.87, *out[0].Similarity)
	assert.Equal(t, "from keyword", out[0].Content)
	assert.Equal(t, "https://k", out[0].SourceURL)
}

func TestFuse_Empty(t *testing.T) {
	assert.Empty(t, Fuse(nil, nil, Weights{}, 60))
}

func genIDs(t *rapid.T, label string) []StoreHit {
	n := rapid.IntRange(0, 20).Draw(t, label+"_len")
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("e%02d", rapid.IntRange(0, 30).Draw(t, fmt.Sprintf("%s_%d", label, i)))
	}
	return hitsOf(ids...)
}

func TestFuse_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		vector := genIDs(t, "vector")
		keyword := genIDs(t, "keyword")
		w := Weights{
			Vector:  rapid.Float64Range(-1, 5).Draw(t, "wv"),
			Keyword: rapid.Float64Range(-1, 5).Draw(t, "wk"),
		}

		a := Fuse(vector, keyword, w, 60)
		b := Fuse(vector, keyword, w, 60)
		if len(a) != len(b) {
			t.Fatalf("non-deterministic length %d vs %d", len(a), len(b))
		}

		seen := make(map[string]bool)
		for i := range a {
			if a[i].EvidenceID != b[i].EvidenceID || a[i].FusedScore != b[i].FusedScore {
				t.Fatalf("non-deterministic order at %d", i)
			}
			if seen[a[i].EvidenceID] {
				t.Fatalf("duplicate evidence id %s", a[i].EvidenceID)
			}
			seen[a[i].EvidenceID] = true
			if a[i].FusedScore < 0 {
				t.Fatalf("negative score %f", a[i].FusedScore)
			}
			if i > 0 && a[i-1].FusedScore < a[i].FusedScore {
				t.Fatalf("scores not descending at %d", i)
			}
		}

		for _, h := range append(append([]StoreHit{}, vector...), keyword...) {
			if !seen[h.EvidenceID] {
				t.Fatalf("missing evidence id %s", h.EvidenceID)
			}
		}
	})
}

func TestNormalizeWeights_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.Float64Range(-10, 10).Draw(t, "v")
		k := rapid.Float64Range(-10, 10).Draw(t, "k")
		w := NormalizeWeights(v, k)
		if w.Vector < 0 || w.Keyword < 0 {
			t.Fatalf("negative weight %+v", w)
		}
		if sum := w.Vector + w.Keyword; sum < 1-1e-9 || sum > 1+1e-9 {
			t.Fatalf("weights sum to %f", sum)
		}
	})
}
