package rag

import (
	"sort"

	"github.com/BaSui01/factflow/types"
)

// DefaultRRFK is the standard RRF damping constant.
const DefaultRRFK = 60.0

// Weights 两个子查询的融合权重，归一化后两者之和为 1
type Weights struct {
	Vector  float64 `json:"vector"`
	Keyword float64 `json:"keyword"`
}

// NormalizeWeights clamps negatives to zero and rescales to sum to 1.
// Two zero weights become 0.5/0.5.
func NormalizeWeights(vector, keyword float64) Weights {
	if vector < 0 {
		vector = 0
	}
	if keyword < 0 {
		keyword = 0
	}
	sum := vector + keyword
	if sum == 0 {
		return Weights{Vector: 0.5, Keyword: 0.5}
	}
	return Weights{Vector: vector / sum, Keyword: keyword / sum}
}

// Fuse merges the two ranked lists with weighted RRF. Weights are
// normalized, k <= 0 falls back to DefaultRRFK. Ranks come from list
// position; an ID repeated within one list keeps its best position.
func Fuse(vector, keyword []StoreHit, weights Weights, k float64) []types.EvidenceCandidate {
	if k <= 0 {
		k = DefaultRRFK
	}
	w := NormalizeWeights(weights.Vector, weights.Keyword)

	entries := make(map[string]*types.EvidenceCandidate, len(vector)+len(keyword))
	order := make([]string, 0, len(vector)+len(keyword))

	get := func(h StoreHit) *types.EvidenceCandidate {
		e, ok := entries[h.EvidenceID]
		if !ok {
			e = &types.EvidenceCandidate{
				EvidenceID: h.EvidenceID,
				Content:    h.Content,
				SourceURL:  h.SourceURL,
			}
			entries[h.EvidenceID] = e
			order = append(order, h.EvidenceID)
		}
		return e
	}

	for i, h := range vector {
		if h.EvidenceID == "" {
			continue
		}
		e := get(h)
		if e.RankVector != nil {
			continue
		}
		rank := i + 1
		e.RankVector = &rank
		if h.Similarity != nil {
			sim := *h.Similarity
			e.Similarity = &sim
		}
	}
	for i, h := range keyword {
		if h.EvidenceID == "" {
			continue
		}
		e := get(h)
		if e.RankKeyword != nil {
			continue
		}
		rank := i + 1
		e.RankKeyword = &rank
		if e.Content == "" {
			e.Content = h.Content
		}
		if e.SourceURL == "" {
			e.SourceURL = h.SourceURL
		}
	}

	out := make([]types.EvidenceCandidate, 0, len(order))
	for _, id := range order {
		c := *entries[id]
		c.FusedScore = rrfScore(c, w, k)
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.FusedScore != b.FusedScore {
			return a.FusedScore > b.FusedScore
		}
		if ra, rb := a.BestRank(), b.BestRank(); ra != rb {
			return ra < rb
		}
		return a.EvidenceID < b.EvidenceID
	})
	return out
}

func rrfScore(c types.EvidenceCandidate, w Weights, k float64) float64 {
	score := 0.0
	if c.RankVector != nil {
		score += w.Vector / (k + float64(*c.RankVector))
	}
	if c.RankKeyword != nil {
		score += w.Keyword / (k + float64(*c.RankKeyword))
	}
	return score
}

// truncate keeps the first n candidates.
func truncate(c []types.EvidenceCandidate, n int) []types.EvidenceCandidate {
	if n >= 0 && len(c) > n {
		return c[:n]
	}
	return c
}
