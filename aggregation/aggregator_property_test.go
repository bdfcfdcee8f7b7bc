package aggregation

import (
	"encoding/json"
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/BaSui01/factflow/types"
)

type scoredInput struct {
	Labels []int
	Confs  []float64
	Sims   []float64
}

func genScoredInput() gopter.Gen {
	return gen.IntRange(0, 12).FlatMap(func(v any) gopter.Gen {
		n := v.(int)
		return gopter.CombineGens(
			gen.SliceOfN(n, gen.IntRange(0, 2)),
			gen.SliceOfN(n, gen.Float64Range(0.34, 1)),
			gen.SliceOfN(n, gen.Float64Range(-0.2, 1)),
		).Map(func(vals []any) scoredInput {
			return scoredInput{
				Labels: vals[0].([]int),
				Confs:  vals[1].([]float64),
				Sims:   vals[2].([]float64),
			}
		})
	}, reflect.TypeOf(scoredInput{}))
}

func (in scoredInput) build() ([]types.EntailmentResult, []types.EvidenceCandidate) {
	results := make([]types.EntailmentResult, len(in.Labels))
	cands := make([]types.EvidenceCandidate, len(in.Labels))
	for i, l := range in.Labels {
		id := fmt.Sprintf("e%02d", i)
		results[i] = result(id, types.Labels()[l], in.Confs[i])
		sim := in.Sims[i]
		cands[i] = candidate(id, &sim)
	}
	return results, cands
}

func TestProperty_AggregateIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	agg := NewAggregator(DefaultThresholds())

	properties.Property("identical inputs give byte-identical results", prop.ForAll(
		func(in scoredInput) bool {
			results, cands := in.build()
			a, errA := json.Marshal(agg.Aggregate(results, cands))
			b, errB := json.Marshal(agg.Aggregate(results, cands))
			return errA == nil && errB == nil && string(a) == string(b)
		},
		genScoredInput(),
	))

	properties.TestingRun(t)
}

func TestProperty_AggregateConfidenceBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	agg := NewAggregator(DefaultThresholds())

	properties.Property("confidence in [0,1] and verdict consistent with votes", prop.ForAll(
		func(in scoredInput) bool {
			results, cands := in.build()
			out := agg.Aggregate(results, cands)

			if out.Confidence < 0 || out.Confidence > 1 {
				t.Logf("confidence %v out of range", out.Confidence)
				return false
			}
			switch out.Verdict {
			case types.VerdictSupported:
				return out.Votes.Entailment > out.Votes.Contradiction
			case types.VerdictRefuted:
				return out.Votes.Contradiction > out.Votes.Entailment
			case types.VerdictInsufficient:
				return true
			}
			return false
		},
		genScoredInput(),
	))

	properties.Property("evidence sorted by weight descending", prop.ForAll(
		func(in scoredInput) bool {
			results, cands := in.build()
			out := agg.Aggregate(results, cands)
			for i := 1; i < len(out.Evidence); i++ {
				if out.Evidence[i-1].Weight < out.Evidence[i].Weight {
					return false
				}
			}
			return len(out.Evidence) == len(in.Labels)
		},
		genScoredInput(),
	))

	properties.TestingRun(t)
}
