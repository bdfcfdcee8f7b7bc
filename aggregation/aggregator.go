package aggregation

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/BaSui01/factflow/types"
)

// DefaultSupportRatio and DefaultRefuteRatio scale the vote thresholds by
// the number of scored evidence items.
const (
	DefaultSupportRatio = 0.3
	DefaultRefuteRatio  = 0.3
)

// Thresholds 判定阈值系数
type Thresholds struct {
	SupportRatio float64 `json:"support_ratio"`
	RefuteRatio  float64 `json:"refute_ratio"`
}

// DefaultThresholds 返回默认阈值
func DefaultThresholds() Thresholds {
	return Thresholds{SupportRatio: DefaultSupportRatio, RefuteRatio: DefaultRefuteRatio}
}

// Validate 校验阈值范围
func (t Thresholds) Validate() error {
	if t.SupportRatio < 0 || t.SupportRatio > 1 {
		return fmt.Errorf("support ratio %v out of [0,1]", t.SupportRatio)
	}
	if t.RefuteRatio < 0 || t.RefuteRatio > 1 {
		return fmt.Errorf("refute ratio %v out of [0,1]", t.RefuteRatio)
	}
	return nil
}

// Aggregator 判定聚合器，无状态，可并发使用
type Aggregator struct {
	thresholds Thresholds
}

// NewAggregator 创建聚合器，非法阈值回退为默认值
func NewAggregator(thresholds Thresholds) *Aggregator {
	if thresholds.Validate() != nil {
		thresholds = DefaultThresholds()
	}
	return &Aggregator{thresholds: thresholds}
}

// Thresholds returns the configured thresholds.
func (a *Aggregator) Thresholds() Thresholds {
	return a.thresholds
}

// Aggregate joins results to candidates by evidence ID and derives the
// verdict. Results naming an unknown candidate are ignored and noted; a
// repeated evidence ID keeps its first result. Only the decision fields are
// filled; ID, claim and timing belong to the caller.
func (a *Aggregator) Aggregate(results []types.EntailmentResult, candidates []types.EvidenceCandidate) types.VerificationResult {
	byID := make(map[string]types.EvidenceCandidate, len(candidates))
	for _, c := range candidates {
		if _, ok := byID[c.EvidenceID]; !ok {
			byID[c.EvidenceID] = c
		}
	}

	out := types.VerificationResult{Evidence: []types.ScoredEvidence{}}
	seen := make(map[string]struct{}, len(results))
	unknown := 0

	for _, r := range results {
		cand, ok := byID[r.EvidenceID]
		if !ok {
			unknown++
			continue
		}
		if _, dup := seen[r.EvidenceID]; dup {
			continue
		}
		seen[r.EvidenceID] = struct{}{}

		w := r.Confidence * clamp01(cand.SimilarityOr(1.0))
		out.Evidence = append(out.Evidence, types.ScoredEvidence{Candidate: cand, Result: r, Weight: w})

		switch r.Label {
		case types.LabelEntailment:
			out.Votes.Entailment += w
			out.Counts.Entailment++
		case types.LabelContradiction:
			out.Votes.Contradiction += w
			out.Counts.Contradiction++
		default:
			out.Votes.Neutral += w
			out.Counts.Neutral++
		}
	}

	if unknown > 0 {
		out.AddDegradation(types.ErrUnknownEvidence, types.StageAggregation,
			fmt.Sprintf("%d result(s) referenced evidence outside this run and were ignored", unknown))
	}

	n := len(out.Evidence)
	if n == 0 {
		out.Verdict = types.VerdictInsufficient
		out.Confidence = 0
		out.AddDegradation(types.ErrEmptyEvidence, types.StageAggregation, "no scored evidence")
		out.Explanation = explain(out)
		return out
	}

	sort.SliceStable(out.Evidence, func(i, j int) bool {
		a, b := out.Evidence[i], out.Evidence[j]
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		return a.Candidate.EvidenceID < b.Candidate.EvidenceID
	})

	out.Verdict = a.decide(out.Votes, n)
	out.Confidence = confidence(out.Verdict, out.Votes)
	out.Explanation = explain(out)
	return out
}

func (a *Aggregator) decide(v types.Votes, n int) types.Verdict {
	tauSupport := a.thresholds.SupportRatio * float64(n)
	tauRefute := a.thresholds.RefuteRatio * float64(n)

	switch {
	case v.Entailment > v.Contradiction && v.Entailment > tauSupport:
		return types.VerdictSupported
	case v.Contradiction > v.Entailment && v.Contradiction > tauRefute:
		return types.VerdictRefuted
	default:
		return types.VerdictInsufficient
	}
}

func confidence(verdict types.Verdict, v types.Votes) float64 {
	total := v.Total()
	if total <= 0 {
		return 0
	}
	var win float64
	switch verdict {
	case types.VerdictSupported:
		win = v.Entailment
	case types.VerdictRefuted:
		win = v.Contradiction
	default:
		win = v.Neutral
	}
	return clamp01(win / total)
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}

var explanationTmpl = template.Must(template.New("explanation").Parse(
	`{{- if eq .Total 0 -}}
No evidence could be scored against the claim.
{{- else if eq .Verdict "SUPPORTED" -}}
{{.Counts.Entailment}} of {{.Total}} evidence items entail the claim (support {{printf "%.2f" .Votes.Entailment}} vs contradiction {{printf "%.2f" .Votes.Contradiction}}).
{{- else if eq .Verdict "REFUTED" -}}
{{.Counts.Contradiction}} of {{.Total}} evidence items contradict the claim (contradiction {{printf "%.2f" .Votes.Contradiction}} vs support {{printf "%.2f" .Votes.Entailment}}).
{{- else -}}
Evidence is inconclusive: {{.Counts.Entailment}} of {{.Total}} items entail the claim and {{.Counts.Contradiction}} contradict it, with no side above its threshold.
{{- end}}`))

type explanationData struct {
	Verdict string
	Total   int
	Counts  types.LabelCounts
	Votes   types.Votes
}

func explain(r types.VerificationResult) string {
	var b strings.Builder
	err := explanationTmpl.Execute(&b, explanationData{
		Verdict: string(r.Verdict),
		Total:   r.Counts.Total(),
		Counts:  r.Counts,
		Votes:   r.Votes,
	})
	if err != nil {
		return fmt.Sprintf("verdict %s over %d evidence items", r.Verdict, r.Counts.Total())
	}
	return b.String()
}
