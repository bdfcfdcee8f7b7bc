package types

// EvidenceCandidate 检索命中，融合后不可变
type EvidenceCandidate struct {
	EvidenceID  string   `json:"evidence_id"`
	Content     string   `json:"content"`
	SourceURL   string   `json:"source_url,omitempty"`
	RankVector  *int     `json:"rank_vector,omitempty"`
	RankKeyword *int     `json:"rank_keyword,omitempty"`
	FusedScore  float64  `json:"fused_score"`
	Similarity  *float64 `json:"similarity,omitempty"`
}

// BestRank returns the lower of the two individual ranks, or 0 when the
// candidate appears in neither list.
func (c EvidenceCandidate) BestRank() int {
	best := 0
	if c.RankVector != nil {
		best = *c.RankVector
	}
	if c.RankKeyword != nil && (best == 0 || *c.RankKeyword < best) {
		best = *c.RankKeyword
	}
	return best
}

// SimilarityOr returns the similarity or def when the candidate has none
// (keyword-only hits).
func (c EvidenceCandidate) SimilarityOr(def float64) float64 {
	if c.Similarity == nil {
		return def
	}
	return *c.Similarity
}

// Label 蕴含分类标签
type Label string

const (
	LabelEntailment    Label = "entailment"
	LabelContradiction Label = "contradiction"
	LabelNeutral       Label = "neutral"
)

// Labels returns the fixed label order used by score vectors.
func Labels() [3]Label {
	return [3]Label{LabelEntailment, LabelContradiction, LabelNeutral}
}

// Index returns the position of the label in Labels(), or -1.
func (l Label) Index() int {
	for i, x := range Labels() {
		if x == l {
			return i
		}
	}
	return -1
}

// Valid reports whether l is one of the three known labels.
func (l Label) Valid() bool {
	return l.Index() >= 0
}

// EntailmentResult 一条 (claim, evidence) 判断
type EntailmentResult struct {
	EvidenceID string     `json:"evidence_id"`
	Label      Label      `json:"label"`
	Scores     [3]float64 `json:"scores"`
	Confidence float64    `json:"confidence"`
}

// Score returns the probability assigned to the given label.
func (r EntailmentResult) Score(l Label) float64 {
	i := l.Index()
	if i < 0 {
		return 0
	}
	return r.Scores[i]
}

// NewEntailmentResult derives label and confidence from scores as argmax.
// Ties resolve in Labels() order.
func NewEntailmentResult(evidenceID string, scores [3]float64) EntailmentResult {
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return EntailmentResult{
		EvidenceID: evidenceID,
		Label:      Labels()[best],
		Scores:     scores,
		Confidence: scores[best],
	}
}
