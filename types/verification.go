package types

import "time"

// Verdict 声明级结论
type Verdict string

const (
	VerdictSupported    Verdict = "SUPPORTED"
	VerdictRefuted      Verdict = "REFUTED"
	VerdictInsufficient Verdict = "INSUFFICIENT"
)

// Stage 管线阶段
type Stage string

const (
	StageEmbedding   Stage = "embedding"
	StageRetrieval   Stage = "retrieval"
	StageScoring     Stage = "scoring"
	StageAggregation Stage = "aggregation"
	StageDone        Stage = "done"
)

// RetrievalMode records which retrieval sub-queries contributed candidates.
type RetrievalMode string

const (
	RetrievalHybrid      RetrievalMode = "hybrid"
	RetrievalKeywordOnly RetrievalMode = "keyword_only"
	RetrievalVectorOnly  RetrievalMode = "vector_only"
	RetrievalNone        RetrievalMode = "none"
)

// ScoredEvidence pairs a retrieval candidate with its entailment judgment.
// Weight is confidence × similarity, the quantity the verdict vote sums.
type ScoredEvidence struct {
	Candidate EvidenceCandidate `json:"candidate"`
	Result    EntailmentResult  `json:"result"`
	Weight    float64           `json:"weight"`
}

// Votes 每个标签的加权票数
type Votes struct {
	Entailment    float64 `json:"entailment"`
	Contradiction float64 `json:"contradiction"`
	Neutral       float64 `json:"neutral"`
}

// Total returns the sum of all label votes.
func (v Votes) Total() float64 {
	return v.Entailment + v.Contradiction + v.Neutral
}

// Get returns the vote for a label.
func (v Votes) Get(l Label) float64 {
	switch l {
	case LabelEntailment:
		return v.Entailment
	case LabelContradiction:
		return v.Contradiction
	case LabelNeutral:
		return v.Neutral
	default:
		return 0
	}
}

// LabelCounts 每个标签的证据条数
type LabelCounts struct {
	Entailment    int `json:"entailment"`
	Contradiction int `json:"contradiction"`
	Neutral       int `json:"neutral"`
}

// Total returns the number of counted results.
func (c LabelCounts) Total() int {
	return c.Entailment + c.Contradiction + c.Neutral
}

// Degradation 非致命的降级记录
type Degradation struct {
	Code    ErrorCode `json:"code"`
	Stage   Stage     `json:"stage"`
	Message string    `json:"message"`
}

// VerificationResult 管线输出
type VerificationResult struct {
	ID         string           `json:"id,omitempty"`
	Claim      string           `json:"claim"`
	TenantID   string           `json:"tenant_id,omitempty"`
	Verdict    Verdict          `json:"verdict"`
	Confidence float64          `json:"confidence"`
	Evidence   []ScoredEvidence `json:"evidence"`
	// Unscored 已检索但没有得到蕴含分数的候选证据
	Unscored       []EvidenceCandidate `json:"unscored,omitempty"`
	Explanation    string              `json:"explanation"`
	Votes          Votes               `json:"votes"`
	Counts         LabelCounts         `json:"counts"`
	RetrievalMode  RetrievalMode       `json:"retrieval_mode,omitempty"`
	Degradations   []Degradation       `json:"degradations,omitempty"`
	ProcessingTime time.Duration       `json:"processing_time"`
	CreatedAt      time.Time           `json:"created_at,omitempty"`
}

// Degraded reports whether any degradation was recorded.
func (r *VerificationResult) Degraded() bool {
	return len(r.Degradations) > 0
}

// HasDegradation reports whether a degradation with the given code exists.
func (r *VerificationResult) HasDegradation(code ErrorCode) bool {
	for _, d := range r.Degradations {
		if d.Code == code {
			return true
		}
	}
	return false
}

// AddDegradation appends a degradation record.
func (r *VerificationResult) AddDegradation(code ErrorCode, stage Stage, message string) {
	r.Degradations = append(r.Degradations, Degradation{Code: code, Stage: stage, Message: message})
}
