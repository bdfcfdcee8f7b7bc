package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/factflow/internal/pool"
	"github.com/BaSui01/factflow/llm/entailment"
	"github.com/BaSui01/factflow/models"
	"github.com/BaSui01/factflow/types"
)

// scoreTolerance bounds how far a score vector may drift from summing to 1.
const scoreTolerance = 1e-3

// ErrInvalidScores marks a prediction whose score vector is unusable.
var ErrInvalidScores = errors.New("invalid entailment scores")

// EntailerSource supplies the entailment provider and its handle.
// *models.Cache satisfies it.
type EntailerSource interface {
	Entailer(ctx context.Context) (entailment.Provider, *models.Handle, error)
}

// InferenceObserver receives per-call inference timings.
type InferenceObserver interface {
	RecordInference(kind, provider, status string, duration time.Duration, items int)
}

// Config 打分配置
type Config struct {
	MaxPremiseChars  int  `json:"max_premise_chars"`
	FallbackToSingle bool `json:"fallback_to_single"`
}

// DefaultConfig 返回默认打分配置
func DefaultConfig() Config {
	return Config{
		MaxPremiseChars:  2000,
		FallbackToSingle: true,
	}
}

// Pair 一条待打分的文本对，Premise 为证据，Hypothesis 为声明
type Pair struct {
	EvidenceID string
	Premise    string
	Hypothesis string
}

// PairFailure 单条文本对失败
type PairFailure struct {
	Index      int
	EvidenceID string
	Err        error
}

// Report 批量打分结果
type Report struct {
	// Results 成功的结果，保持输入顺序
	Results  []types.EntailmentResult
	Failures []PairFailure
	// Truncated 为 true 表示 context 结束时仍有文本对未完成
	Truncated bool
	Skipped   int
	Chunks    int
}

// Scorer 蕴含打分器
type Scorer struct {
	models   EntailerSource
	pool     *pool.GoroutinePool
	config   Config
	observer InferenceObserver
	logger   *zap.Logger
}

// New 创建打分器
func New(source EntailerSource, workers *pool.GoroutinePool, config Config, logger *zap.Logger) (*Scorer, error) {
	switch {
	case source == nil:
		return nil, errors.New("scoring: model source is required")
	case workers == nil:
		return nil, errors.New("scoring: inference pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxPremiseChars < 0 {
		config.MaxPremiseChars = 0
	}
	return &Scorer{
		models: source,
		pool:   workers,
		config: config,
		logger: logger.With(zap.String("component", "entailment_scorer")),
	}, nil
}

// WithObserver reports inference calls to o.
func (s *Scorer) WithObserver(o InferenceObserver) *Scorer {
	s.observer = o
	return s
}

type pairOutcome struct {
	result types.EntailmentResult
	err    error
}

type chunk struct {
	start int
	pairs []entailment.Pair
}

// ScoreBatch scores pairs and returns results in input order. It returns an
// error only when the entailment provider cannot be obtained; per-pair
// failures are reported in Report.Failures.
func (s *Scorer) ScoreBatch(ctx context.Context, pairs []Pair) (*Report, error) {
	report := &Report{Results: []types.EntailmentResult{}}
	if len(pairs) == 0 {
		return report, nil
	}

	provider, handle, err := s.models.Entailer(ctx)
	if err != nil {
		if _, ok := types.AsError(err); ok {
			return nil, err
		}
		return nil, types.NewProviderUnavailableError(string(models.KindEntailment), err)
	}

	chunks := s.split(pairs, s.batchSize(provider, handle))
	report.Chunks = len(chunks)

	outcomes := make([][]pairOutcome, len(chunks))
	runErrs := make([]error, len(chunks))

	var g errgroup.Group
	g.SetLimit(s.pool.MaxWorkers())
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(chunks); j++ {
				runErrs[j] = err
			}
			break
		}
		g.Go(func() error {
			out, err := pool.Run(ctx, s.pool, func(taskCtx context.Context) ([]pairOutcome, error) {
				return s.runChunk(ctx, taskCtx, provider, pairs[c.start:c.start+len(c.pairs)], c.pairs), nil
			})
			outcomes[i], runErrs[i] = out, err
			return nil
		})
	}
	_ = g.Wait()

	for i, c := range chunks {
		if err := runErrs[i]; err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				report.Truncated = true
				report.Skipped += len(c.pairs)
				continue
			}
			for j := range c.pairs {
				report.Failures = append(report.Failures, PairFailure{
					Index:      c.start + j,
					EvidenceID: pairs[c.start+j].EvidenceID,
					Err:        err,
				})
			}
			continue
		}
		for j, o := range outcomes[i] {
			idx := c.start + j
			if o.err != nil {
				report.Failures = append(report.Failures, PairFailure{
					Index:      idx,
					EvidenceID: pairs[idx].EvidenceID,
					Err:        o.err,
				})
				continue
			}
			report.Results = append(report.Results, o.result)
		}
	}

	if len(report.Failures) > 0 || report.Truncated {
		s.logger.Warn("entailment scoring incomplete",
			zap.Int("pairs", len(pairs)),
			zap.Int("scored", len(report.Results)),
			zap.Int("failed", len(report.Failures)),
			zap.Int("skipped", report.Skipped),
			zap.Bool("truncated", report.Truncated))
	} else {
		s.logger.Debug("entailment scoring completed",
			zap.Int("pairs", len(pairs)),
			zap.Int("chunks", len(chunks)),
			zap.String("device", handle.Device.String()))
	}

	return report, nil
}

func (s *Scorer) batchSize(provider entailment.Provider, handle *models.Handle) int {
	size := 1
	if handle != nil && handle.OptimalBatchSize > 0 {
		size = handle.OptimalBatchSize
	}
	if m := provider.MaxBatchSize(); m > 0 && m < size {
		size = m
	}
	return size
}

func (s *Scorer) split(pairs []Pair, size int) []chunk {
	chunks := make([]chunk, 0, (len(pairs)+size-1)/size)
	for start := 0; start < len(pairs); start += size {
		end := min(start+size, len(pairs))
		in := make([]entailment.Pair, 0, end-start)
		for _, p := range pairs[start:end] {
			in = append(in, entailment.Pair{
				Premise:    truncateRunes(p.Premise, s.config.MaxPremiseChars),
				Hypothesis: p.Hypothesis,
			})
		}
		chunks = append(chunks, chunk{start: start, pairs: in})
	}
	return chunks
}

// runChunk scores one chunk. A failed batch call is retried pair by pair
// when configured, stopping once ctx ends.
func (s *Scorer) runChunk(ctx, taskCtx context.Context, provider entailment.Provider, src []Pair, in []entailment.Pair) []pairOutcome {
	out := make([]pairOutcome, len(in))

	preds, err := s.infer(taskCtx, provider, in)
	if err == nil {
		for i := range in {
			out[i] = toOutcome(src[i].EvidenceID, preds[i])
		}
		return out
	}

	if !s.config.FallbackToSingle || len(in) == 1 {
		for i := range out {
			out[i].err = err
		}
		return out
	}

	s.logger.Debug("chunk failed, retrying pairs individually",
		zap.Int("pairs", len(in)), zap.Error(err))

	for i := range in {
		if ctx.Err() != nil {
			out[i].err = ctx.Err()
			continue
		}
		single, serr := s.infer(taskCtx, provider, in[i:i+1])
		if serr != nil {
			out[i].err = serr
			continue
		}
		out[i] = toOutcome(src[i].EvidenceID, single[0])
	}
	return out
}

func (s *Scorer) infer(ctx context.Context, provider entailment.Provider, in []entailment.Pair) ([]entailment.Prediction, error) {
	start := time.Now()
	preds, err := provider.InferBatch(ctx, in)
	if err == nil && len(preds) != len(in) {
		err = types.NewError(types.ErrInvalidProviderPayload,
			fmt.Sprintf("provider returned %d predictions for %d pairs", len(preds), len(in))).
			WithProvider(provider.Name())
	}
	if s.observer != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.observer.RecordInference(string(models.KindEntailment), provider.Name(), status, time.Since(start), len(in))
	}
	return preds, err
}

func toOutcome(evidenceID string, pred entailment.Prediction) pairOutcome {
	scores, err := validateScores(pred.Scores)
	if err != nil {
		return pairOutcome{err: err}
	}
	return pairOutcome{result: types.NewEntailmentResult(evidenceID, scores)}
}

// validateScores requires exactly the three known labels with finite,
// non-negative probabilities summing to 1 within scoreTolerance. Small
// drift is renormalised away.
func validateScores(scores map[types.Label]float64) ([3]float64, error) {
	var out [3]float64
	if len(scores) != len(out) {
		return out, fmt.Errorf("%w: expected %d labels, got %d", ErrInvalidScores, len(out), len(scores))
	}

	sum := 0.0
	for i, label := range types.Labels() {
		v, ok := scores[label]
		if !ok {
			return out, fmt.Errorf("%w: missing label %q", ErrInvalidScores, label)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return out, fmt.Errorf("%w: %s score %v", ErrInvalidScores, label, v)
		}
		out[i] = v
		sum += v
	}

	if math.Abs(sum-1) > scoreTolerance {
		return out, fmt.Errorf("%w: scores sum to %.6f", ErrInvalidScores, sum)
	}
	for i := range out {
		out[i] /= sum
	}
	return out, nil
}

// truncateRunes keeps the first n runes of s; n <= 0 disables truncation.
func truncateRunes(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
