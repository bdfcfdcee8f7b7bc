package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/factflow/internal/ctxkeys"
	"github.com/BaSui01/factflow/internal/pool"
	"github.com/BaSui01/factflow/internal/telemetry"
	"github.com/BaSui01/factflow/llm/embedding"
	"github.com/BaSui01/factflow/rag"
	"github.com/BaSui01/factflow/scoring"
	"github.com/BaSui01/factflow/types"
)

// ModelSource supplies the claim embedder. *models.Cache satisfies it.
type ModelSource interface {
	Embedder(ctx context.Context) (embedding.Provider, error)
	ReleasePressure()
}

// Retriever finds evidence candidates. *rag.HybridRetriever satisfies it.
type Retriever interface {
	Search(ctx context.Context, req rag.SearchRequest) (*rag.SearchResult, error)
	SearchKeywordOnly(ctx context.Context, text string, topK int, filters types.Filters) ([]types.EvidenceCandidate, error)
	Config() rag.RetrieverConfig
}

// Scorer runs entailment over (evidence, claim) pairs. *scoring.Scorer satisfies it.
type Scorer interface {
	ScoreBatch(ctx context.Context, pairs []scoring.Pair) (*scoring.Report, error)
}

// Aggregator turns scored evidence into a verdict. *aggregation.Aggregator satisfies it.
type Aggregator interface {
	Aggregate(results []types.EntailmentResult, candidates []types.EvidenceCandidate) types.VerificationResult
}

// Recorder persists finished results. Errors are logged, never returned to the caller.
type Recorder interface {
	Record(ctx context.Context, result *types.VerificationResult) error
}

// MetricsRecorder receives per-claim metrics. *metrics.Collector satisfies it.
type MetricsRecorder interface {
	RecordVerification(verdict, retrievalMode string, duration time.Duration)
	RecordStage(stage string, duration time.Duration)
	RecordRetrieval(mode string, candidates int)
	RecordDegradation(code, stage string)
	RecordScoringPairs(ok, failed int)
}

// Dependencies 管线依赖；Recorder 与 Metrics 可为空
type Dependencies struct {
	Models     ModelSource
	Retriever  Retriever
	Scorer     Scorer
	Aggregator Aggregator
	Pool       *pool.GoroutinePool
	Recorder   Recorder
	Metrics    MetricsRecorder
}

// StageError is the terminal error of a claim, tagged with the stage it failed in.
type StageError struct {
	Stage types.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("verification failed at %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Verifier 声明验证管线
type Verifier struct {
	models     ModelSource
	retriever  Retriever
	scorer     Scorer
	aggregator Aggregator
	pool       *pool.GoroutinePool
	recorder   Recorder
	metrics    MetricsRecorder

	config      Config
	tracer      trace.Tracer
	instruments *instruments
	logger      *zap.Logger
}

// New 创建验证管线
func New(deps Dependencies, config Config, logger *zap.Logger) (*Verifier, error) {
	switch {
	case deps.Models == nil:
		return nil, errors.New("pipeline: model source is required")
	case deps.Retriever == nil:
		return nil, errors.New("pipeline: retriever is required")
	case deps.Scorer == nil:
		return nil, errors.New("pipeline: scorer is required")
	case deps.Aggregator == nil:
		return nil, errors.New("pipeline: aggregator is required")
	case deps.Pool == nil:
		return nil, errors.New("pipeline: inference pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "verifier"))

	return &Verifier{
		models:      deps.Models,
		retriever:   deps.Retriever,
		scorer:      deps.Scorer,
		aggregator:  deps.Aggregator,
		pool:        deps.Pool,
		recorder:    deps.Recorder,
		metrics:     deps.Metrics,
		config:      config.withDefaults(),
		tracer:      telemetry.Tracer(),
		instruments: newInstruments(logger),
		logger:      logger,
	}, nil
}

// Config returns the effective configuration.
func (v *Verifier) Config() Config {
	return v.config
}

// ValidateOptions checks opts, including the configured per-request limits.
func (v *Verifier) ValidateOptions(opts Options) error {
	return opts.ValidateFor(v.config)
}

// run carries the state of one claim through the stages.
type run struct {
	claim        types.Claim
	topK         int
	weights      *rag.Weights
	mode         types.RetrievalMode
	candidates   []types.EvidenceCandidate
	results      []types.EntailmentResult
	degradations []types.Degradation
	overBudget   bool
}

func (r *run) degrade(code types.ErrorCode, stage types.Stage, msg string) {
	r.degradations = append(r.degradations, types.Degradation{Code: code, Stage: stage, Message: msg})
}

func (r *run) budgetExceeded(stage types.Stage, msg string) {
	if r.overBudget {
		return
	}
	r.overBudget = true
	r.degrade(types.ErrBudgetExceeded, stage, msg)
}

// Verify runs one claim through embedding, retrieval, scoring and
// aggregation. It returns an error only for invalid input, a claim the
// caller abandoned, or when neither an embedding nor keyword retrieval is
// available. Every other failure degrades the result.
func (v *Verifier) Verify(ctx context.Context, text string, opts Options) (*types.VerificationResult, error) {
	start := time.Now()

	if err := v.ValidateOptions(opts); err != nil {
		return nil, err
	}
	filters := opts.Filters
	if filters.TenantID == "" {
		filters.TenantID = opts.TenantID
	}
	r := &run{
		claim: types.Claim{Text: strings.TrimSpace(text), TenantID: filters.TenantID, Filters: filters},
		topK:  opts.MaxEvidence,
		mode:  types.RetrievalNone,
	}
	if err := r.claim.Validate(); err != nil {
		return nil, err
	}
	if r.topK == 0 {
		r.topK = v.config.MaxEvidence
	}
	r.weights = v.weights(opts)

	budget := opts.TimeBudget
	if budget == 0 {
		budget = v.config.TimeBudget
	}

	ctx, span := v.tracer.Start(ctx, "factflow.verify", trace.WithAttributes(
		attribute.String("tenant.id", r.claim.TenantID),
		attribute.Int("claim.length", len(r.claim.Text)),
		attribute.Int("evidence.max", r.topK),
		attribute.String("budget", budget.String()),
	))
	defer span.End()

	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	overBudget := func() bool { return runCtx.Err() != nil && ctx.Err() == nil }

	// Embedding
	var (
		claimVec []float64
		embedErr error
	)
	_ = v.stage(runCtx, types.StageEmbedding, func(sctx context.Context) error {
		claimVec, embedErr = v.embed(sctx, r.claim.Text)
		return embedErr
	})
	if err := ctx.Err(); err != nil {
		return nil, v.fail(ctx, span, r, types.StageEmbedding, err, start)
	}
	if embedErr != nil {
		if overBudget() {
			r.budgetExceeded(types.StageEmbedding, "time budget exhausted while embedding the claim")
		} else {
			r.degrade(types.ErrRetrievalDegraded, types.StageEmbedding,
				"claim embedding unavailable, using keyword retrieval only")
		}
	}

	// Retrieval
	if !r.overBudget {
		err := v.stage(runCtx, types.StageRetrieval, func(sctx context.Context) error {
			return v.retrieve(sctx, r, claimVec, embedErr)
		})
		if cerr := ctx.Err(); cerr != nil {
			return nil, v.fail(ctx, span, r, types.StageRetrieval, cerr, start)
		}
		switch {
		case err != nil && overBudget():
			r.mode = types.RetrievalNone
			r.candidates = nil
			r.budgetExceeded(types.StageRetrieval, "time budget exhausted during retrieval")
		case err != nil && embedErr != nil:
			cause := types.NewProviderUnavailableError("embedding", errors.Join(embedErr, err))
			return nil, v.fail(ctx, span, r, types.StageEmbedding, cause, start)
		case err != nil:
			return nil, v.fail(ctx, span, r, types.StageRetrieval, err, start)
		case overBudget():
			r.budgetExceeded(types.StageRetrieval, "time budget exhausted during retrieval")
		}
		if v.metrics != nil {
			v.metrics.RecordRetrieval(string(r.mode), len(r.candidates))
		}
	}

	// Scoring
	if !r.overBudget && len(r.candidates) > 0 {
		pairs := make([]scoring.Pair, 0, len(r.candidates))
		for _, c := range r.candidates {
			pairs = append(pairs, scoring.Pair{EvidenceID: c.EvidenceID, Premise: c.Content, Hypothesis: r.claim.Text})
		}
		err := v.stage(runCtx, types.StageScoring, func(sctx context.Context) error {
			return v.score(sctx, r, pairs)
		})
		if cerr := ctx.Err(); cerr != nil {
			return nil, v.fail(ctx, span, r, types.StageScoring, cerr, start)
		}
		if err != nil {
			if overBudget() {
				r.budgetExceeded(types.StageScoring, "time budget exhausted before scoring")
			} else {
				r.degrade(types.ErrProviderUnavailable, types.StageScoring,
					fmt.Sprintf("entailment scoring unavailable: %v", err))
			}
		}
		if len(pairs) > v.config.PressureThreshold {
			v.models.ReleasePressure()
		}
	}

	// Aggregation
	var agg types.VerificationResult
	_ = v.stage(runCtx, types.StageAggregation, func(context.Context) error {
		agg = v.aggregator.Aggregate(r.results, r.candidates)
		return nil
	})

	result := &agg
	result.ID = uuid.NewString()
	result.Claim = r.claim.Text
	result.TenantID = r.claim.TenantID
	result.RetrievalMode = r.mode
	result.Unscored = unscored(r.candidates, result.Evidence)
	result.Degradations = append(r.degradations, agg.Degradations...)
	result.ProcessingTime = time.Since(start)
	result.CreatedAt = start.UTC()

	v.finish(ctx, span, result)
	v.record(ctx, result)
	return result, nil
}

// unscored returns the candidates that produced no scored evidence, in
// retrieval order.
func unscored(candidates []types.EvidenceCandidate, scored []types.ScoredEvidence) []types.EvidenceCandidate {
	if len(candidates) == len(scored) {
		return nil
	}
	done := make(map[string]struct{}, len(scored))
	for _, e := range scored {
		done[e.Candidate.EvidenceID] = struct{}{}
	}
	var out []types.EvidenceCandidate
	for _, c := range candidates {
		if _, ok := done[c.EvidenceID]; !ok {
			out = append(out, c)
			done[c.EvidenceID] = struct{}{}
		}
	}
	return out
}

// BatchItem 批量验证的单条结果
type BatchItem struct {
	Result *types.VerificationResult
	Err    error
}

// VerifyBatch verifies claims concurrently, bounded by MaxConcurrentClaims.
// Items keep the input order. Claims are scored independently.
func (v *Verifier) VerifyBatch(ctx context.Context, texts []string, opts Options) []BatchItem {
	items := make([]BatchItem, len(texts))

	var g errgroup.Group
	g.SetLimit(v.config.MaxConcurrentClaims)
	for i, text := range texts {
		g.Go(func() error {
			items[i].Result, items[i].Err = v.Verify(ctx, text, opts)
			return nil
		})
	}
	_ = g.Wait()
	return items
}

func (v *Verifier) weights(opts Options) *rag.Weights {
	if opts.VectorWeight == nil && opts.KeywordWeight == nil {
		return nil
	}
	rc := v.retriever.Config()
	vw, kw := rc.VectorWeight, rc.KeywordWeight
	if opts.VectorWeight != nil {
		vw = *opts.VectorWeight
	}
	if opts.KeywordWeight != nil {
		kw = *opts.KeywordWeight
	}
	w := rag.NormalizeWeights(vw, kw)
	return &w
}

// embed runs the embedding call on the inference pool. The call keeps
// running on a detached context if ctx ends first.
func (v *Verifier) embed(ctx context.Context, text string) ([]float64, error) {
	return pool.Run(ctx, v.pool, func(taskCtx context.Context) ([]float64, error) {
		provider, err := v.models.Embedder(taskCtx)
		if err != nil {
			return nil, err
		}
		vec, err := provider.EmbedQuery(taskCtx, text)
		if err != nil {
			return nil, err
		}
		if len(vec) == 0 {
			return nil, errors.New("embedding provider returned an empty vector")
		}
		return vec, nil
	})
}

func (v *Verifier) retrieve(ctx context.Context, r *run, claimVec []float64, embedErr error) error {
	if embedErr != nil {
		candidates, err := v.retriever.SearchKeywordOnly(ctx, r.claim.Text, r.topK, r.claim.Filters)
		if err != nil {
			return err
		}
		r.mode = types.RetrievalKeywordOnly
		r.candidates = candidates
		return nil
	}

	res, err := v.retriever.Search(ctx, rag.SearchRequest{
		Embedding: claimVec,
		Text:      r.claim.Text,
		TopK:      r.topK,
		Weights:   r.weights,
		Filters:   r.claim.Filters,
	})
	if err != nil {
		return err
	}
	r.mode = res.Mode
	r.candidates = res.Candidates
	if res.Degraded {
		r.degrade(types.ErrRetrievalDegraded, types.StageRetrieval, describeDegradedSearch(res))
	}
	return nil
}

func describeDegradedSearch(res *rag.SearchResult) string {
	switch res.Mode {
	case types.RetrievalKeywordOnly:
		return fmt.Sprintf("vector search failed: %v", res.VectorErr)
	case types.RetrievalVectorOnly:
		return fmt.Sprintf("keyword search failed: %v", res.KeywordErr)
	default:
		return fmt.Sprintf("vector and keyword search failed: %v; %v", res.VectorErr, res.KeywordErr)
	}
}

func (v *Verifier) score(ctx context.Context, r *run, pairs []scoring.Pair) error {
	report, err := v.scorer.ScoreBatch(ctx, pairs)
	if err != nil {
		return err
	}
	r.results = report.Results
	if v.metrics != nil {
		v.metrics.RecordScoringPairs(len(report.Results), len(report.Failures))
	}
	if n := len(report.Failures); n > 0 {
		r.degrade(types.ErrPartialScoringFailure, types.StageScoring,
			fmt.Sprintf("%d of %d evidence pairs failed entailment scoring", n, len(pairs)))
	}
	if report.Truncated {
		r.budgetExceeded(types.StageScoring,
			fmt.Sprintf("time budget exhausted with %d of %d pairs unscored", report.Skipped, len(pairs)))
	}
	return nil
}

// stage runs fn inside a child span and records its duration.
func (v *Verifier) stage(ctx context.Context, st types.Stage, fn func(ctx context.Context) error) error {
	ctx, span := v.tracer.Start(ctx, "factflow."+string(st))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	if v.metrics != nil {
		v.metrics.RecordStage(string(st), time.Since(start))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (v *Verifier) fail(ctx context.Context, span trace.Span, r *run, st types.Stage, err error, start time.Time) error {
	serr := &StageError{Stage: st, Err: err}
	span.RecordError(serr)
	span.SetStatus(codes.Error, serr.Error())

	d := time.Since(start)
	if v.metrics != nil {
		v.metrics.RecordVerification("error", string(r.mode), d)
	}
	v.instruments.claimFailed(ctx, st)

	fields := []zap.Field{
		zap.String("stage", string(st)),
		zap.Duration("duration", d),
		zap.Error(err),
	}
	if id, ok := ctxkeys.RequestID(ctx); ok {
		fields = append(fields, zap.String("request_id", id))
	}
	v.logger.Warn("claim verification failed", fields...)
	return serr
}

func (v *Verifier) finish(ctx context.Context, span trace.Span, result *types.VerificationResult) {
	span.SetAttributes(
		attribute.String("verdict", string(result.Verdict)),
		attribute.Float64("confidence", result.Confidence),
		attribute.String("retrieval.mode", string(result.RetrievalMode)),
		attribute.Int("evidence.count", len(result.Evidence)),
		attribute.Int("degradations", len(result.Degradations)),
	)

	if v.metrics != nil {
		v.metrics.RecordVerification(string(result.Verdict), string(result.RetrievalMode), result.ProcessingTime)
		for _, d := range result.Degradations {
			v.metrics.RecordDegradation(string(d.Code), string(d.Stage))
		}
	}
	v.instruments.claimDone(ctx, result)

	fields := []zap.Field{
		zap.String("id", result.ID),
		zap.String("verdict", string(result.Verdict)),
		zap.Float64("confidence", result.Confidence),
		zap.String("retrieval_mode", string(result.RetrievalMode)),
		zap.Int("evidence", len(result.Evidence)),
		zap.Int("degradations", len(result.Degradations)),
		zap.Duration("duration", result.ProcessingTime),
	}
	if id, ok := ctxkeys.RequestID(ctx); ok {
		fields = append(fields, zap.String("request_id", id))
	}
	if result.Degraded() {
		v.logger.Info("claim verified with degradations", fields...)
		return
	}
	v.logger.Debug("claim verified", fields...)
}

func (v *Verifier) record(ctx context.Context, result *types.VerificationResult) {
	if v.recorder == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.config.RecordTimeout)
	defer cancel()
	if err := v.recorder.Record(rctx, result); err != nil {
		v.logger.Warn("failed to record verification result",
			zap.String("id", result.ID), zap.Error(err))
	}
}
