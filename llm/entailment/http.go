package entailment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/BaSui01/factflow/internal/pool"
	"github.com/BaSui01/factflow/internal/tlsutil"
	"github.com/BaSui01/factflow/llm/retry"
	"github.com/BaSui01/factflow/types"
)

// HTTPProvider implements Provider against a JSON NLI endpoint.
//
//	POST {base_url}{path}
//	{"model": "...", "pairs": [{"premise": "...", "hypothesis": "..."}]}
//	→ {"results": [{"label": "entailment", "scores": {"entailment": 0.9, ...}}]}
type HTTPProvider struct {
	cfg     HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
	retry   retry.Policy
}

// NewHTTPProvider creates a new NLI provider.
func NewHTTPProvider(cfg HTTPConfig) *HTTPProvider {
	def := DefaultHTTPConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = def.MaxBatch
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimitRPS > 0 {
		burst := int(math.Ceil(cfg.RateLimitRPS))
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}

	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.MaxRetries

	return &HTTPProvider{
		cfg:     cfg,
		client:  tlsutil.NewHTTPClient(cfg.Timeout),
		limiter: limiter,
		retry:   policy,
	}
}

func (p *HTTPProvider) Name() string      { return "http-nli" }
func (p *HTTPProvider) MaxBatchSize() int { return p.cfg.MaxBatch }

type nliRequest struct {
	Model string `json:"model"`
	Pairs []Pair `json:"pairs"`
}

type nliResponse struct {
	Results []struct {
		Label  string             `json:"label"`
		Scores map[string]float64 `json:"scores"`
	} `json:"results"`
}

// InferBatch scores pairs in a single request.
func (p *HTTPProvider) InferBatch(ctx context.Context, pairs []Pair) ([]Prediction, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	if len(pairs) > p.cfg.MaxBatch {
		return nil, types.NewInvalidRequestError(
			fmt.Sprintf("batch of %d pairs exceeds max batch size %d", len(pairs), p.cfg.MaxBatch))
	}

	buf := pool.ByteBufferPool.Get()
	defer pool.ByteBufferPool.Put(buf)
	if err := json.NewEncoder(buf).Encode(nliRequest{Model: p.cfg.Model, Pairs: pairs}); err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	payload := buf.Bytes()

	nResp, err := retry.Do(ctx, p.retry, func(ctx context.Context) (*nliResponse, error) {
		return p.post(ctx, payload)
	})
	if err != nil {
		return nil, err
	}
	if len(nResp.Results) != len(pairs) {
		return nil, types.NewError(types.ErrInvalidProviderPayload,
			fmt.Sprintf("expected %d results, got %d", len(pairs), len(nResp.Results))).
			WithProvider(p.Name())
	}

	out := make([]Prediction, len(nResp.Results))
	for i, r := range nResp.Results {
		scores := make(map[types.Label]float64, len(r.Scores))
		for k, v := range r.Scores {
			scores[types.Label(strings.ToLower(k))] = v
		}
		out[i] = Prediction{
			Label:  types.Label(strings.ToLower(r.Label)),
			Scores: scores,
		}
	}
	return out, nil
}

// post sends one encoded request, waiting on the rate limiter first.
func (p *HTTPProvider) post(ctx context.Context, payload []byte) (*nliResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, types.NewError(types.ErrRateLimited, "rate limiter wait aborted").
			WithProvider(p.Name()).
			WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.cfg.BaseURL, "/")+p.cfg.Path,
		bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		code := types.ErrUpstreamError
		if errors.Is(err, context.DeadlineExceeded) {
			code = types.ErrUpstreamTimeout
		}
		return nil, types.NewError(code, "nli request failed").
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(true).
			WithProvider(p.Name()).
			WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, mapStatus(resp.StatusCode, string(body), p.Name())
	}

	var nResp nliResponse
	if err := json.NewDecoder(resp.Body).Decode(&nResp); err != nil {
		return nil, types.NewError(types.ErrInvalidProviderPayload, "failed to decode nli response").
			WithProvider(p.Name()).
			WithCause(err)
	}
	return &nResp, nil
}

// Warmup sends a single trivial pair so the server loads its weights
// before the first claim arrives.
func (p *HTTPProvider) Warmup(ctx context.Context) error {
	start := time.Now()
	_, err := p.InferBatch(ctx, []Pair{{Premise: "warmup", Hypothesis: "warmup"}})
	if err != nil {
		return fmt.Errorf("nli warmup after %s: %w", time.Since(start), err)
	}
	return nil
}

func mapStatus(status int, msg, provider string) *types.Error {
	code := types.ErrUpstreamError
	retryable := status >= 500

	switch status {
	case http.StatusUnauthorized:
		code = types.ErrUnauthorized
	case http.StatusForbidden:
		code = types.ErrForbidden
	case http.StatusTooManyRequests:
		code = types.ErrRateLimited
		retryable = true
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		code = types.ErrInvalidRequest
	}

	return types.NewError(code, msg).
		WithHTTPStatus(status).
		WithRetryable(retryable).
		WithProvider(provider)
}
