package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/factflow/internal/tlsutil"
	"github.com/BaSui01/factflow/llm/retry"
	"github.com/BaSui01/factflow/types"
)

// BaseProvider 为嵌入提供者提供共同的 HTTP 传输.
type BaseProvider struct {
	name       string
	client     *http.Client
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	maxBatch   int
	retry      retry.Policy
}

// BaseConfig 持有基础提供者的共同配置.
type BaseConfig struct {
	Name       string
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	MaxBatch   int
	Timeout    time.Duration
	MaxRetries int
}

// NewBaseProvider 创建基础提供者.
func NewBaseProvider(cfg BaseConfig) *BaseProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxBatch := cfg.MaxBatch
	if maxBatch == 0 {
		maxBatch = 100
	}
	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.MaxRetries
	return &BaseProvider{
		name:       cfg.Name,
		client:     tlsutil.NewHTTPClient(timeout),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		maxBatch:   maxBatch,
		retry:      policy,
	}
}

func (p *BaseProvider) Name() string      { return p.name }
func (p *BaseProvider) Model() string     { return p.model }
func (p *BaseProvider) Dimensions() int   { return p.dimensions }
func (p *BaseProvider) MaxBatchSize() int { return p.maxBatch }

// EmbedQuery 嵌入单个查询字符串.
func (p *BaseProvider) EmbedQuery(ctx context.Context, query string, embedFn func(context.Context, *EmbeddingRequest) (*EmbeddingResponse, error)) ([]float64, error) {
	resp, err := embedFn(ctx, &EmbeddingRequest{
		Input:     []string{query},
		InputType: InputTypeQuery,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, types.NewError(types.ErrInvalidProviderPayload, "no embeddings returned").WithProvider(p.name)
	}
	return resp.Embeddings[0].Embedding, nil
}

// EmbedDocuments 按 MaxBatchSize 分批嵌入多个文档，结果按输入顺序返回.
func (p *BaseProvider) EmbedDocuments(ctx context.Context, documents []string, embedFn func(context.Context, *EmbeddingRequest) (*EmbeddingResponse, error)) ([][]float64, error) {
	result := make([][]float64, len(documents))
	for start := 0; start < len(documents); start += p.maxBatch {
		end := min(start+p.maxBatch, len(documents))
		resp, err := embedFn(ctx, &EmbeddingRequest{
			Input:     documents[start:end],
			InputType: InputTypeDocument,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Embeddings) != end-start {
			return nil, types.NewError(types.ErrInvalidProviderPayload,
				fmt.Sprintf("expected %d embeddings, got %d", end-start, len(resp.Embeddings))).WithProvider(p.name)
		}
		for i, emb := range resp.Embeddings {
			idx := emb.Index
			if idx < 0 || idx >= end-start {
				idx = i
			}
			result[start+idx] = emb.Embedding
		}
	}
	return result, nil
}

// DoRequest 执行 HTTP 请求, 可重试错误按退避策略重试.
func (p *BaseProvider) DoRequest(ctx context.Context, method, endpoint string, body any, headers map[string]string) ([]byte, error) {
	return retry.Do(ctx, p.retry, func(ctx context.Context) ([]byte, error) {
		return doJSON(ctx, p.client, p.name, method, p.baseURL+endpoint, body, headers)
	})
}

// doJSON 发送 JSON 请求并把传输层错误映射为 types.Error.
func doJSON(ctx context.Context, client *http.Client, provider, method, url string, body any, headers map[string]string) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		code := types.ErrUpstreamError
		if errors.Is(err, context.DeadlineExceeded) {
			code = types.ErrUpstreamTimeout
		}
		return nil, types.NewError(code, err.Error()).
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(true).
			WithProvider(provider).
			WithCause(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, MapHTTPError(resp.StatusCode, string(respBody), provider)
	}

	return respBody, nil
}

// MapHTTPError 将 HTTP 状态映射为 types.Error.
func MapHTTPError(status int, msg, provider string) *types.Error {
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
	case http.StatusBadRequest:
		code = types.ErrInvalidRequest
	case http.StatusServiceUnavailable:
		code = types.ErrServiceUnavailable
	}

	return types.NewError(code, msg).
		WithHTTPStatus(status).
		WithRetryable(retryable).
		WithProvider(provider)
}

// ChooseModel 从请求或默认中选择模型.
func ChooseModel(reqModel, defaultModel, fallback string) string {
	if reqModel != "" {
		return reqModel
	}
	if defaultModel != "" {
		return defaultModel
	}
	return fallback
}
