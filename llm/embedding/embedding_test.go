package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/factflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- ChooseModel ---

func TestChooseModel(t *testing.T) {
	assert.Equal(t, "req-model", ChooseModel("req-model", "default", "fallback"))
	assert.Equal(t, "default", ChooseModel("", "default", "fallback"))
	assert.Equal(t, "fallback", ChooseModel("", "", "fallback"))
}

// --- BaseProvider ---

func TestNewBaseProvider(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		bp := NewBaseProvider(BaseConfig{
			Name:    "test",
			BaseURL: "http://example.com/",
		})
		assert.Equal(t, "test", bp.Name())
		assert.Equal(t, 100, bp.MaxBatchSize())
		assert.Equal(t, "http://example.com", bp.baseURL)
	})

	t.Run("custom values", func(t *testing.T) {
		bp := NewBaseProvider(BaseConfig{
			Name:       "custom",
			BaseURL:    "http://api.test",
			Model:      "m",
			Dimensions: 512,
			MaxBatch:   50,
			Timeout:    10 * time.Second,
		})
		assert.Equal(t, 512, bp.Dimensions())
		assert.Equal(t, 50, bp.MaxBatchSize())
		assert.Equal(t, "m", bp.Model())
	})
}

// --- OpenAIProvider ---

func newEmbeddingServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		calls.Add(1)

		var resp openAIEmbedResponse
		resp.Model = req.Model
		for i, in := range req.Input {
			resp.Data = append(resp.Data, struct {
				Index     int       `json:"index"`
				Embedding []float64 `json:"embedding"`
			}{Index: i, Embedding: []float64{float64(len(in)), 1}})
		}
		resp.Usage.TotalTokens = len(req.Input)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestOpenAIProvider_EmbedQuery(t *testing.T) {
	var calls atomic.Int32
	srv := newEmbeddingServer(t, &calls)
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, Model: "mini"})
	vec, err := p.EmbedQuery(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1}, vec)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "openai-embedding", p.Name())
}

func TestOpenAIProvider_EmbedDocuments_Batches(t *testing.T) {
	var calls atomic.Int32
	srv := newEmbeddingServer(t, &calls)
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, MaxBatch: 2})
	docs := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := p.EmbedDocuments(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	for i, d := range docs {
		assert.Equal(t, float64(len(d)), vecs[i][0])
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenAIProvider_Embed_EmptyInput(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{BaseURL: "http://unused"})
	_, err := p.Embed(context.Background(), &EmbeddingRequest{})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

func TestOpenAIProvider_SendsAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.5]}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "secret"})
	vec, err := p.EmbedQuery(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5}, vec)
}

func TestOpenAIProvider_ErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL})
	_, err := p.EmbedQuery(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrRateLimited))
	assert.True(t, types.IsRetryable(err))
}

func TestOpenAIProvider_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL})
	_, err := p.EmbedQuery(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidProviderPayload))
}

func TestOpenAIProvider_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: url})
	_, err := p.EmbedQuery(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrUpstreamError))
	assert.True(t, types.IsRetryable(err))
}

// --- MapHTTPError ---

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		wantCode  types.ErrorCode
		retryable bool
	}{
		{http.StatusUnauthorized, types.ErrUnauthorized, false},
		{http.StatusForbidden, types.ErrForbidden, false},
		{http.StatusTooManyRequests, types.ErrRateLimited, true},
		{http.StatusBadRequest, types.ErrInvalidRequest, false},
		{http.StatusInternalServerError, types.ErrUpstreamError, true},
		{http.StatusBadGateway, types.ErrUpstreamError, true},
		{http.StatusServiceUnavailable, types.ErrServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := MapHTTPError(tt.status, "test error", "test-provider")
			assert.Equal(t, tt.wantCode, err.Code)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, "test-provider", err.Provider)
			assert.Equal(t, tt.status, err.HTTPStatus)
		})
	}
}

func TestOpenAIProvider_Warmup(t *testing.T) {
	var calls atomic.Int32
	srv := newEmbeddingServer(t, &calls)
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL})
	require.NoError(t, p.Warmup(context.Background()))
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIProvider_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": []float64{0.5, 0.5}}},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, MaxRetries: 1})
	vec, err := p.EmbedQuery(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.5}, vec)
	assert.Equal(t, int32(2), calls.Load())
}
