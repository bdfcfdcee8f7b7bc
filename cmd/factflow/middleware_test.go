package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/factflow/api/handlers"
	"github.com/BaSui01/factflow/internal/ctxkeys"
	"github.com/BaSui01/factflow/types"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders()(okHandler())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "default-src 'none'", w.Header().Get("Content-Security-Policy"))
}

func TestSecurityHeaders_ChainedWithOtherMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	handler := Chain(inner, SecurityHeaders(), RequestID())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/test", nil)
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestID(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ctxkeys.RequestID(r.Context())
	})
	handler := RequestID()(inner)

	t.Run("keeps client id", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Request-ID", "req-123")
		handler.ServeHTTP(w, r)

		assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
		assert.Equal(t, "req-123", seen)
	})

	t.Run("generates when missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		id := w.Header().Get("X-Request-ID")
		assert.Len(t, id, 36)
		assert.Equal(t, id, seen)
	})

	t.Run("replaces oversized id", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Request-ID", strings.Repeat("x", 200))
		handler.ServeHTTP(w, r)

		assert.Len(t, w.Header().Get("X-Request-ID"), 36)
	})
}

func TestTenantHeader(t *testing.T) {
	var (
		tenant string
		ok     bool
	)
	handler := TenantHeader()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, ok = ctxkeys.TenantID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Tenant-ID", "  acme ")
	handler.ServeHTTP(httptest.NewRecorder(), r)
	assert.True(t, ok)
	assert.Equal(t, "acme", tenant)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
}

func TestRecovery(t *testing.T) {
	handler := Recovery(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/verify", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp handlers.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrInternalError), resp.Error.Code)
}

func TestRecovery_AbortHandlerPropagates(t *testing.T) {
	handler := Recovery(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := Chain(okHandler(), TenantHeader(), RateLimiter(ctx, 0.001, 1, zap.NewNop()))

	send := func(tenant, remote string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/v1/verify", nil)
		r.RemoteAddr = remote
		if tenant != "" {
			r.Header.Set("X-Tenant-ID", tenant)
		}
		handler.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusOK, send("acme", "10.0.0.1:1000").Code)

	limited := send("acme", "10.0.0.2:1000")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))
	assert.Contains(t, limited.Body.String(), string(types.ErrRateLimited))

	// 其他租户与匿名 IP 各自独立计数
	assert.Equal(t, http.StatusOK, send("globex", "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, send("", "10.0.0.3:1000").Code)
	assert.Equal(t, http.StatusTooManyRequests, send("", "10.0.0.3:2000").Code)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/v1/verify", "/v1/verify"},
		{"/v1/verify/batch", "/v1/verify/batch"},
		{"/v1/results", "/v1/results"},
		{"/v1/results/3f2b6c1e-8a4d-4c3b-9e7f-0a1b2c3d4e5f", "/v1/results/:id"},
		{"/v1/results/anything", "/v1/results/:id"},
		{"/health", "/health"},
		{"/unknown/12345", "/unknown/:id"},
		{"/unknown/deadbeefcafe", "/unknown/:id"},
		{"/unknown/path", "/unknown/path"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePath(tt.path))
		})
	}
}

func TestOTelTracing_PassesThrough(t *testing.T) {
	handler := OTelTracing()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
}
