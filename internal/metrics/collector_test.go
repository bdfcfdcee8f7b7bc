package metrics

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.inferenceRequestsTotal)
	assert.NotNil(t, collector.verificationsTotal)
	assert.NotNil(t, collector.stageDuration)
}

func TestNewCollector_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector(nextTestNamespace(), nil)
	})
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("POST", "/v1/verify", 200, 100*time.Millisecond, 1024, 2048)
	collector.RecordHTTPRequest("POST", "/v1/verify", 200, 50*time.Millisecond, 512, 1024)
	collector.RecordHTTPRequest("POST", "/v1/verify", 503, 5*time.Millisecond, 512, 64)

	assert.Equal(t, 2, testutil.CollectAndCount(collector.httpRequestsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/v1/verify", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/v1/verify", "5xx")))
}

func TestCollector_RecordInference(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordInference("entailment", "http-nli", "success", 200*time.Millisecond, 32)
	collector.RecordInference("entailment", "http-nli", "error", 10*time.Millisecond, 8)

	assert.Equal(t, 2, testutil.CollectAndCount(collector.inferenceRequestsTotal))
	assert.Equal(t, 40.0, testutil.ToFloat64(collector.inferenceItems.WithLabelValues("entailment", "http-nli")))
}

func TestCollector_RecordModelLoad(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordModelLoad("embedding", "standard", time.Second, nil)
	collector.RecordModelLoad("embedding", "standard", 0, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.modelLoadsTotal.WithLabelValues("embedding", "standard", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.modelLoadsTotal.WithLabelValues("embedding", "standard", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.modelLoadDuration))
}

func TestCollector_RecordVerification(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordVerification("SUPPORTED", "hybrid", 300*time.Millisecond)
	collector.RecordStage("retrieval", 20*time.Millisecond)
	collector.RecordStage("scoring", 200*time.Millisecond)
	collector.RecordRetrieval("keyword_only", 5)
	collector.RecordDegradation("RETRIEVAL_DEGRADED", "retrieval")
	collector.RecordScoringPairs(7, 3)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.verificationsTotal.WithLabelValues("SUPPORTED", "hybrid")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.stageDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.retrievalsTotal.WithLabelValues("keyword_only")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.degradationsTotal.WithLabelValues("RETRIEVAL_DEGRADED", "retrieval")))
	assert.Equal(t, 7.0, testutil.ToFloat64(collector.scoringPairsTotal.WithLabelValues("ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.scoringPairsTotal.WithLabelValues("failed")))
}

func TestCollector_RecordCacheOperation(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordCacheHit("embedding")
	collector.RecordCacheMiss("embedding")
	collector.RecordCacheMiss("embedding")

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.cacheHits.WithLabelValues("embedding")))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.cacheMisses.WithLabelValues("embedding")))
}

func TestCollector_RecordDatabase(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordDBQuery("postgres", "vector_query", 20*time.Millisecond)
	collector.RecordDBConnections("postgres", 10, 5)

	assert.Equal(t, 1, testutil.CollectAndCount(collector.dbQueryDuration))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("postgres")))
	assert.Equal(t, 5.0, testutil.ToFloat64(collector.dbConnectionsIdle.WithLabelValues("postgres")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordHTTPRequest("GET", "/health", 200, time.Millisecond, 0, 16)
			collector.RecordVerification("REFUTED", "hybrid", time.Second)
			collector.RecordCacheHit("embedding")
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/health", "2xx")))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.verificationsTotal.WithLabelValues("REFUTED", "hybrid")))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.cacheHits.WithLabelValues("embedding")))
}

func TestCollector_MetricsRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	registry.MustRegister(collector.verificationsTotal)
	collector.RecordVerification("INSUFFICIENT", "none", 0)

	families, err := registry.Gather()
	assert.NoError(t, err)
	assert.Len(t, families, 1)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(204))
	assert.Equal(t, "3xx", statusCode(302))
	assert.Equal(t, "4xx", statusCode(429))
	assert.Equal(t, "5xx", statusCode(500))
	assert.Equal(t, "unknown", statusCode(100))
}
