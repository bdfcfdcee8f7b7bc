// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 推理指标
	inferenceRequestsTotal *prometheus.CounterVec
	inferenceDuration      *prometheus.HistogramVec
	inferenceItems         *prometheus.CounterVec
	modelLoadsTotal        *prometheus.CounterVec
	modelLoadDuration      *prometheus.HistogramVec

	// 验证指标
	verificationsTotal   *prometheus.CounterVec
	verificationDuration *prometheus.HistogramVec
	stageDuration        *prometheus.HistogramVec
	retrievalsTotal      *prometheus.CounterVec
	retrievalCandidates  prometheus.Histogram
	degradationsTotal    *prometheus.CounterVec
	scoringPairsTotal    *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 推理指标
	c.inferenceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_requests_total",
			Help:      "Total number of model inference calls",
		},
		[]string{"kind", "provider", "status"},
	)

	c.inferenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Model inference call duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"kind", "provider"},
	)

	c.inferenceItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_items_total",
			Help:      "Total number of texts or pairs sent to models",
		},
		[]string{"kind", "provider"},
	)

	c.modelLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_loads_total",
			Help:      "Total number of model handle constructions",
		},
		[]string{"kind", "device_class", "status"},
	)

	c.modelLoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_load_duration_seconds",
			Help:      "Model handle construction time in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"kind", "device_class"},
	)

	// 验证指标
	c.verificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Total number of verified claims",
		},
		[]string{"verdict", "retrieval_mode"},
	)

	c.verificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "verification_duration_seconds",
			Help:      "End-to-end claim verification time in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"verdict"},
	)

	c.stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"stage"},
	)

	c.retrievalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "Total number of hybrid retrievals by effective mode",
		},
		[]string{"mode"},
	)

	c.retrievalCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_candidates",
			Help:      "Number of fused candidates returned per retrieval",
			Buckets:   prometheus.LinearBuckets(0, 5, 11),
		},
	)

	c.degradationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degradations_total",
			Help:      "Total number of non-fatal degradations",
		},
		[]string{"code", "stage"},
	)

	c.scoringPairsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_pairs_total",
			Help:      "Total number of scored (claim, evidence) pairs",
		},
		[]string{"status"},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// 数据库指标
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🧠 推理指标记录
// =============================================================================

// RecordInference 记录一次模型推理调用，items 为文本或文本对数量
func (c *Collector) RecordInference(kind, provider, status string, duration time.Duration, items int) {
	c.inferenceRequestsTotal.WithLabelValues(kind, provider, status).Inc()
	c.inferenceDuration.WithLabelValues(kind, provider).Observe(duration.Seconds())
	c.inferenceItems.WithLabelValues(kind, provider).Add(float64(items))
}

// RecordModelLoad 记录模型句柄构建
func (c *Collector) RecordModelLoad(kind, deviceClass string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.modelLoadsTotal.WithLabelValues(kind, deviceClass, status).Inc()
	if err == nil {
		c.modelLoadDuration.WithLabelValues(kind, deviceClass).Observe(duration.Seconds())
	}
}

// =============================================================================
// ✅ 验证指标记录
// =============================================================================

// RecordVerification 记录一次声明验证
func (c *Collector) RecordVerification(verdict, retrievalMode string, duration time.Duration) {
	c.verificationsTotal.WithLabelValues(verdict, retrievalMode).Inc()
	c.verificationDuration.WithLabelValues(verdict).Observe(duration.Seconds())
}

// RecordStage 记录管线阶段耗时
func (c *Collector) RecordStage(stage string, duration time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordRetrieval 记录检索模式与候选数
func (c *Collector) RecordRetrieval(mode string, candidates int) {
	c.retrievalsTotal.WithLabelValues(mode).Inc()
	c.retrievalCandidates.Observe(float64(candidates))
}

// RecordDegradation 记录降级
func (c *Collector) RecordDegradation(code, stage string) {
	c.degradationsTotal.WithLabelValues(code, stage).Inc()
}

// RecordScoringPairs 记录打分成功与失败的文本对数
func (c *Collector) RecordScoringPairs(ok, failed int) {
	c.scoringPairsTotal.WithLabelValues("ok").Add(float64(ok))
	c.scoringPairsTotal.WithLabelValues("failed").Add(float64(failed))
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery 记录数据库查询
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
