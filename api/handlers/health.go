package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/factflow/models"
	"go.uber.org/zap"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// HealthHandler 健康检查处理器
type HealthHandler struct {
	logger *zap.Logger
	checks []HealthCheck
	mu     sync.RWMutex
}

// HealthCheck 健康检查接口
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// ServiceHealthResponse 健康状态响应
type ServiceHealthResponse struct {
	Status    string                 `json:"status"` // "healthy", "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status  string `json:"status"` // "pass", "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
	Details any    `json:"details,omitempty"`
}

// StatsReporter 检查通过后附带的统计信息（连接池、缓存命中）
type StatsReporter interface {
	Stats(ctx context.Context) (any, error)
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger: logger,
		checks: make([]HealthCheck, 0),
	}
}

// RegisterCheck 注册就绪检查
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 处理 /health 请求（简单健康检查）
// @Summary 健康检查
// @Tags 健康
// @Produce json
// @Success 200 {object} ServiceHealthResponse "服务正常"
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, ServiceHealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// HandleHealthz 处理 /healthz 请求（Kubernetes 活跃度探针）
// @Summary Kubernetes 活跃度探针
// @Tags 健康
// @Produce json
// @Success 200 {object} ServiceHealthResponse "服务处于活动状态"
// @Router /healthz [get]
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	h.HandleHealth(w, r)
}

// HandleReady 处理 /ready 或 /readyz 请求（就绪检查）
// @Summary 准备情况检查
// @Description 依次执行已注册的检查（模型预热、数据库、Redis）
// @Tags 健康
// @Produce json
// @Success 200 {object} ServiceHealthResponse "服务已准备就绪"
// @Failure 503 {object} ServiceHealthResponse "服务尚未准备好"
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := ServiceHealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}

	allHealthy := true
	for _, check := range checks {
		start := time.Now()
		err := check.Check(ctx)
		latency := time.Since(start)

		result := CheckResult{
			Status:  "pass",
			Latency: latency.String(),
		}

		if err == nil {
			if sr, ok := check.(StatsReporter); ok {
				if details, serr := sr.Stats(ctx); serr == nil {
					result.Details = details
				} else {
					h.logger.Debug("readiness stats unavailable",
						zap.String("check", check.Name()), zap.Error(serr))
				}
			}
		}
		if err != nil {
			result.Status = "fail"
			result.Message = err.Error()
			allHealthy = false

			h.logger.Warn("readiness check failed",
				zap.String("check", check.Name()),
				zap.Error(err),
				zap.Duration("latency", latency),
			)
		}

		status.Checks[check.Name()] = result
	}

	if !allHealthy {
		status.Status = "unhealthy"
		WriteJSON(w, http.StatusServiceUnavailable, status)
		return
	}

	WriteJSON(w, http.StatusOK, status)
}

// HandleVersion 处理 /version 请求
// @Summary 版本信息
// @Tags 健康
// @Produce json
// @Success 200 {object} map[string]string "版本信息"
// @Router /version [get]
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}

// =============================================================================
// 🔧 内置检查实现
// =============================================================================

// PingCheck 通过 ping 函数检查依赖（数据库、Redis）
type PingCheck struct {
	name  string
	ping  func(ctx context.Context) error
	stats func(ctx context.Context) (any, error)
}

// NewPingCheck 创建 ping 检查
func NewPingCheck(name string, ping func(ctx context.Context) error) *PingCheck {
	return &PingCheck{name: name, ping: ping}
}

// WithStats 附加统计信息来源
func (c *PingCheck) WithStats(stats func(ctx context.Context) (any, error)) *PingCheck {
	c.stats = stats
	return c
}

// Stats 返回附加的统计信息，未配置时返回 nil
func (c *PingCheck) Stats(ctx context.Context) (any, error) {
	if c.stats == nil {
		return nil, nil
	}
	return c.stats(ctx)
}

func (c *PingCheck) Name() string {
	return c.name
}

func (c *PingCheck) Check(ctx context.Context) error {
	return c.ping(ctx)
}

// ModelStatus 模型缓存状态
type ModelStatus interface {
	Ready() bool
	Snapshot() []models.HandleInfo
}

// ErrModelsNotReady 模型尚未全部加载
var ErrModelsNotReady = errors.New("models not loaded")

// ModelsReadyCheck 在所有模型加载完成前报告未就绪
type ModelsReadyCheck struct {
	models ModelStatus
}

// NewModelsReadyCheck 创建模型就绪检查
func NewModelsReadyCheck(m ModelStatus) *ModelsReadyCheck {
	return &ModelsReadyCheck{models: m}
}

func (c *ModelsReadyCheck) Name() string {
	return "models"
}

func (c *ModelsReadyCheck) Check(ctx context.Context) error {
	if !c.models.Ready() {
		return ErrModelsNotReady
	}
	return nil
}

// HandleModels 处理 /v1/models 请求，返回已加载模型的快照
// @Summary 模型状态
// @Tags 健康
// @Produce json
// @Success 200 {object} Response "已加载模型"
// @Router /v1/models [get]
func HandleModels(m ModelStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, map[string]any{
			"ready":  m.Ready(),
			"models": m.Snapshot(),
		})
	}
}
