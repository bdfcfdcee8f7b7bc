package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/factflow/api/handlers"
	"github.com/BaSui01/factflow/config"
	"github.com/BaSui01/factflow/internal/metrics"
	"github.com/BaSui01/factflow/internal/server"
	"github.com/BaSui01/factflow/internal/telemetry"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 FactFlow 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	app       *App
	telemetry *telemetry.Providers
	collector *metrics.Collector

	httpManager    *server.Manager
	metricsManager *server.Manager

	healthHandler *handlers.HealthHandler
	verifyHandler *handlers.VerifyHandler

	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, app *App, otel *telemetry.Providers, collector *metrics.Collector, logger *zap.Logger) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		app:       app,
		telemetry: otel,
		collector: collector,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动 HTTP 与 Metrics 服务器
func (s *Server) Start() error {
	s.initHandlers()

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	if s.cfg.Models.WarmupOnStart {
		s.healthHandler.RegisterCheck(handlers.NewModelsReadyCheck(s.app.models))
	}
	if workers := s.app.workers; workers != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("inference_pool", workers.Healthy).
			WithStats(func(context.Context) (any, error) { return workers.Stats(), nil }))
	}
	if pool := s.app.dbPool; pool != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("database", pool.Ping).
			WithStats(func(context.Context) (any, error) { return pool.Stats(), nil }))
	}
	if rdb := s.app.redis; rdb != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("redis", rdb.Ping).
			WithStats(func(ctx context.Context) (any, error) {
				st, err := rdb.GetStats(ctx)
				if err != nil {
					return nil, err
				}
				return st, nil
			}))
	}

	var opts []handlers.VerifyHandlerOption
	if s.app.results != nil {
		opts = append(opts, handlers.WithResultReader(s.app.results))
	}
	s.verifyHandler = handlers.NewVerifyHandler(s.app.verifier, s.logger, opts...)
}

// routes 构建路由与中间件链
func (s *Server) routes(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))
	mux.HandleFunc("GET /v1/models", handlers.HandleModels(s.app.models))

	s.verifyHandler.Register(mux)

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		TenantHeader(),
		OTelTracing(),
		SecurityHeaders(),
		RequestLogger(s.logger),
	}
	if s.collector != nil {
		middlewares = append(middlewares, MetricsMiddleware(s.collector))
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		middlewares = append(middlewares,
			RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))
	}
	return Chain(mux, middlewares...)
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

func (s *Server) startHTTPServer() error {
	rateLimiterCtx, cancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = cancel

	s.httpManager = server.NewManager("http",
		s.routes(rateLimiterCtx),
		server.ConfigFrom(s.cfg.Server, s.cfg.Server.HTTPPort),
		s.logger,
	)
	return s.httpManager.Start()
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort == 0 {
		s.logger.Info("metrics server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager("metrics", mux,
		server.ConfigFrom(s.cfg.Server, s.cfg.Server.MetricsPort),
		s.logger,
	)
	return s.metricsManager.Start()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待信号或 ctx 结束，然后优雅关闭
func (s *Server) WaitForShutdown(ctx context.Context) {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown(ctx)
	}
	s.Shutdown()
}

// Shutdown 依次关闭 HTTP、Metrics、管线组件和遥测
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}

	if err := s.app.Close(); err != nil {
		s.logger.Error("component shutdown error", zap.Error(err))
	}
	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("graceful shutdown completed")
}
