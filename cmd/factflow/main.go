// =============================================================================
// FactFlow 主入口
// =============================================================================
// 声明验证服务入口点：HTTP API、单条验证 CLI、模型预热、数据库迁移
//
// 使用方法:
//
//	factflow serve                         # 启动服务
//	factflow serve --config config.yaml    # 指定配置文件
//	factflow verify "The Eiffel Tower is in Paris"
//	factflow warmup                        # 预加载模型并输出耗时
//	factflow migrate up                    # 运行数据库迁移
//	factflow health                        # 健康检查
//	factflow version                       # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/factflow/config"
	"github.com/BaSui01/factflow/internal/metrics"
	"github.com/BaSui01/factflow/internal/telemetry"
	"github.com/BaSui01/factflow/pipeline"
	"github.com/BaSui01/factflow/types"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "verify":
		err = runVerify(ctx, os.Args[2:], os.Stdout)
	case "warmup":
		err = runWarmup(ctx, os.Args[2:])
	case "migrate":
		err = runMigrate(ctx, os.Args[2:], os.Stdout, os.Stderr)
	case "version":
		printVersion(os.Stdout)
	case "health":
		err = runHealthCheck(os.Args[2:], os.Stdout)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig 加载并校验配置，path 为空时只读默认值与环境变量
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting FactFlow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(ctx, cfg.Telemetry, Version, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	collector := metrics.NewCollector("factflow", logger)

	app, err := NewApp(ctx, cfg, collector, logger)
	if err != nil {
		return err
	}

	if cfg.Models.WarmupOnStart {
		// 预热在后台进行，/ready 在完成前返回 503
		go func() {
			if err := app.Warmup(ctx); err != nil {
				logger.Error("model warmup failed", zap.Error(err))
			}
		}()
	}

	srv := NewServer(cfg, app, otelProviders, collector, logger)
	if err := srv.Start(); err != nil {
		srv.Shutdown()
		return err
	}

	srv.WaitForShutdown(ctx)
	logger.Info("FactFlow stopped")
	return nil
}

// =============================================================================
// 🔎 verify 命令
// =============================================================================

type verifyFlags struct {
	configPath  string
	tenantID    string
	maxEvidence int
	asJSON      bool
}

func parseVerifyArgs(args []string, stderr io.Writer) (verifyFlags, string, error) {
	var f verifyFlags
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.configPath, "config", "", "Path to config file")
	fs.StringVar(&f.tenantID, "tenant", "", "Restrict evidence to a tenant")
	fs.IntVar(&f.maxEvidence, "max-evidence", 0, "Maximum evidence to score (0 uses config)")
	fs.BoolVar(&f.asJSON, "json", false, "Print the full result as JSON")
	if err := fs.Parse(args); err != nil {
		return f, "", err
	}

	claim := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if claim == "" {
		return f, "", errors.New("verify requires a claim argument")
	}
	return f, claim, nil
}

func runVerify(ctx context.Context, args []string, stdout io.Writer) error {
	f, claim, err := parseVerifyArgs(args, os.Stderr)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	app, err := NewApp(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := app.verifier.Verify(ctx, claim, pipeline.Options{
		TenantID:    f.tenantID,
		MaxEvidence: f.maxEvidence,
	})
	if err != nil {
		return err
	}

	if f.asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printResult(stdout, result)
	return nil
}

// printResult 以人类可读形式输出验证结果
func printResult(w io.Writer, r *types.VerificationResult) {
	fmt.Fprintf(w, "Claim:       %s\n", r.Claim)
	fmt.Fprintf(w, "Verdict:     %s (confidence %.3f)\n", r.Verdict, r.Confidence)
	fmt.Fprintf(w, "Explanation: %s\n", r.Explanation)
	if r.RetrievalMode != "" {
		fmt.Fprintf(w, "Retrieval:   %s\n", r.RetrievalMode)
	}
	for _, d := range r.Degradations {
		fmt.Fprintf(w, "Degraded:    [%s] %s: %s\n", d.Stage, d.Code, d.Message)
	}
	if len(r.Evidence) > 0 {
		fmt.Fprintln(w, "Evidence:")
	}
	for i, ev := range r.Evidence {
		fmt.Fprintf(w, "  %d. %-13s weight=%.3f  %s\n",
			i+1, ev.Result.Label, ev.Weight, truncate(ev.Candidate.Content, 100))
		if ev.Candidate.SourceURL != "" {
			fmt.Fprintf(w, "     %s\n", ev.Candidate.SourceURL)
		}
	}
	fmt.Fprintf(w, "Took:        %s\n", r.ProcessingTime.Round(time.Millisecond))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// =============================================================================
// 🔥 warmup 命令
// =============================================================================

func runWarmup(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("warmup", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	app, err := NewApp(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	return app.Warmup(ctx)
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(strings.TrimRight(*addr, "/") + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}

	fmt.Fprintln(stdout, "OK")
	return nil
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "FactFlow %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `FactFlow - Claim verification service

Usage:
  factflow <command> [options]

Commands:
  serve     Start the FactFlow HTTP API
  verify    Verify a single claim and print the verdict
  warmup    Load every model and report load times
  migrate   Database migration commands
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve', 'verify', 'warmup':
  --config <path>   Path to configuration file (YAML)

Options for 'verify':
  --tenant <id>         Restrict evidence to a tenant
  --max-evidence <n>    Maximum evidence to score
  --json                Print the full result as JSON

Examples:
  factflow serve --config /etc/factflow/config.yaml
  factflow verify --json "Water boils at 100 degrees Celsius at sea level"
  factflow migrate up
  factflow health --addr http://localhost:8080
  factflow version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
