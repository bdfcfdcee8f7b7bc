// =============================================================================
// 📦 FactFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("FACTFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 FactFlow 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Redis 缓存配置（嵌入向量缓存）
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 数据库配置（证据库与结果记录）
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Models 模型资源配置
	Models ModelsConfig `yaml:"models" env:"MODELS"`

	// Retrieval 混合检索配置
	Retrieval RetrievalConfig `yaml:"retrieval" env:"RETRIEVAL"`

	// Scoring 蕴含打分配置
	Scoring ScoringConfig `yaml:"scoring" env:"SCORING"`

	// Aggregation 判定聚合配置
	Aggregation AggregationConfig `yaml:"aggregation" env:"AGGREGATION"`

	// Pipeline 管线编排配置
	Pipeline PipelineConfig `yaml:"pipeline" env:"PIPELINE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每秒请求数限制（0 表示不限流）
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 突发请求数
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 是否启用嵌入向量缓存
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 嵌入缓存过期时间
	EmbeddingTTL time.Duration `yaml:"embedding_ttl" env:"EMBEDDING_TTL"`
	// 是否使用 TLS 连接
	TLS bool `yaml:"tls" env:"TLS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 是否记录验证结果
	RecordResults bool `yaml:"record_results" env:"RECORD_RESULTS"`
}

// ModelsConfig 模型资源配置
type ModelsConfig struct {
	// 执行设备: auto, cuda, rocm, metal, cpu
	Device string `yaml:"device" env:"DEVICE"`
	// 启动时预热
	WarmupOnStart bool `yaml:"warmup_on_start" env:"WARMUP_ON_START"`
	// 单个模型构建（含预热）的超时
	LoadTimeout time.Duration `yaml:"load_timeout" env:"LOAD_TIMEOUT"`
	// 嵌入模型
	Embedding ProviderConfig `yaml:"embedding" env:"EMBEDDING"`
	// 蕴含（NLI）模型
	Entailment ProviderConfig `yaml:"entailment" env:"ENTAILMENT"`
	// 批大小覆盖，键为 "<kind>/<device_class>"，例如 "entailment/standard"
	BatchSizes map[string]int `yaml:"batch_sizes" env:"-"`
}

// ProviderConfig 推理提供者配置
type ProviderConfig struct {
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API Key（可选）
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// 向量维度（仅嵌入模型）
	Dimensions int `yaml:"dimensions" env:"DIMENSIONS"`
	// 请求路径（仅蕴含模型）
	Path string `yaml:"path" env:"PATH"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 每秒请求数限制（0 表示不限流）
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 可重试错误的重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
}

// RetrievalConfig 混合检索配置
type RetrievalConfig struct {
	// 后端: memory, postgres
	Backend string `yaml:"backend" env:"BACKEND"`
	// 内存后端的语料文件（JSON Lines）
	CorpusPath string `yaml:"corpus_path" env:"CORPUS_PATH"`
	// 默认返回证据数
	TopK int `yaml:"top_k" env:"TOP_K"`
	// 单次请求可要求的最大证据数
	MaxTopK int `yaml:"max_top_k" env:"MAX_TOP_K"`
	// 子查询候选倍数
	RetrievalMultiplier int `yaml:"retrieval_multiplier" env:"RETRIEVAL_MULTIPLIER"`
	// RRF 阻尼常数
	RRFK float64 `yaml:"rrf_k" env:"RRF_K"`
	// 向量检索权重
	VectorWeight float64 `yaml:"vector_weight" env:"VECTOR_WEIGHT"`
	// 关键词检索权重
	KeywordWeight float64 `yaml:"keyword_weight" env:"KEYWORD_WEIGHT"`
	// 全文检索语言配置（postgres）
	TextSearchConfig string `yaml:"text_search_config" env:"TEXT_SEARCH_CONFIG"`
}

// ScoringConfig 蕴含打分配置
type ScoringConfig struct {
	// 前提文本最大字符数
	MaxPremiseChars int `yaml:"max_premise_chars" env:"MAX_PREMISE_CHARS"`
	// 批次失败时逐条重试
	FallbackToSingle bool `yaml:"fallback_to_single" env:"FALLBACK_TO_SINGLE"`
}

// AggregationConfig 判定聚合配置
type AggregationConfig struct {
	// 支持阈值系数（乘以证据条数）
	SupportRatio float64 `yaml:"support_ratio" env:"SUPPORT_RATIO"`
	// 反驳阈值系数（乘以证据条数）
	RefuteRatio float64 `yaml:"refute_ratio" env:"REFUTE_RATIO"`
}

// PipelineConfig 管线编排配置
type PipelineConfig struct {
	// 单个声明的时间预算
	TimeBudget time.Duration `yaml:"time_budget" env:"TIME_BUDGET"`
	// 单次请求可要求的最大时间预算
	MaxTimeBudget time.Duration `yaml:"max_time_budget" env:"MAX_TIME_BUDGET"`
	// 推理工作池大小（0 表示 CPU 核数）
	Workers int `yaml:"workers" env:"WORKERS"`
	// 推理任务队列长度
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
	// 触发内存回收的批量阈值
	PressureThreshold int `yaml:"pressure_threshold" env:"PRESSURE_THRESHOLD"`
	// 批量验证的最大并发声明数
	MaxConcurrentClaims int `yaml:"max_concurrent_claims" env:"MAX_CONCURRENT_CLAIMS"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "FACTFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}

	switch c.Retrieval.Backend {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("unknown retrieval backend %q", c.Retrieval.Backend))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, "retrieval.top_k must be positive")
	}
	if c.Retrieval.MaxTopK < c.Retrieval.TopK {
		errs = append(errs, "retrieval.max_top_k must be >= retrieval.top_k")
	}
	if c.Retrieval.RetrievalMultiplier < 1 {
		errs = append(errs, "retrieval.retrieval_multiplier must be >= 1")
	}
	if c.Retrieval.RRFK <= 0 {
		errs = append(errs, "retrieval.rrf_k must be positive")
	}
	if c.Retrieval.VectorWeight < 0 || c.Retrieval.KeywordWeight < 0 {
		errs = append(errs, "retrieval weights must not be negative")
	}
	if c.Retrieval.VectorWeight+c.Retrieval.KeywordWeight == 0 {
		errs = append(errs, "retrieval weights must not both be zero")
	}

	if c.Aggregation.SupportRatio < 0 || c.Aggregation.SupportRatio > 1 {
		errs = append(errs, "aggregation.support_ratio must be between 0 and 1")
	}
	if c.Aggregation.RefuteRatio < 0 || c.Aggregation.RefuteRatio > 1 {
		errs = append(errs, "aggregation.refute_ratio must be between 0 and 1")
	}

	if c.Scoring.MaxPremiseChars < 0 {
		errs = append(errs, "scoring.max_premise_chars must not be negative")
	}

	if c.Pipeline.TimeBudget <= 0 {
		errs = append(errs, "pipeline.time_budget must be positive")
	}
	if c.Pipeline.MaxTimeBudget < c.Pipeline.TimeBudget {
		errs = append(errs, "pipeline.max_time_budget must be >= pipeline.time_budget")
	}
	if c.Pipeline.Workers < 0 {
		errs = append(errs, "pipeline.workers must not be negative")
	}
	if c.Pipeline.MaxConcurrentClaims <= 0 {
		errs = append(errs, "pipeline.max_concurrent_claims must be positive")
	}

	switch c.Models.Device {
	case "", "auto", "cuda", "rocm", "metal", "cpu":
	default:
		errs = append(errs, fmt.Sprintf("unknown models.device %q", c.Models.Device))
	}
	if c.Models.LoadTimeout < 0 {
		errs = append(errs, "models.load_timeout must not be negative")
	}
	if c.Models.Embedding.MaxRetries < 0 || c.Models.Entailment.MaxRetries < 0 {
		errs = append(errs, "models max_retries must not be negative")
	}
	for key, size := range c.Models.BatchSizes {
		if size <= 0 {
			errs = append(errs, fmt.Sprintf("models.batch_sizes[%s] must be positive", key))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
