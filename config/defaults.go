// =============================================================================
// 📦 FactFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:      DefaultServerConfig(),
		Redis:       DefaultRedisConfig(),
		Database:    DefaultDatabaseConfig(),
		Models:      DefaultModelsConfig(),
		Retrieval:   DefaultRetrievalConfig(),
		Scoring:     DefaultScoringConfig(),
		Aggregation: DefaultAggregationConfig(),
		Pipeline:    DefaultPipelineConfig(),
		Log:         DefaultLogConfig(),
		Telemetry:   DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    50,
		RateLimitBurst:  100,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		EmbeddingTTL: 24 * time.Hour,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "factflow",
		Password:        "",
		Name:            "factflow",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		RecordResults:   false,
	}
}

// DefaultModelsConfig 返回默认模型资源配置
func DefaultModelsConfig() ModelsConfig {
	return ModelsConfig{
		Device:        "auto",
		WarmupOnStart: true,
		LoadTimeout:   2 * time.Minute,
		Embedding: ProviderConfig{
			BaseURL:    "http://localhost:8081",
			Model:      "sentence-transformers/all-MiniLM-L6-v2",
			Dimensions: 384,
			Timeout:    30 * time.Second,
			MaxRetries: 2,
		},
		Entailment: ProviderConfig{
			BaseURL:    "http://localhost:8082",
			Model:      "microsoft/deberta-large-mnli",
			Path:       "/v1/nli",
			Timeout:    60 * time.Second,
			MaxRetries: 2,
		},
	}
}

// DefaultRetrievalConfig 返回默认混合检索配置
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		Backend:             "memory",
		TopK:                10,
		MaxTopK:             100,
		RetrievalMultiplier: 3,
		RRFK:                60,
		VectorWeight:        0.5,
		KeywordWeight:       0.5,
		TextSearchConfig:    "english",
	}
}

// DefaultScoringConfig 返回默认蕴含打分配置
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		MaxPremiseChars:  2000,
		FallbackToSingle: true,
	}
}

// DefaultAggregationConfig 返回默认判定聚合配置
func DefaultAggregationConfig() AggregationConfig {
	return AggregationConfig{
		SupportRatio: 0.3,
		RefuteRatio:  0.3,
	}
}

// DefaultPipelineConfig 返回默认管线配置
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		TimeBudget:          30 * time.Second,
		MaxTimeBudget:       5 * time.Minute,
		Workers:             0,
		QueueSize:           256,
		PressureThreshold:   1000,
		MaxConcurrentClaims: 8,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "factflow",
		SampleRate:   0.1,
	}
}
