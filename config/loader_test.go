// 配置加载器测试。
package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 10, cfg.Retrieval.TopK)
	assert.Equal(t, 60.0, cfg.Retrieval.RRFK)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s

models:
  device: cpu
  embedding:
    base_url: "http://embed.internal:9000"
    model: "bge-small-en"
    dimensions: 512
  batch_sizes:
    entailment/standard: 4

retrieval:
  backend: memory
  top_k: 7
  vector_weight: 0.7
  keyword_weight: 0.3

aggregation:
  support_ratio: 0.4

log:
  level: "debug"
  format: "console"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, "cpu", cfg.Models.Device)
	assert.Equal(t, "http://embed.internal:9000", cfg.Models.Embedding.BaseURL)
	assert.Equal(t, "bge-small-en", cfg.Models.Embedding.Model)
	assert.Equal(t, 512, cfg.Models.Embedding.Dimensions)
	assert.Equal(t, map[string]int{"entailment/standard": 4}, cfg.Models.BatchSizes)

	assert.Equal(t, 7, cfg.Retrieval.TopK)
	assert.InDelta(t, 0.7, cfg.Retrieval.VectorWeight, 1e-9)
	assert.InDelta(t, 0.3, cfg.Retrieval.KeywordWeight, 1e-9)
	// 未覆盖的字段保留默认值
	assert.Equal(t, 3, cfg.Retrieval.RetrievalMultiplier)

	assert.InDelta(t, 0.4, cfg.Aggregation.SupportRatio, 1e-9)
	assert.InDelta(t, 0.3, cfg.Aggregation.RefuteRatio, 1e-9)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("FACTFLOW_SERVER_HTTP_PORT", "7777")
	t.Setenv("FACTFLOW_SERVER_RATE_LIMIT_RPS", "12.5")
	t.Setenv("FACTFLOW_RETRIEVAL_TOP_K", "4")
	t.Setenv("FACTFLOW_RETRIEVAL_RRF_K", "30")
	t.Setenv("FACTFLOW_PIPELINE_TIME_BUDGET", "5s")
	t.Setenv("FACTFLOW_SCORING_FALLBACK_TO_SINGLE", "false")
	t.Setenv("FACTFLOW_MODELS_ENTAILMENT_BASE_URL", "http://nli:8000")
	t.Setenv("FACTFLOW_LOG_OUTPUT_PATHS", "stdout, /var/log/factflow.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.InDelta(t, 12.5, cfg.Server.RateLimitRPS, 1e-9)
	assert.Equal(t, 4, cfg.Retrieval.TopK)
	assert.Equal(t, 30.0, cfg.Retrieval.RRFK)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.TimeBudget)
	assert.False(t, cfg.Scoring.FallbackToSingle)
	assert.Equal(t, "http://nli:8000", cfg.Models.Entailment.BaseURL)
	assert.Equal(t, []string{"stdout", "/var/log/factflow.log"}, cfg.Log.OutputPaths)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
retrieval:
  top_k: 3
  backend: postgres
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	t.Setenv("FACTFLOW_SERVER_HTTP_PORT", "9999")

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, "postgres", cfg.Retrieval.Backend)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_HTTP_PORT", "6666")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, 6666, cfg.Server.HTTPPort)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("FACTFLOW_RETRIEVAL_TOP_K", "many")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FACTFLOW_RETRIEVAL_TOP_K")
}

func TestLoader_WithValidator(t *testing.T) {
	sentinel := errors.New("rejected")

	_, err := NewLoader().
		WithValidator(func(c *Config) error { return sentinel }).
		Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)

	cfg, err := NewLoader().
		WithValidator(func(c *Config) error { return c.Validate() }).
		Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath("/nonexistent/factflow.yaml").
		Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoader_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [unclosed"), 0644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config from file")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "bad http port", mutate: func(c *Config) { c.Server.HTTPPort = 70000 }, wantErr: "invalid HTTP port"},
		{name: "unknown backend", mutate: func(c *Config) { c.Retrieval.Backend = "qdrant" }, wantErr: "unknown retrieval backend"},
		{name: "zero top k", mutate: func(c *Config) { c.Retrieval.TopK = 0 }, wantErr: "top_k"},
		{name: "multiplier below one", mutate: func(c *Config) { c.Retrieval.RetrievalMultiplier = 0 }, wantErr: "retrieval_multiplier"},
		{name: "zero rrf k", mutate: func(c *Config) { c.Retrieval.RRFK = 0 }, wantErr: "rrf_k"},
		{name: "negative weight", mutate: func(c *Config) { c.Retrieval.VectorWeight = -1 }, wantErr: "must not be negative"},
		{
			name: "both weights zero",
			mutate: func(c *Config) {
				c.Retrieval.VectorWeight = 0
				c.Retrieval.KeywordWeight = 0
			},
			wantErr: "both be zero",
		},
		{name: "support ratio above one", mutate: func(c *Config) { c.Aggregation.SupportRatio = 1.5 }, wantErr: "support_ratio"},
		{name: "negative refute ratio", mutate: func(c *Config) { c.Aggregation.RefuteRatio = -0.1 }, wantErr: "refute_ratio"},
		{name: "zero time budget", mutate: func(c *Config) { c.Pipeline.TimeBudget = 0 }, wantErr: "time_budget"},
		{name: "max top k below top k", mutate: func(c *Config) { c.Retrieval.MaxTopK = 5 }, wantErr: "max_top_k"},
		{name: "max budget below budget", mutate: func(c *Config) { c.Pipeline.MaxTimeBudget = time.Second }, wantErr: "max_time_budget"},
		{name: "negative load timeout", mutate: func(c *Config) { c.Models.LoadTimeout = -time.Second }, wantErr: "load_timeout"},
		{name: "zero concurrent claims", mutate: func(c *Config) { c.Pipeline.MaxConcurrentClaims = 0 }, wantErr: "max_concurrent_claims"},
		{name: "unknown device", mutate: func(c *Config) { c.Models.Device = "tpu" }, wantErr: "models.device"},
		{
			name: "non-positive batch size",
			mutate: func(c *Config) {
				c.Models.BatchSizes = map[string]int{"embedding/standard": 0}
			},
			wantErr: "batch_sizes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name   string
		config DatabaseConfig
		want   string
	}{
		{
			name: "postgres",
			config: DatabaseConfig{
				Driver: "postgres", Host: "db", Port: 5432,
				User: "ff", Password: "pw", Name: "factflow", SSLMode: "disable",
			},
			want: "host=db port=5432 user=ff password=pw dbname=factflow sslmode=disable",
		},
		{
			name: "mysql",
			config: DatabaseConfig{
				Driver: "mysql", Host: "db", Port: 3306,
				User: "ff", Password: "pw", Name: "factflow",
			},
			want: "ff:pw@tcp(db:3306)/factflow?parseTime=true",
		},
		{
			name:   "sqlite",
			config: DatabaseConfig{Driver: "sqlite", Name: "/tmp/factflow.db"},
			want:   "/tmp/factflow.db",
		},
		{
			name:   "unknown",
			config: DatabaseConfig{Driver: "oracle"},
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.config.DSN())
		})
	}
}

func TestMustLoad_Success(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  http_port: 8181\n"), 0644))

	cfg := MustLoad(configPath)
	assert.Equal(t, 8181, cfg.Server.HTTPPort)
}

func TestMustLoad_InvalidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("{{{"), 0644))

	assert.Panics(t, func() { MustLoad(configPath) })
}

func TestLoadFromEnv_Function(t *testing.T) {
	t.Setenv("FACTFLOW_REDIS_ENABLED", "true")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.Redis.Enabled)
}
