package entailment

import "time"

// HTTPConfig configures an NLI inference server.
type HTTPConfig struct {
	BaseURL  string        `json:"base_url" yaml:"base_url"`
	APIKey   string        `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Model    string        `json:"model,omitempty" yaml:"model,omitempty"`
	Path     string        `json:"path,omitempty" yaml:"path,omitempty"`
	MaxBatch int           `json:"max_batch,omitempty" yaml:"max_batch,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// RateLimitRPS 0 表示不限流
	RateLimitRPS float64 `json:"rate_limit_rps,omitempty" yaml:"rate_limit_rps,omitempty"`
	// MaxRetries 可重试错误的重试次数
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
}

// DefaultHTTPConfig returns defaults for a local NLI server.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		BaseURL:  "http://localhost:8082",
		Model:    "microsoft/deberta-large-mnli",
		Path:     "/v1/nli",
		MaxBatch: 128,
		Timeout:  60 * time.Second,
	}
}
