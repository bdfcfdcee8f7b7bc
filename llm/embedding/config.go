package embedding

import "time"

// OpenAIConfig configures an OpenAI-compatible embedding endpoint
// (OpenAI, text-embeddings-inference, vLLM).
type OpenAIConfig struct {
	APIKey     string        `json:"api_key" yaml:"api_key"`
	BaseURL    string        `json:"base_url" yaml:"base_url"`
	Model      string        `json:"model,omitempty" yaml:"model,omitempty"`
	Dimensions int           `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	MaxBatch   int           `json:"max_batch,omitempty" yaml:"max_batch,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// MaxRetries 可重试错误（5xx、429、网络错误）的重试次数
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
}

// DefaultOpenAIConfig returns defaults for a local sentence-transformers server.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL:    "http://localhost:8081",
		Model:      "sentence-transformers/all-MiniLM-L6-v2",
		Dimensions: 384,
		MaxBatch:   256,
		Timeout:    30 * time.Second,
	}
}
