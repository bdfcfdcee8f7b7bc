package pipeline

import (
	"fmt"
	"time"

	"github.com/BaSui01/factflow/config"
	"github.com/BaSui01/factflow/types"
)

// Config 管线配置
type Config struct {
	// 单个声明的默认时间预算
	TimeBudget time.Duration `json:"time_budget"`
	// 默认证据条数
	MaxEvidence int `json:"max_evidence"`
	// 单次请求可要求的最大证据条数
	MaxEvidenceLimit int `json:"max_evidence_limit"`
	// 单次请求可要求的最大时间预算
	MaxTimeBudget time.Duration `json:"max_time_budget"`
	// 打分对数超过该值后释放模型内存
	PressureThreshold int `json:"pressure_threshold"`
	// VerifyBatch 的最大并发声明数
	MaxConcurrentClaims int `json:"max_concurrent_claims"`
	// 写入结果的超时
	RecordTimeout time.Duration `json:"record_timeout"`
}

// DefaultConfig 返回默认管线配置
func DefaultConfig() Config {
	return Config{
		TimeBudget:          30 * time.Second,
		MaxEvidence:         10,
		MaxEvidenceLimit:    100,
		MaxTimeBudget:       5 * time.Minute,
		PressureThreshold:   1000,
		MaxConcurrentClaims: 8,
		RecordTimeout:       5 * time.Second,
	}
}

// ConfigFrom 从应用配置派生管线配置
func ConfigFrom(cfg *config.Config) Config {
	out := DefaultConfig()
	if cfg.Pipeline.TimeBudget > 0 {
		out.TimeBudget = cfg.Pipeline.TimeBudget
	}
	if cfg.Pipeline.PressureThreshold > 0 {
		out.PressureThreshold = cfg.Pipeline.PressureThreshold
	}
	if cfg.Pipeline.MaxConcurrentClaims > 0 {
		out.MaxConcurrentClaims = cfg.Pipeline.MaxConcurrentClaims
	}
	if cfg.Retrieval.TopK > 0 {
		out.MaxEvidence = cfg.Retrieval.TopK
	}
	if cfg.Retrieval.MaxTopK > 0 {
		out.MaxEvidenceLimit = cfg.Retrieval.MaxTopK
	}
	if cfg.Pipeline.MaxTimeBudget > 0 {
		out.MaxTimeBudget = cfg.Pipeline.MaxTimeBudget
	}
	return out
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.TimeBudget <= 0 {
		c.TimeBudget = def.TimeBudget
	}
	if c.MaxEvidence <= 0 {
		c.MaxEvidence = def.MaxEvidence
	}
	if c.MaxEvidenceLimit <= 0 {
		c.MaxEvidenceLimit = max(def.MaxEvidenceLimit, c.MaxEvidence)
	}
	if c.MaxTimeBudget <= 0 {
		c.MaxTimeBudget = max(def.MaxTimeBudget, c.TimeBudget)
	}
	if c.PressureThreshold <= 0 {
		c.PressureThreshold = def.PressureThreshold
	}
	if c.MaxConcurrentClaims <= 0 {
		c.MaxConcurrentClaims = def.MaxConcurrentClaims
	}
	if c.RecordTimeout <= 0 {
		c.RecordTimeout = def.RecordTimeout
	}
	return c
}

// Options 单次验证选项，零值取配置默认值
type Options struct {
	MaxEvidence   int           `json:"max_evidence,omitempty"`
	VectorWeight  *float64      `json:"vector_weight,omitempty"`
	KeywordWeight *float64      `json:"keyword_weight,omitempty"`
	Filters       types.Filters `json:"filters,omitempty"`
	TenantID      string        `json:"tenant_id,omitempty"`
	TimeBudget    time.Duration `json:"time_budget,omitempty"`
}

// Validate 校验选项
func (o Options) Validate() error {
	if o.MaxEvidence < 0 {
		return types.NewInvalidRequestError("max_evidence must not be negative")
	}
	if o.VectorWeight != nil && *o.VectorWeight < 0 {
		return types.NewInvalidRequestError("vector_weight must not be negative")
	}
	if o.KeywordWeight != nil && *o.KeywordWeight < 0 {
		return types.NewInvalidRequestError("keyword_weight must not be negative")
	}
	if o.TimeBudget < 0 {
		return types.NewInvalidRequestError("time_budget must not be negative")
	}
	if o.TenantID != "" && o.Filters.TenantID != "" && o.TenantID != o.Filters.TenantID {
		return types.NewInvalidRequestError("tenant_id conflicts with filters.tenant_id")
	}
	return o.Filters.Validate()
}

// ValidateFor 在 Validate 的基础上检查配置给出的上限
func (o Options) ValidateFor(c Config) error {
	if err := o.Validate(); err != nil {
		return err
	}
	c = c.withDefaults()
	if o.MaxEvidence > c.MaxEvidenceLimit {
		return types.NewInvalidRequestError(
			fmt.Sprintf("max_evidence must not exceed %d", c.MaxEvidenceLimit))
	}
	if o.TimeBudget > c.MaxTimeBudget {
		return types.NewInvalidRequestError(
			fmt.Sprintf("time_budget must not exceed %s", c.MaxTimeBudget))
	}
	return nil
}
