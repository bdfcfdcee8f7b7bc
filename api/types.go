package api

import (
	"math"
	"time"

	"github.com/BaSui01/factflow/types"
)

// =============================================================================
// 声明验证类型
// =============================================================================

// VerifyOptions 单次验证的可选参数，零值取服务端配置
// @Description 验证选项
type VerifyOptions struct {
	// 租户 ID，会下推到检索过滤条件
	TenantID string `json:"tenant_id,omitempty" example:"acme"`
	// 检索过滤条件
	Filters types.Filters `json:"filters,omitempty"`
	// 返回的最大证据数
	MaxEvidence int `json:"max_evidence,omitempty" example:"10"`
	// 向量检索权重覆盖
	VectorWeight *float64 `json:"vector_weight,omitempty" example:"0.5"`
	// 关键词检索权重覆盖
	KeywordWeight *float64 `json:"keyword_weight,omitempty" example:"0.5"`
	// 时间预算（毫秒）
	TimeBudgetMS int64 `json:"time_budget_ms,omitempty" example:"30000"`
}

// TimeBudget converts TimeBudgetMS to a duration, saturating instead of
// overflowing.
func (o VerifyOptions) TimeBudget() time.Duration {
	switch {
	case o.TimeBudgetMS > math.MaxInt64/int64(time.Millisecond):
		return time.Duration(math.MaxInt64)
	case o.TimeBudgetMS < math.MinInt64/int64(time.Millisecond):
		return time.Duration(math.MinInt64)
	}
	return time.Duration(o.TimeBudgetMS) * time.Millisecond
}

// VerifyRequest 单条声明验证请求
// @Description 声明验证请求
type VerifyRequest struct {
	// 待验证的声明
	Claim string `json:"claim" example:"The Eiffel Tower is in Paris." binding:"required"`
	VerifyOptions
}

// BatchVerifyRequest 批量验证请求，所有声明共享同一组选项
// @Description 批量声明验证请求
type BatchVerifyRequest struct {
	// 待验证的声明列表
	Claims []string `json:"claims" binding:"required"`
	VerifyOptions
}

// VerifyResponse 验证结果
// @Description 声明验证结果
type VerifyResponse struct {
	*types.VerificationResult
	// 处理耗时（毫秒）
	ProcessingMS int64 `json:"processing_ms"`
}

// NewVerifyResponse wraps a pipeline result for the wire.
func NewVerifyResponse(r *types.VerificationResult) *VerifyResponse {
	return &VerifyResponse{
		VerificationResult: r,
		ProcessingMS:       r.ProcessingTime.Milliseconds(),
	}
}

// BatchVerifyItem 批量结果中的单项，Result 与 Error 二选一
// @Description 批量验证单项结果
type BatchVerifyItem struct {
	Index  int             `json:"index"`
	Claim  string          `json:"claim"`
	Result *VerifyResponse `json:"result,omitempty"`
	Error  *ErrorBody      `json:"error,omitempty"`
}

// BatchVerifyResponse 批量验证结果，顺序与请求一致
// @Description 批量声明验证结果
type BatchVerifyResponse struct {
	Results   []BatchVerifyItem `json:"results"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

// ResultListResponse 历史结果列表
// @Description 验证结果列表
type ResultListResponse struct {
	Results []*VerifyResponse `json:"results"`
	Count   int               `json:"count"`
}

// ErrorBody 错误信息
// @Description 错误信息
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Stage     string `json:"stage,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}
