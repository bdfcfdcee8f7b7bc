// Package entailment 提供自然语言推理（NLI）提供者接口和 HTTP 实现.
package entailment

import (
	"context"

	"github.com/BaSui01/factflow/types"
)

// Pair 一条待判断的 (前提, 假设) 文本对.
type Pair struct {
	Premise    string `json:"premise"`
	Hypothesis string `json:"hypothesis"`
}

// Prediction 提供者对单个文本对的原始输出.
// Label 仅供参考，调用方根据 Scores 重新取 argmax.
type Prediction struct {
	Label  types.Label             `json:"label"`
	Scores map[types.Label]float64 `json:"scores"`
}

// Provider 定义统一的蕴含推理接口.
type Provider interface {
	// InferBatch 对一批文本对推理，返回结果与输入一一对应.
	InferBatch(ctx context.Context, pairs []Pair) ([]Prediction, error)

	// Name 返回提供者名称.
	Name() string

	// MaxBatchSize 返回单次请求支持的最大文本对数.
	MaxBatchSize() int
}
