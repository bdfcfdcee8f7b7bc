// Copyright (c) FactFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 FactFlow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 rag、scoring、aggregation、
pipeline、api 等上层模块提供统一的数据契约，以避免循环依赖。

# 核心类型

  - Claim / Filters         — 待验证的声明及检索过滤条件
  - EvidenceCandidate       — 检索命中（向量排名、关键词排名、融合分数、相似度）
  - Label / EntailmentResult — 三分类蕴含判断（entailment / contradiction / neutral）
  - Verdict                 — SUPPORTED / REFUTED / INSUFFICIENT
  - VerificationResult      — 管线输出（判定、置信度、证据、解释、降级记录）
  - Error / ErrorCode       — 结构化错误体系，含 HTTP 状态码、Retryable、Provider 标记

# 错误分类

PROVIDER_UNAVAILABLE 是唯一可能终止单个声明验证的错误；RETRIEVAL_DEGRADED、
EMPTY_EVIDENCE、PARTIAL_SCORING_FAILURE、BUDGET_EXCEEDED 以 Degradation 的形式
记录在结果上，而不是作为 error 返回。
*/
package types
