// Copyright (c) FactFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 FactFlow HTTP API 的请求处理器实现。

# 概述

handlers 包实现声明验证、结果查询、健康检查以及统一的响应/错误处理。
所有 Handler 均遵循标准 net/http 接口，路由使用带方法的 ServeMux 模式。

# 核心类型

  - VerifyHandler    — POST /v1/verify、POST /v1/verify/batch、GET /v1/results
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready, /version）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck      — 可插拔就绪检查接口（模型预热、数据库、Redis）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码映射，管线 StageError 记录失败阶段
  - 批量验证中单条失败以 error 项返回，不影响其他声明
*/
package handlers
