// Copyright (c) FactFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 FactFlow 服务端程序与命令行入口。

# 概述

cmd/factflow 装配声明验证管线（模型缓存、混合检索、蕴含打分、结论聚合），
并以 HTTP API 或单次 CLI 的形式对外提供。配置由 YAML 文件与环境变量加载，
日志使用 zap，指标通过独立端口以 Prometheus 格式暴露。

# 核心类型

  - App        — 按配置装配的组件集合，serve、verify、warmup 共用
  - Server     — HTTP 与 Metrics 双端口服务器及优雅关闭
  - Middleware — func(http.Handler) http.Handler

# 子命令

  - serve：启动 API，可选后台预热模型
  - verify：验证单条声明，输出可读文本或 JSON
  - warmup：加载全部模型并输出各自耗时
  - migrate：数据库迁移（up、down、status 等）
  - health、version

# 中间件链

Recovery、RequestID、TenantHeader、OTelTracing、SecurityHeaders、
RequestLogger、MetricsMiddleware、RateLimiter（按租户或 IP）。
*/
package main
