// Copyright (c) FactFlow Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、模型推理、声明验证、缓存与数据库五个维度。

# 核心类型

  - Collector：指标收集器，通过 promauto 自动注册，按 namespace 隔离。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 推理指标：调用次数、耗时、文本数，模型句柄加载次数与加载耗时。
  - 验证指标：按 verdict/retrieval_mode 的验证次数、端到端耗时、
    各阶段耗时、检索模式与候选数、降级次数、打分文本对成功/失败数。
  - 缓存指标：命中与未命中计数，按 cache_type 分组。
  - 数据库指标：活跃/空闲连接数 Gauge、查询耗时 Histogram。
*/
package metrics
