// Copyright (c) FactFlow Authors.
// Licensed under the MIT License.

/*
包 models 管理嵌入与蕴含两类推理模型的资源句柄。

# 概述

Cache 在整个进程生命周期内为每种模型最多构建一个提供者：
首次 Get 时探测执行设备、查表得到最佳批大小并调用注册的 Factory，
并发的首次访问只构建一次（singleflight），构建失败不缓存，下一次 Get 会重试。
Cache 通过构造函数注入，不使用全局单例。

# 核心类型

  - Kind：模型种类（embedding、entailment）。
  - Device / DeviceClass：执行设备及其等级（accelerated、standard）。
  - DeviceDetector：按顺序执行的设备探测器列表，cpu 探测总是成功。
  - BatchSizeTable：(Kind, DeviceClass) → 批大小的静态表，可被配置覆盖。
  - Handle：已加载的模型句柄，除访问计数外创建后不可变。
  - CachedEmbedder：带 Redis 备忘录的嵌入提供者包装。

# 内存压力

ReleasePressure 由管线在大批量打分后调用，缓存自身从不主动调用。
*/
package models
