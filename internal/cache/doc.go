// Copyright (c) FactFlow Authors.
// Licensed under the MIT License.

/*
包 cache 提供基于 Redis 的缓存管理能力，当前用于嵌入向量备忘录
（models.CachedEmbedder），使重复的声明与证据文本无需再次推理。

# 核心类型

  - Manager：缓存管理器，持有 Redis 客户端，提供 Get/GetMany/Set 与 JSON 变体
    等基础操作以及 GetJSON/SetJSON 便捷序列化方法，所有键自动加上 KeyPrefix。
  - Config：地址、密码、键前缀、默认 TTL、连接池与健康检查间隔。
  - Stats：本进程视角的命中/未命中计数与键数量。

# 错误语义

未命中返回 ErrCacheMiss，可用 IsCacheMiss 判断；关闭后的调用返回 ErrClosed。
*/
package cache
