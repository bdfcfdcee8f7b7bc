// Copyright (c) FactFlow Authors.
// Licensed under the MIT License.

/*
包 embedding 提供统一的文本嵌入（Embedding）接口与 OpenAI 兼容实现，
用于把声明与证据文本转换为向量以支持语义检索。

# 核心接口

  - Provider：统一嵌入接口，定义 Embed、EmbedQuery、EmbedDocuments 等方法。
  - EmbeddingRequest / EmbeddingResponse：标准化的请求与响应模型。
  - BaseProvider：公共基类，封装 HTTP 请求、错误映射与分批辅助方法。
  - OpenAIProvider：对接 OpenAI、text-embeddings-inference、vLLM 等 /v1/embeddings 端点。

# 错误处理

传输错误与 HTTP 状态统一映射为 types.Error，429 与 5xx 标记为可重试。
*/
package embedding
