// Copyright (c) FactFlow Authors.
// Licensed under the MIT License.

// Package tlsutil 提供集中式 TLS 配置与连接池化的 HTTP 客户端，
// 用于嵌入/蕴含模型服务调用和启用 TLS 的 Redis 连接（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
