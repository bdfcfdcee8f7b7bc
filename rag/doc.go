// Copyright (c) FactFlow Authors.
// Licensed under the MIT License.

/*
# 概述

Package rag 实现声明验证所用的混合证据检索：语义（向量）与词法（关键词）
两个子查询并发执行，结果通过加权 Reciprocal Rank Fusion（RRF）融合。

# 核心接口/类型

  - EvidenceStore — 证据库接口，提供 VectorQuery 与 KeywordQuery 两个子查询，
    过滤条件（租户、来源、日期范围）下推到两个子查询中。
  - InMemoryEvidenceStore — 内存实现，余弦相似度 + BM25，用于测试与 memory 后端。
  - PostgresEvidenceStore — gorm + pgvector 实现，余弦距离与 ts_rank_cd 全文检索。
  - HybridRetriever — 并发执行子查询、融合并截断到 top_k，子查询失败时降级。
  - Fuse / NormalizeWeights — 纯函数形式的 RRF 融合与权重归一化。

# 融合规则

	score = wv/(k+rv) + wk/(k+rk)

缺失的排名贡献 0；同一列表内的重复 ID 保留最好排名；排序依次按融合分降序、
最好单项排名升序、evidence_id 升序，保证结果完全确定。
*/
package rag
