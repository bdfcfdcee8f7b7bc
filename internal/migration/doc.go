// Copyright (c) FactFlow Authors.
// Licensed under the MIT License.

/*
Package migration 基于 golang-migrate 管理 FactFlow 的数据库 Schema。

迁移文件通过 embed 内嵌：postgres 方言包含 evidence 表（pgvector 向量列、
生成的 tsvector 列、HNSW 与 GIN 索引）和 verification_results 表；
mysql 与 sqlite 只包含 verification_results 表。

  - DefaultMigrator：Migrator 的默认实现，context 结束时请求 golang-migrate
    在当前迁移完成后停止。
  - CLI：供 `factflow migrate` 使用的格式化命令层，Run 按子命令分发。
  - NewMigratorFromConfig / DatabaseURLFromConfig：从应用配置构建迁移器。
*/
package migration
