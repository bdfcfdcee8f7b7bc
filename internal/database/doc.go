// Copyright (c) FactFlow Authors.
// Licensed under the MIT License.

/*
包 database 提供基于 GORM 的数据库访问：连接打开、连接池管理与验证结果持久化。

# 核心类型

  - PoolManager：结果库连接池，后台监控定时探活并通过 StatsObserver
    上报连接数；Stats 的快照用于 /ready 详情。
  - PoolConfig：连接池配置，可由 PoolConfigFrom 从 config.DatabaseConfig 派生。
  - ResultRepository：verification_results 表的仓储，实现管线的 Recorder，
    证据、票数与降级记录以 JSON 列存储。

# 驱动

Open 按 database.driver 选择方言：postgres、mysql、sqlite（纯 Go）、
sqlite3（cgo）。生产环境表结构由 internal/migration 管理，AutoMigrate
仅用于嵌入式 sqlite 部署与测试。

# 事务

InTx 在事务中执行写操作；IsTransientError 识别的死锁、序列化失败、
锁等待超时与断连会按 llm/retry 的退避策略在新事务中重跑。
ResultRepository 通过 WithTxRunner 接入。
*/
package database
