// Copyright (c) FactFlow Authors.
// Licensed under the MIT License.

/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动、
优雅关闭、关闭钩子与系统信号监听。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道，
    提供 Start/Shutdown/WaitForShutdown 等生命周期方法。
    factflow serve 为 API 与 metrics 各创建一个 Manager。
  - Config：监听地址、读写超时、空闲超时、最大请求头大小与
    优雅关闭超时；ConfigFrom 从 config.ServerConfig 派生。
  - ShutdownHook：服务器排空后执行，用于关闭推理池与数据库连接。

# 关闭流程

WaitForShutdown 在 SIGINT/SIGTERM、服务器异常退出或 ctx 结束时
触发 Shutdown；Shutdown 先排空请求，再依序执行钩子并合并错误。
*/
package server
