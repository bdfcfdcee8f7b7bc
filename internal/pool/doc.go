// Copyright (c) FactFlow Authors.
// Licensed under the MIT License.

/*
Package pool 提供推理调用使用的有界 goroutine 池与字节缓冲区池。

GoroutinePool 默认按 CPU 数量限制并发 worker。SubmitWait 在调用方
context 结束时立即返回，已开始的任务在脱离取消的 context 上继续执行，
其结果被丢弃；Run 是带返回值的泛型封装。

ByteBufferPool 为 provider 客户端复用请求体缓冲区。
*/
package pool
