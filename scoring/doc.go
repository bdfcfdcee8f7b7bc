// Copyright (c) FactFlow Authors.
// Licensed under the MIT License.

/*
Package scoring 对 (证据, 声明) 文本对批量执行蕴含推理。

Scorer 从模型缓存取得蕴含模型句柄，按句柄推荐的批大小切块，
每个块在推理工作池上执行，结果按输入顺序重新组装。标签取分数
argmax，置信度取该标签概率，提供者返回的标签不被信任。

单块失败时可逐条重试，只丢弃真正失败的文本对；context 结束后
不再派发新块，已完成的块保留并标记 Truncated。
*/
package scoring
