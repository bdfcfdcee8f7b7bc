// Copyright (c) FactFlow Authors.
// Licensed under the MIT License.

/*
Package aggregation 将逐条证据的蕴含结果归约为声明级判定。

每个标签的票数为 Σ confidence × similarity（缺失相似度时取 1.0）。
阈值 τ = ratio × 证据条数，默认 ratio 为 0.3：

  - vote[entailment] > vote[contradiction] 且 > τ_support → SUPPORTED
  - vote[contradiction] > vote[entailment] 且 > τ_refute → REFUTED
  - 其余情况 → INSUFFICIENT

置信度为获胜票数占总票数的比例并截断到 [0,1]；INSUFFICIENT 报告中立票占比。
Aggregate 是纯函数，相同输入产生相同输出。
*/
package aggregation
