// Package config 提供 FactFlow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序叠加，
// 环境变量格式为 FACTFLOW_<SECTION>_<FIELD>，例如 FACTFLOW_RETRIEVAL_TOP_K。
package config
