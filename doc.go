// Package feedkit 是一个设备端的个性化 Feed 排序引擎（Feed Kit）。
//
// 设计要点：
// - Pipeline-first: 一次刷新拆成可组合的 Node 链（Gather → Filter → Rank → ReRank）
// - 本地画像: 兴趣模型完全在设备端增量维护，无服务端 profile
// - 失败隔离: 召集源各自独立超时与降级，公共 API 不向 UI 抛未处理错误
package feedkit

import "github.com/rushteam/feedkit/pipeline"

// 轻量 facade：便于用户直接 import "feedkit" 使用核心抽象。
type Pipeline = pipeline.Pipeline
type Node = pipeline.Node
type Kind = pipeline.Kind

const (
	KindGather      = pipeline.KindGather
	KindFilter      = pipeline.KindFilter
	KindRank        = pipeline.KindRank
	KindReRank      = pipeline.KindReRank
	KindPostProcess = pipeline.KindPostProcess
)
