package core

import "time"

// RankingResult 是一次完整排序的产出：有序候选列表 + 元信息。
// Unavailable 为 true 表示所有召集源失败且无可用缓存，
// 这是唯一需要 UI 特殊处理的状态（显示"推荐暂不可用"），不是错误。
type RankingResult struct {
	Items       []*Item
	GeneratedAt time.Time

	// Stale 表示结果来自过期缓存（所有源失败时的兜底）。
	Stale bool

	// Unavailable 表示完全无法产出 Feed（无候选且无缓存）。
	Unavailable bool

	// Shown 是本次返回后应标记为"已展示"的物品 ID。
	Shown []string
}

// Empty 判断结果是否不含任何候选。
func (r *RankingResult) Empty() bool {
	return r == nil || len(r.Items) == 0
}
