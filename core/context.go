package core

import (
	"time"

	"github.com/rushteam/feedkit/pkg/utils"
)

// ProfileSnapshot 是兴趣画像在一次排序内的只读快照。
// 由 profile 包在互斥锁内拷贝产生，打分阶段不会观察到半更新状态。
type ProfileSnapshot struct {
	// Interests: 主题/类目 -> 衰减后的权重（非负）
	Interests map[string]float64
	// LastSeen: 主题 -> 最近一次互动时间（用于同权重排序）
	LastSeen map[string]time.Time
	// TopGenres 是快照时刻的 Top 类目（按权重降序）
	TopGenres []string
}

// Empty 判断画像是否为冷启动状态。
func (s *ProfileSnapshot) Empty() bool {
	return s == nil || len(s.Interests) == 0
}

// Weight 返回主题权重，未知主题为 0。
func (s *ProfileSnapshot) Weight(topic string) float64 {
	if s == nil || s.Interests == nil {
		return 0
	}
	return s.Interests[topic]
}

// RecommendContext 承载一次 Feed 刷新内的用户信息，贯穿整个 Pipeline 透传。
// 排序所需的全部输入在进入 Pipeline 前固定下来，各 Node 只读不写（Labels 除外）。
type RecommendContext struct {
	UserID    string
	RefreshID string // 单次刷新的追踪 ID，贯穿日志

	// Profile 是兴趣画像快照；nil 等价于空画像（冷启动）。
	Profile *ProfileSnapshot

	// Subscriptions 是已订阅的频道 ID 集合
	Subscriptions map[string]struct{}
	// WatchedIDs 是近期观看过的物品 ID 集合（打分阶段降权）
	WatchedIDs map[string]struct{}
	// LikedIDs 是点赞过的物品 ID 集合
	LikedIDs map[string]struct{}
	// SearchIDs 是由搜索兴趣产出的物品 ID 集合
	SearchIDs map[string]struct{}
	// ShownIDs 是近期已展示的物品 ID 集合（短内容流硬排除）
	ShownIDs map[string]struct{}

	// Limit 是期望的返回条数（<=0 表示不限制）
	Limit int

	// Now 是本次刷新的统一时间基准，衰减与新鲜度均以此计算。
	Now time.Time

	// Params 请求级上下文参数（region、feed 类型等）
	Params map[string]any

	// Labels 是用户级标签，可驱动整个 Pipeline 行为
	Labels map[string]utils.Label
}

// Subscribed 判断频道是否在订阅列表内。
func (rctx *RecommendContext) Subscribed(channelID string) bool {
	if rctx == nil || rctx.Subscriptions == nil {
		return false
	}
	_, ok := rctx.Subscriptions[channelID]
	return ok
}

// Watched 判断物品是否在近期观看历史内。
func (rctx *RecommendContext) Watched(itemID string) bool {
	if rctx == nil || rctx.WatchedIDs == nil {
		return false
	}
	_, ok := rctx.WatchedIDs[itemID]
	return ok
}

// Liked 判断物品是否被点赞过。
func (rctx *RecommendContext) Liked(itemID string) bool {
	if rctx == nil || rctx.LikedIDs == nil {
		return false
	}
	_, ok := rctx.LikedIDs[itemID]
	return ok
}

// SearchInterest 判断物品是否来自搜索兴趣。
func (rctx *RecommendContext) SearchInterest(itemID string) bool {
	if rctx == nil || rctx.SearchIDs == nil {
		return false
	}
	_, ok := rctx.SearchIDs[itemID]
	return ok
}

// PutLabel 写入用户级 Label。
func (rctx *RecommendContext) PutLabel(key string, lbl utils.Label) {
	if rctx.Labels == nil {
		rctx.Labels = make(map[string]utils.Label)
	}
	if old, ok := rctx.Labels[key]; ok {
		rctx.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	rctx.Labels[key] = lbl
}

// GetLabel 获取用户级 Label。
func (rctx *RecommendContext) GetLabel(key string) (utils.Label, bool) {
	if rctx.Labels == nil {
		return utils.Label{}, false
	}
	lbl, ok := rctx.Labels[key]
	return lbl, ok
}
