package core

import (
	"time"

	"github.com/rushteam/feedkit/pkg/utils"
)

// Item 是 Feed 链路中的统一承载结构：候选元信息、来源集合、分数与分项明细。
// Labels 用于解释与观测；Score 用于排序决策。
// 同一轮排序内 ID 全局唯一，重复候选在合并阶段按来源优先级归并。
type Item struct {
	ID         string
	Title      string
	ChannelID  string
	Duration   time.Duration
	Views      int64
	UploadedAt time.Time // 零值表示上传时间未知

	// Origins 记录候选由哪些召集源产出，合并阶段取并集。
	Origins OriginSet

	// Pinned 标记外部钦定的首位物品（如平台置顶），变换洗牌时保持第一。
	Pinned bool

	Score     float64
	Breakdown ScoreBreakdown

	Meta   map[string]any
	Labels map[string]utils.Label
}

// ScoreBreakdown 是单个候选的分数分项，便于 explain 与测试断言。
type ScoreBreakdown struct {
	Affinity    float64 // 兴趣画像匹配
	SourceBoost float64 // 来源加成（订阅/点赞/搜索兴趣，多来源叠加）
	Recency     float64 // 上传新鲜度
	Penalty     float64 // 重复观看惩罚（负向）
	RuleBoost   float64 // 规则加成（CEL 表达式命中）
}

// Total 返回分项之和，应当等于 Item.Score。
func (b ScoreBreakdown) Total() float64 {
	return b.Affinity + b.SourceBoost + b.Recency + b.Penalty + b.RuleBoost
}

func NewItem(id string) *Item {
	return &Item{
		ID:      id,
		Origins: make(OriginSet),
		Meta:    make(map[string]any),
		Labels:  make(map[string]utils.Label),
	}
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (it *Item) PutLabel(key string, lbl utils.Label) {
	if it.Labels == nil {
		it.Labels = make(map[string]utils.Label)
	}
	if old, ok := it.Labels[key]; ok {
		it.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	it.Labels[key] = lbl
}

// Topic 返回候选的主题标签，用于兴趣匹配。
// 取值优先级：label["topic"] > meta["topic"] (string) > ChannelID。
func (it *Item) Topic() string {
	if it.Labels != nil {
		if lbl, ok := it.Labels["topic"]; ok && lbl.Value != "" {
			return lbl.Value
		}
	}
	if it.Meta != nil {
		if v, ok := it.Meta["topic"]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return it.ChannelID
}
