package core

// Origin 标识候选来自哪个召集源（Gatherer）。
// 去重时用固定的来源优先级挑选代表项：订阅 > 历史 > 点赞 > 搜索 > 热门。
type Origin string

const (
	OriginSubscription Origin = "subscription" // 订阅频道最新上传
	OriginHistory      Origin = "history"      // 观看历史相关推荐
	OriginLiked        Origin = "liked"        // 点赞内容相关推荐
	OriginSearch       Origin = "search"       // 兴趣搜索 / 发现查询
	OriginTrending     Origin = "trending"     // 冷启动 / 热门兜底
)

// originPriority 越小优先级越高。未知来源排在最后。
var originPriority = map[Origin]int{
	OriginSubscription: 0,
	OriginHistory:      1,
	OriginLiked:        2,
	OriginSearch:       3,
	OriginTrending:     4,
}

// Priority 返回来源的固定优先级（0 最高）。
// 这是一个纯排序函数，不做任何运行时类型判断。
func (o Origin) Priority() int {
	if p, ok := originPriority[o]; ok {
		return p
	}
	return len(originPriority)
}

// OriginSet 是候选的来源集合。合并去重时取并集：
// 同一物品被多个源召回是强信号，打分阶段会利用这一点。
type OriginSet map[Origin]struct{}

// NewOriginSet 由若干来源构建集合。
func NewOriginSet(origins ...Origin) OriginSet {
	s := make(OriginSet, len(origins))
	for _, o := range origins {
		s[o] = struct{}{}
	}
	return s
}

// Has 判断集合是否包含指定来源。
func (s OriginSet) Has(o Origin) bool {
	_, ok := s[o]
	return ok
}

// Len 返回集合大小。
func (s OriginSet) Len() int { return len(s) }

// Union 返回两个集合的并集（新集合，不修改原集合）。
func (s OriginSet) Union(other OriginSet) OriginSet {
	out := make(OriginSet, len(s)+len(other))
	for o := range s {
		out[o] = struct{}{}
	}
	for o := range other {
		out[o] = struct{}{}
	}
	return out
}

// Best 返回集合中优先级最高的来源；空集合返回 ""。
func (s OriginSet) Best() Origin {
	best := Origin("")
	bestPriority := -1
	for o := range s {
		if p := o.Priority(); bestPriority < 0 || p < bestPriority {
			best, bestPriority = o, p
		}
	}
	return best
}

// List 返回按优先级排序的来源列表（稳定输出，便于测试与日志）。
func (s OriginSet) List() []Origin {
	out := make([]Origin, 0, len(s))
	for o := range s {
		out = append(out, o)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Priority() < out[j-1].Priority(); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
