package filter

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rushteam/feedkit/core"
)

// DefaultShownCap 是"近期已展示"集合的默认容量。
const DefaultShownCap = 200

// ShownFilter 硬排除近期已展示的候选，用于短内容流。
// 集合有容量上限，超出按 LRU 淘汰：被淘汰的物品重新获得出现资格。
//
// 注意策略差异：长内容 Feed 对已观看候选只在打分阶段降权（rank.Scorer），
// 短内容流则在此硬排除——两种策略各自显式存在，不混用。
type ShownFilter struct {
	cache *lru.Cache[string, struct{}]
}

// NewShownFilter 创建已展示过滤器；capacity <= 0 用默认容量。
func NewShownFilter(capacity int) (*ShownFilter, error) {
	if capacity <= 0 {
		capacity = DefaultShownCap
	}
	cache, err := lru.New[string, struct{}](capacity)
	if err != nil {
		return nil, err
	}
	return &ShownFilter{cache: cache}, nil
}

func (f *ShownFilter) Name() string { return "filter.shown" }

// MarkShown 将一批物品记入已展示集合（编排层在每次返回 Feed 后调用）。
func (f *ShownFilter) MarkShown(ids []string) {
	for _, id := range ids {
		if id == "" {
			continue
		}
		f.cache.Add(id, struct{}{})
	}
}

// Contains 判断物品是否在已展示集合内（不刷新其 LRU 顺序）。
func (f *ShownFilter) Contains(id string) bool {
	_, ok := f.cache.Peek(id)
	return ok
}

// Len 返回当前集合大小。
func (f *ShownFilter) Len() int { return f.cache.Len() }

func (f *ShownFilter) ShouldFilter(
	_ context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil {
		return true, nil
	}
	// 外部钦定的头条不受已展示排除影响
	if item.Pinned {
		return false, nil
	}
	if f.Contains(item.ID) {
		return true, nil
	}
	// rctx 随请求携带的已展示集合同样硬排除
	if rctx != nil && rctx.ShownIDs != nil {
		if _, ok := rctx.ShownIDs[item.ID]; ok {
			return true, nil
		}
	}
	return false, nil
}

var _ Filter = (*ShownFilter)(nil)
