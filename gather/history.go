package gather

import (
	"context"

	"github.com/rushteam/feedkit/core"
)

// HistoryStore 提供近期观看记录（按时间倒序的物品 ID）。
type HistoryStore interface {
	RecentWatched(ctx context.Context, userID string, limit int) ([]string, error)
}

// History 是观看历史召集源：对最近观看的若干物品做相关推荐扩展。
type History struct {
	Client core.ContentClient
	Store  HistoryStore

	// SeedCount 是用作扩展种子的历史条数（<=0 用默认 5）
	SeedCount int
	// PerSeed 是每个种子的相关候选条数（<=0 用默认 10）
	PerSeed int
}

func (s *History) Name() string        { return "gather.history" }
func (s *History) Origin() core.Origin { return core.OriginHistory }

func (s *History) Gather(
	ctx context.Context,
	rctx *core.RecommendContext,
) ([]*core.Item, error) {
	if s.Client == nil || s.Store == nil || rctx == nil || rctx.UserID == "" {
		return nil, nil
	}

	seedCount := s.SeedCount
	if seedCount <= 0 {
		seedCount = 5
	}
	perSeed := s.PerSeed
	if perSeed <= 0 {
		perSeed = 10
	}

	seeds, err := s.Store.RecentWatched(ctx, rctx.UserID, seedCount)
	if err != nil {
		return nil, err
	}

	var all []*core.Item
	for _, seed := range seeds {
		items, err := s.Client.Related(ctx, seed, perSeed)
		if err != nil {
			// 单种子失败跳过，继续其余种子
			continue
		}
		all = append(all, items...)
	}
	return all, nil
}
