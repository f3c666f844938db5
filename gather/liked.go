package gather

import (
	"context"

	"github.com/rushteam/feedkit/core"
)

// LikedStore 提供点赞记录（按时间倒序的物品 ID）。
type LikedStore interface {
	LikedItems(ctx context.Context, userID string, limit int) ([]string, error)
}

// Liked 是点赞召集源：对最近点赞的物品做相关推荐扩展。
// 点赞是比观看更强的偏好信号，种子数量可以更少。
type Liked struct {
	Client core.ContentClient
	Store  LikedStore

	// SeedCount 是用作扩展种子的点赞条数（<=0 用默认 3）
	SeedCount int
	// PerSeed 是每个种子的相关候选条数（<=0 用默认 10）
	PerSeed int
}

func (s *Liked) Name() string        { return "gather.liked" }
func (s *Liked) Origin() core.Origin { return core.OriginLiked }

func (s *Liked) Gather(
	ctx context.Context,
	rctx *core.RecommendContext,
) ([]*core.Item, error) {
	if s.Client == nil || s.Store == nil || rctx == nil || rctx.UserID == "" {
		return nil, nil
	}

	seedCount := s.SeedCount
	if seedCount <= 0 {
		seedCount = 3
	}
	perSeed := s.PerSeed
	if perSeed <= 0 {
		perSeed = 10
	}

	seeds, err := s.Store.LikedItems(ctx, rctx.UserID, seedCount)
	if err != nil {
		return nil, err
	}

	var all []*core.Item
	for _, seed := range seeds {
		items, err := s.Client.Related(ctx, seed, perSeed)
		if err != nil {
			continue
		}
		all = append(all, items...)
	}
	return all, nil
}
