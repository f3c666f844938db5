package gather

import (
	"context"

	"github.com/rushteam/feedkit/core"
)

// Trending 是冷启动/热门兜底源。作为 Fanout.Fallback 使用时，
// 仅在画像为空或主源候选不足时执行，保证全新用户也有非空 Feed。
type Trending struct {
	Client core.ContentClient

	// Region 为空时依次取 rctx.Params["region"]，再退到默认区域
	Region string
	// Limit 是候选条数（<=0 用默认 30）
	Limit int
}

func (s *Trending) Name() string        { return "gather.trending" }
func (s *Trending) Origin() core.Origin { return core.OriginTrending }

func (s *Trending) Gather(
	ctx context.Context,
	rctx *core.RecommendContext,
) ([]*core.Item, error) {
	if s.Client == nil {
		return nil, nil
	}

	limit := s.Limit
	if limit <= 0 {
		limit = 30
	}

	region := s.Region
	if region == "" && rctx != nil && rctx.Params != nil {
		if r, ok := rctx.Params["region"].(string); ok {
			region = r
		}
	}

	return s.Client.Trending(ctx, region, limit)
}
