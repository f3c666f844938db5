package gather

import (
	"context"

	"github.com/rushteam/feedkit/core"
	"github.com/rushteam/feedkit/pkg/utils"
)

// QueryProvider 产出发现查询。profile.Profile 即满足此接口。
type QueryProvider interface {
	DiscoveryQueries(count int) []string
}

// Search 是搜索兴趣召集源：用画像派生的发现查询检索候选并展平。
// 查询文本写入 label["query"]，候选主题写入 label["topic"]，供打分阶段做兴趣匹配。
type Search struct {
	Client  core.ContentClient
	Queries QueryProvider

	// QueryCount 是本次派生的查询条数（<=0 用默认 3）
	QueryCount int
	// PerQuery 是每条查询的候选条数（<=0 用默认 10）
	PerQuery int
}

func (s *Search) Name() string        { return "gather.search" }
func (s *Search) Origin() core.Origin { return core.OriginSearch }

func (s *Search) Gather(
	ctx context.Context,
	rctx *core.RecommendContext,
) ([]*core.Item, error) {
	if s.Client == nil || s.Queries == nil {
		return nil, nil
	}

	queryCount := s.QueryCount
	if queryCount <= 0 {
		queryCount = 3
	}
	perQuery := s.PerQuery
	if perQuery <= 0 {
		perQuery = 10
	}

	var all []*core.Item
	for _, q := range s.Queries.DiscoveryQueries(queryCount) {
		items, err := s.Client.Search(ctx, q, perQuery)
		if err != nil {
			// 单查询失败跳过，继续其余查询
			continue
		}
		for _, it := range items {
			if it == nil {
				continue
			}
			it.PutLabel("query", utils.Label{Value: q, Source: "gather"})
			if _, ok := it.Labels["topic"]; !ok {
				it.PutLabel("topic", utils.Label{Value: q, Source: "gather"})
			}
		}
		all = append(all, items...)
	}
	return all, nil
}
