package gather

import (
	"context"

	"github.com/rushteam/feedkit/core"
)

// Source 表示一个可并发 fan-out 的候选召集源（订阅/历史/点赞/搜索/热门）。
// 约定：
//   - Gather 不得修改共享状态，结果只经 Fanout 合并
//   - 失败域独立：报错或超时只影响本源，由 Fanout 就地吞掉
type Source interface {
	Name() string
	Origin() core.Origin
	Gather(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error)
}
