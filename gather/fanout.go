package gather

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/feedkit/core"
	"github.com/rushteam/feedkit/pipeline"
	"github.com/rushteam/feedkit/pkg/utils"
)

// DefaultSourceTimeout 是单个召集源的默认超时。
const DefaultSourceTimeout = 8 * time.Second

// Fanout 是一个 Gather Node：并发执行所有召集源，合并去重后输出候选集。
//
// 失败隔离：某个源报错或超时只会让该源降级为空结果并记一条 warn 日志，
// 绝不中断其他源，也不让本 Node 失败。唯一的例外是所有源全部失败，
// 此时返回 core.ErrAllSourcesFailed，由编排层走缓存兜底。
//
// 合并去重：按 ID 分组（O(n)），代表项取来源优先级最高者的元信息，
// Origins 取全部出现的并集——同一物品被多源召回是强信号，打分阶段会用到。
type Fanout struct {
	Sources []Source

	// Fallback 是冷启动/兜底源（通常为 Trending）：
	// 仅当画像为空或主源候选数低于 MinCandidates 时才执行，
	// 保证全新用户也能拿到非空 Feed。
	Fallback      Source
	MinCandidates int

	// Timeout 是每个召集源的超时时间（而非全局超时），
	// 慢源不会拖垮其他源对候选池的贡献。
	Timeout time.Duration

	Logger zerolog.Logger
}

func (n *Fanout) Name() string        { return "gather.fanout" }
func (n *Fanout) Kind() pipeline.Kind { return pipeline.KindGather }

func (n *Fanout) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	if len(n.Sources) == 0 {
		return nil, nil
	}

	timeout := n.Timeout
	if timeout <= 0 {
		timeout = DefaultSourceTimeout
	}

	var (
		mu     sync.Mutex
		all    []*core.Item
		failed int
		eg, _  = errgroup.WithContext(ctx)
	)

	for _, src := range n.Sources {
		s := src
		eg.Go(func() error {
			gatherCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			items, err := s.Gather(gatherCtx, rctx)
			if err != nil {
				// 源级失败就地恢复为空结果，只记日志，不上抛
				n.Logger.Warn().Err(err).
					Str("source", s.Name()).
					Str("refresh_id", refreshID(rctx)).
					Msg("gather source failed")
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}

			for _, it := range items {
				if it == nil {
					continue
				}
				if it.Origins == nil {
					it.Origins = make(core.OriginSet)
				}
				it.Origins[s.Origin()] = struct{}{}
				it.PutLabel("gather_source", utils.Label{Value: s.Name(), Source: "gather"})
			}

			mu.Lock()
			all = append(all, items...)
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged := MergeAndDeduplicate(all)

	// 冷启动 / 候选不足时追加兜底源
	if n.Fallback != nil && (profileEmpty(rctx) || len(merged) < n.MinCandidates) {
		fallbackCtx, cancel := context.WithTimeout(ctx, timeout)
		items, err := n.Fallback.Gather(fallbackCtx, rctx)
		cancel()
		if err != nil {
			n.Logger.Warn().Err(err).
				Str("source", n.Fallback.Name()).
				Str("refresh_id", refreshID(rctx)).
				Msg("fallback source failed")
			failed++
		} else {
			for _, it := range items {
				if it == nil {
					continue
				}
				if it.Origins == nil {
					it.Origins = make(core.OriginSet)
				}
				it.Origins[n.Fallback.Origin()] = struct{}{}
				it.PutLabel("gather_source", utils.Label{Value: n.Fallback.Name(), Source: "gather"})
			}
			merged = MergeAndDeduplicate(append(merged, items...))
		}
	}

	// 候选池整体为空等价于全源失败：编排层据此走缓存兜底
	if len(merged) == 0 {
		return nil, core.ErrAllSourcesFailed
	}

	n.Logger.Debug().
		Int("candidates", len(merged)).
		Int("failed_sources", failed).
		Str("refresh_id", refreshID(rctx)).
		Msg("gather fanout done")
	return merged, nil
}

func profileEmpty(rctx *core.RecommendContext) bool {
	return rctx == nil || rctx.Profile.Empty()
}

// MergeAndDeduplicate 按 ID 分组去重：
//   - 代表项 = 来源优先级最高的那次出现的元信息
//   - Origins = 所有出现的并集（不丢弃，供多源加成使用）
//   - Pinned 只要任一出现为 true 即保留
//
// 输出顺序不承诺；最终顺序完全由打分阶段决定。
func MergeAndDeduplicate(all []*core.Item) []*core.Item {
	idx := make(map[string]int, len(all))
	out := make([]*core.Item, 0, len(all))
	for _, it := range all {
		if it == nil || it.ID == "" {
			continue
		}
		i, ok := idx[it.ID]
		if !ok {
			idx[it.ID] = len(out)
			out = append(out, it)
			continue
		}
		old := out[i]

		pinned := old.Pinned || it.Pinned
		origins := old.Origins.Union(it.Origins)

		// 新出现的来源优先级更高时替换代表项
		if it.Origins.Best().Priority() < old.Origins.Best().Priority() {
			for k, v := range old.Labels {
				it.PutLabel(k, v)
			}
			old = it
			out[i] = it
		} else {
			for k, v := range it.Labels {
				old.PutLabel(k, v)
			}
		}
		old.Origins = origins
		old.Pinned = pinned
	}
	return out
}

func refreshID(rctx *core.RecommendContext) string {
	if rctx == nil {
		return ""
	}
	return rctx.RefreshID
}
