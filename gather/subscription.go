package gather

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rushteam/feedkit/core"
)

// Subscription 是订阅召集源：为每个已订阅频道抓取最新上传。
// 每频道一次请求，errgroup 限制并发，rate.Limiter 约束对内容端的请求速率，
// 候选总量有上限。
type Subscription struct {
	Client core.ContentClient

	// PerChannel 是单频道抓取条数（<=0 用默认 5）
	PerChannel int
	// MaxTotal 是本源候选总量上限（<=0 用默认 60）
	MaxTotal int
	// MaxConcurrent 是并发抓取的频道数（<=0 用默认 4）
	MaxConcurrent int

	// Limiter 约束出站请求速率；nil 表示不限速
	Limiter *rate.Limiter
}

func (s *Subscription) Name() string        { return "gather.subscription" }
func (s *Subscription) Origin() core.Origin { return core.OriginSubscription }

func (s *Subscription) Gather(
	ctx context.Context,
	rctx *core.RecommendContext,
) ([]*core.Item, error) {
	if s.Client == nil || rctx == nil || len(rctx.Subscriptions) == 0 {
		return nil, nil
	}

	perChannel := s.PerChannel
	if perChannel <= 0 {
		perChannel = 5
	}
	maxTotal := s.MaxTotal
	if maxTotal <= 0 {
		maxTotal = 60
	}
	maxConcurrent := s.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	var (
		mu  sync.Mutex
		all []*core.Item
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrent)

	for channelID := range rctx.Subscriptions {
		id := channelID
		eg.Go(func() error {
			if s.Limiter != nil {
				if err := s.Limiter.Wait(egCtx); err != nil {
					return err
				}
			}
			items, err := s.Client.ChannelUploads(egCtx, id, perChannel)
			if err != nil {
				// 单频道失败不拖垮整个订阅源
				return nil
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
	if len(all) > maxTotal {
		all = all[:maxTotal]
	}
	return all, nil
}
