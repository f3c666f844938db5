// Package feed 是引擎的编排层：把召集、合并、打分、洗牌、缓存串成
// 对 UI 的三个入口（GetFeed / RecordEngagement / ResetProfile）。
//
// Repository 显式构造、显式注入依赖，由宿主在应用启动时创建一次并持有引用，
// 不提供任何全局单例访问器。
package feed

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/rushteam/feedkit/core"
	"github.com/rushteam/feedkit/feedcache"
	"github.com/rushteam/feedkit/filter"
	"github.com/rushteam/feedkit/gather"
	"github.com/rushteam/feedkit/pipeline"
	"github.com/rushteam/feedkit/profile"
	"github.com/rushteam/feedkit/rank"
	"github.com/rushteam/feedkit/rerank"
)

// DefaultLimit 是默认的 Feed 条数。
const DefaultLimit = 40

// Library 是宿主应用的用户数据边界：订阅、观看历史、点赞、搜索兴趣。
// 引擎只读取这些信号，从不回写。
type Library interface {
	gather.HistoryStore // RecentWatched
	gather.LikedStore   // LikedItems

	// Subscriptions 返回已订阅的频道 ID
	Subscriptions(ctx context.Context, userID string) ([]string, error)

	// SearchInterests 返回由搜索行为沉淀的物品 ID
	SearchInterests(ctx context.Context, userID string, limit int) ([]string, error)
}

// Options 是 Repository 的构建参数。
// Client 必填；Store 为 nil 时画像与缓存只存在于内存。
type Options struct {
	UserID  string
	Client  core.ContentClient
	Library Library
	Store   core.Store

	// Profile 可选；nil 时由 UserID/Store 构建
	Profile *profile.Profile

	// Pipeline 可选；nil 时构建默认链：
	// gather.fanout → filter(shown) → rank.score [→ rank.rule] → rerank.shuffle → rerank.topn
	Pipeline *pipeline.Pipeline

	// Rules 是可选的 CEL 加分规则（仅默认 Pipeline 使用）
	Rules []rank.BoostRule

	Limit         int
	CacheTTL      time.Duration
	SourceTimeout time.Duration
	ShuffleWindow int
	ShownCap      int
	ScoreWeights  *rank.Weights

	Clock  core.Clock
	Logger zerolog.Logger
}

// Repository 是推荐引擎的公共门面。除 ctx 取消外，
// GetFeed 对任何来源失败都以类型化结果兜底，绝不向 UI 抛错。
type Repository struct {
	userID  string
	client  core.ContentClient
	library Library

	profile  *profile.Profile
	cache    *feedcache.Cache
	shown    *filter.ShownFilter
	pipeline *pipeline.Pipeline

	limit int
	clock core.Clock
	log   zerolog.Logger
}

// New 构建 Repository。生命周期：应用启动时创建一次，退出时 Close。
func New(ctx context.Context, opts Options) (*Repository, error) {
	if opts.Client == nil {
		return nil, core.NewDomainError(core.ModuleFeed, core.ErrorCodeInvalidInput, "feed: content client is required")
	}
	if opts.Clock == nil {
		opts.Clock = core.SystemClock{}
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}

	prof := opts.Profile
	if prof == nil {
		prof = profile.New(ctx, profile.Options{
			UserID: opts.UserID,
			Store:  opts.Store,
			Clock:  opts.Clock,
			Logger: opts.Logger,
		})
	}

	shown, err := filter.NewShownFilter(opts.ShownCap)
	if err != nil {
		return nil, err
	}

	r := &Repository{
		userID:  opts.UserID,
		client:  opts.Client,
		library: opts.Library,
		profile: prof,
		shown:   shown,
		limit:   opts.Limit,
		clock:   opts.Clock,
		log:     opts.Logger,
	}

	r.cache = feedcache.New(feedcache.Options{
		TTL:    opts.CacheTTL,
		Clock:  opts.Clock,
		Store:  opts.Store,
		Logger: opts.Logger,
	})

	r.pipeline = opts.Pipeline
	if r.pipeline == nil {
		p, err := r.defaultPipeline(opts)
		if err != nil {
			return nil, err
		}
		r.pipeline = p
	}
	return r, nil
}

func (r *Repository) defaultPipeline(opts Options) (*pipeline.Pipeline, error) {
	var historyStore gather.HistoryStore
	var likedStore gather.LikedStore
	if r.library != nil {
		historyStore = r.library
		likedStore = r.library
	}

	sources := []gather.Source{
		&gather.Subscription{
			Client:  r.client,
			Limiter: rate.NewLimiter(rate.Limit(4), 8),
		},
		&gather.History{Client: r.client, Store: historyStore},
		&gather.Liked{Client: r.client, Store: likedStore},
		&gather.Search{Client: r.client, Queries: r.profile},
	}

	nodes := []pipeline.Node{
		&gather.Fanout{
			Sources:       sources,
			Fallback:      &gather.Trending{Client: r.client},
			MinCandidates: r.limit,
			Timeout:       opts.SourceTimeout,
			Logger:        r.log,
		},
		&filter.FilterNode{Filters: []filter.Filter{r.shown}},
	}

	scorer := rank.NewScorer()
	if opts.ScoreWeights != nil {
		scorer.Weights = *opts.ScoreWeights
	}
	nodes = append(nodes, &rank.ScoreNode{Scorer: scorer})

	if len(opts.Rules) > 0 {
		ruleNode, err := rank.NewRuleNode(opts.Rules)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, ruleNode)
	}

	nodes = append(nodes,
		&rerank.ShuffleNode{
			Window: opts.ShuffleWindow,
			Seed:   func() int64 { return r.clock.Now().UnixNano() },
		},
		&rerank.TopNNode{},
	)

	return &pipeline.Pipeline{Nodes: nodes}, nil
}

// GetFeed 是唯一的读入口。
//
// 顺序：查缓存（FRESH 且非强制刷新直接返回）→ 并发召集 → 合并去重 →
// 打分排序 → 变化洗牌 → 写缓存 → 返回。
// 全源失败时回退到旧缓存条目（即使 STALE），无缓存则返回带
// Unavailable 标记的空结果；两种情况都不是 error。
// 只有 ctx 取消会以 error 返回，且取消的排序不会写缓存。
func (r *Repository) GetFeed(ctx context.Context, forceRefresh bool) (*core.RankingResult, error) {
	result, err := r.cache.Do(ctx, feedcache.DefaultKey, forceRefresh, r.refresh)
	if err == nil {
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	// 全源失败（或其他内部失败）：先找旧缓存兜底
	if e, state := r.cache.Get(feedcache.DefaultKey); e != nil && state != feedcache.StateEmpty && !e.Result.Empty() {
		r.log.Warn().Err(err).Str("cache_state", state.String()).Msg("feed refresh failed, serving cached entry")
		stale := *e.Result
		stale.Stale = true
		return &stale, nil
	}

	if !errors.Is(err, core.ErrAllSourcesFailed) {
		r.log.Error().Err(err).Msg("feed refresh failed with no cache fallback")
	}
	return &core.RankingResult{
		GeneratedAt: r.clock.Now(),
		Unavailable: true,
	}, nil
}

// refresh 执行一轮完整排序（由缓存层保证同 key 至多一次在途）。
func (r *Repository) refresh(ctx context.Context) (*core.RankingResult, error) {
	rctx := r.buildContext(ctx)

	items, err := r.pipeline.Run(ctx, rctx, nil)
	if err != nil {
		return nil, err
	}

	shown := make([]string, 0, len(items))
	for _, it := range items {
		shown = append(shown, it.ID)
	}
	r.log.Debug().
		Str("refresh_id", rctx.RefreshID).
		Int("items", len(items)).
		Msg("feed refresh done")

	return &core.RankingResult{
		Items:       items,
		GeneratedAt: rctx.Now,
		Shown:       shown,
	}, nil
}

// buildContext 固定一次刷新的全部输入：画像快照、用户库信号、时间基准。
// 用户库的局部失败降级为空集合，不阻断刷新。
func (r *Repository) buildContext(ctx context.Context) *core.RecommendContext {
	rctx := &core.RecommendContext{
		UserID:    r.userID,
		RefreshID: uuid.NewString(),
		Profile:   r.profile.Snapshot(),
		Limit:     r.limit,
		Now:       r.clock.Now(),
	}

	if r.library == nil {
		return rctx
	}

	if subs, err := r.library.Subscriptions(ctx, r.userID); err == nil {
		rctx.Subscriptions = toSet(subs)
	} else {
		r.log.Warn().Err(err).Msg("subscriptions unavailable for this refresh")
	}
	if watched, err := r.library.RecentWatched(ctx, r.userID, 100); err == nil {
		rctx.WatchedIDs = toSet(watched)
	}
	if liked, err := r.library.LikedItems(ctx, r.userID, 200); err == nil {
		rctx.LikedIDs = toSet(liked)
	}
	if searches, err := r.library.SearchInterests(ctx, r.userID, 100); err == nil {
		rctx.SearchIDs = toSet(searches)
	}
	return rctx
}

func toSet(ids []string) map[string]struct{} {
	s := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		s[id] = struct{}{}
	}
	return s
}

// RecordEngagement 记录一次用户互动（观看/点赞/搜索对应的主题与强度）。
// 内存态同步生效，落盘由画像的去抖调度完成；调用方视角即发即忘。
func (r *Repository) RecordEngagement(topic string, strength float64) {
	r.profile.RecordEngagement(topic, strength, r.clock.Now())
}

// MarkShown 将已实际展示的物品记入短内容排除集与画像互动记录。
// UI 在消费 RankingResult.Shown 后调用。
func (r *Repository) MarkShown(ids []string) {
	r.shown.MarkShown(ids)
	now := r.clock.Now()
	for _, id := range ids {
		r.profile.RecordInteraction(id, now)
	}
}

// ResetProfile 是"清除我的推荐"隐私控制：清空画像并使缓存失效。
func (r *Repository) ResetProfile(ctx context.Context) error {
	if err := r.profile.Reset(ctx); err != nil {
		return err
	}
	r.cache.Invalidate(feedcache.DefaultKey)
	return nil
}

// Close 做画像的最终落盘。
func (r *Repository) Close() error {
	return r.profile.Close()
}
