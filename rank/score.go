package rank

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rushteam/feedkit/core"
	"github.com/rushteam/feedkit/pipeline"
	"github.com/rushteam/feedkit/pkg/utils"
)

// Weights 是打分公式的权重配置。
type Weights struct {
	// Affinity 是兴趣匹配项的系数
	Affinity float64
	// Source 是单个来源信号（订阅/点赞/搜索兴趣）的加成
	Source float64
	// MultiOrigin 是每多一个召回来源的额外加成（合并阶段保留的并集在此生效）
	MultiOrigin float64
	// Recency 是新鲜度项的系数
	Recency float64
	// RepetitionPenalty 是已观看候选的降权值（正数，打分时取负）
	RepetitionPenalty float64
	// RecencyHalfLife 是新鲜度半衰期
	RecencyHalfLife time.Duration
}

// DefaultWeights 返回默认权重。
func DefaultWeights() Weights {
	return Weights{
		Affinity:          1.0,
		Source:            0.5,
		MultiOrigin:       0.25,
		Recency:           1.0,
		RepetitionPenalty: 1.0,
		RecencyHalfLife:   72 * time.Hour,
	}
}

// Scorer 是纯函数打分器：不做 I/O，不修改画像，可独立实例化与测试。
// 相同的候选集、画像快照与时间戳必然产出相同的分数。
type Scorer struct {
	Weights Weights
}

// NewScorer 用默认权重构建打分器。
func NewScorer() *Scorer {
	return &Scorer{Weights: DefaultWeights()}
}

// Score 计算单个候选的分数与分项明细。
//
// 公式（加权和）：
//   - 兴趣匹配：画像中候选主题的权重，经 w/(1+w) 饱和后乘系数；未知主题为 0
//   - 来源加成：命中订阅频道/点赞/搜索兴趣各记一次，可叠加；
//     每多一个召回来源再加 MultiOrigin（多源共现是强信号）
//   - 新鲜度：exp(-ln2 * age / halfLife)；上传时间未知取中性值 0.5，不惩罚
//   - 重复惩罚：已在近期观看历史内的候选降权（不剔除，剔除策略见 filter 包）
func (s *Scorer) Score(
	it *core.Item,
	rctx *core.RecommendContext,
	now time.Time,
) (float64, core.ScoreBreakdown) {
	var b core.ScoreBreakdown
	w := s.Weights

	if rctx != nil {
		if aw := rctx.Profile.Weight(it.Topic()); aw > 0 {
			b.Affinity = w.Affinity * aw / (1 + aw)
		}

		if rctx.Subscribed(it.ChannelID) {
			b.SourceBoost += w.Source
		}
		if rctx.Liked(it.ID) {
			b.SourceBoost += w.Source
		}
		if rctx.SearchInterest(it.ID) {
			b.SourceBoost += w.Source
		}
		if rctx.Watched(it.ID) {
			b.Penalty = -w.RepetitionPenalty
		}
	}
	if extra := it.Origins.Len() - 1; extra > 0 {
		b.SourceBoost += float64(extra) * w.MultiOrigin
	}

	if it.UploadedAt.IsZero() {
		b.Recency = w.Recency * 0.5
	} else {
		age := now.Sub(it.UploadedAt)
		if age < 0 {
			age = 0
		}
		halfLife := w.RecencyHalfLife
		if halfLife <= 0 {
			halfLife = DefaultWeights().RecencyHalfLife
		}
		b.Recency = w.Recency * math.Exp(-math.Ln2*float64(age)/float64(halfLife))
	}

	return b.Total(), b
}

// ScoreNode 是排序 Node：为全部候选打分并按分数降序排列，
// 同分按 ID 升序，保证相同输入下输出顺序稳定。
type ScoreNode struct {
	Scorer *Scorer
}

func (n *ScoreNode) Name() string        { return "rank.score" }
func (n *ScoreNode) Kind() pipeline.Kind { return pipeline.KindRank }

func (n *ScoreNode) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}

	scorer := n.Scorer
	if scorer == nil {
		scorer = NewScorer()
	}

	now := time.Time{}
	if rctx != nil {
		now = rctx.Now
	}
	if now.IsZero() {
		now = time.Now()
	}

	for _, it := range items {
		if it == nil {
			continue
		}
		score, breakdown := scorer.Score(it, rctx, now)
		it.Score = score
		it.Breakdown = breakdown
		it.PutLabel("rank", utils.Label{Value: "score", Source: "rank"})
	}

	SortRanked(items)
	return items, nil
}

// SortRanked 按分数降序、同分按 ID 升序做稳定排序。
// RuleNode 调整分数后也用它恢复全序。
func SortRanked(items []*core.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i] == nil {
			return false
		}
		if items[j] == nil {
			return true
		}
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ID < items[j].ID
	})
}
