// Package builders 在 init 中注册可由纯配置构建的内置 Node。
//
// 注意：gather.fanout 与 filter.shown 依赖运行期对象
// （ContentClient、用户库、已展示集合），无法从 YAML 凭空构建，
// 由 feed.Repository 在代码中装配；此处只注册纯配置节点。
package builders

import (
	"time"

	"github.com/rushteam/feedkit/config"
	"github.com/rushteam/feedkit/pipeline"
	"github.com/rushteam/feedkit/pkg/conv"
	"github.com/rushteam/feedkit/rank"
	"github.com/rushteam/feedkit/rerank"
)

func init() {
	config.Register("rank.score", buildScoreNode)
	config.Register("rank.rule", buildRuleNode)
	config.Register("rerank.shuffle", buildShuffleNode)
	config.Register("rerank.topn", buildTopNNode)
}

func buildScoreNode(cfg map[string]interface{}) (pipeline.Node, error) {
	w := rank.DefaultWeights()
	w.Affinity = conv.ConfigGetFloat64(cfg, "affinity", w.Affinity)
	w.Source = conv.ConfigGetFloat64(cfg, "source", w.Source)
	w.MultiOrigin = conv.ConfigGetFloat64(cfg, "multi_origin", w.MultiOrigin)
	w.Recency = conv.ConfigGetFloat64(cfg, "recency", w.Recency)
	w.RepetitionPenalty = conv.ConfigGetFloat64(cfg, "repetition_penalty", w.RepetitionPenalty)
	if sec := conv.ConfigGetInt64(cfg, "recency_half_life", 0); sec > 0 {
		w.RecencyHalfLife = time.Duration(sec) * time.Second
	}
	return &rank.ScoreNode{Scorer: &rank.Scorer{Weights: w}}, nil
}

func buildRuleNode(cfg map[string]interface{}) (pipeline.Node, error) {
	raw, _ := cfg["rules"].([]interface{})
	rules := make([]rank.BoostRule, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		rules = append(rules, rank.BoostRule{
			Expr:  conv.ConfigGet[string](m, "expr", ""),
			Boost: conv.ConfigGetFloat64(m, "boost", 0),
		})
	}
	return rank.NewRuleNode(rules)
}

func buildShuffleNode(cfg map[string]interface{}) (pipeline.Node, error) {
	return &rerank.ShuffleNode{
		Window: int(conv.ConfigGetInt64(cfg, "window", 0)),
	}, nil
}

func buildTopNNode(cfg map[string]interface{}) (pipeline.Node, error) {
	return &rerank.TopNNode{
		N: int(conv.ConfigGetInt64(cfg, "n", 0)),
	}, nil
}
