package rank

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/feedkit/core"
	"github.com/rushteam/feedkit/pipeline"
	"github.com/rushteam/feedkit/pkg/utils"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvOnce sync.Once
	celEnvErr  error
)

func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("item", cel.DynType),
			cel.Variable("label", cel.DynType),
			cel.Variable("rctx", cel.DynType),
		)
	})
	return celEnv, celEnvErr
}

// BoostRule 是一条声明式加分规则：Expr 命中时给候选加 Boost 分。
//
// 表达式使用 CEL (Common Expression Language) 语法，可访问：
//   - item: id / channel_id / score / views / pinned / origins
//   - label: 展平后的 Label value，如 label.gather_source
//   - rctx: user_id / params
//
// 示例：
//   - `"subscription" in item.origins && item.views > 10000`
//   - `label.query == "gaming"`
//   - `item.pinned`
type BoostRule struct {
	Expr  string  `yaml:"expr" json:"expr"`
	Boost float64 `yaml:"boost" json:"boost"`
}

type compiledRule struct {
	rule BoostRule
	prg  cel.Program
}

// RuleNode 是规则加分 Node：在基础排序后按业务规则微调分数并恢复全序。
// 表达式在构建时编译一次，执行阶段只做求值（纯计算，无 I/O）。
// 求值失败按未命中处理，规则问题不影响排序主链路。
type RuleNode struct {
	rules []compiledRule
}

// NewRuleNode 编译全部规则并构建 Node；任一表达式非法立即报错。
func NewRuleNode(rules []BoostRule) (*RuleNode, error) {
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if r.Expr == "" {
			continue
		}
		ast, issues := env.Compile(r.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("compile rule %q: %w", r.Expr, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("program rule %q: %w", r.Expr, err)
		}
		compiled = append(compiled, compiledRule{rule: r, prg: prg})
	}
	return &RuleNode{rules: compiled}, nil
}

func (n *RuleNode) Name() string        { return "rank.rule" }
func (n *RuleNode) Kind() pipeline.Kind { return pipeline.KindRank }

func (n *RuleNode) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(n.rules) == 0 || len(items) == 0 {
		return items, nil
	}

	for _, it := range items {
		if it == nil {
			continue
		}
		input := buildRuleInput(it, rctx)
		for _, cr := range n.rules {
			out, _, err := cr.prg.Eval(input)
			if err != nil {
				continue
			}
			hit, ok := out.Value().(bool)
			if !ok || !hit {
				continue
			}
			it.Score += cr.rule.Boost
			it.Breakdown.RuleBoost += cr.rule.Boost
			it.PutLabel("rule", utils.Label{Value: cr.rule.Expr, Source: "rule"})
		}
	}

	SortRanked(items)
	return items, nil
}

// buildRuleInput 构建 CEL 求值输入。label 展平为 key -> value，
// 访问不存在的 key 会求值失败，规则里应使用 label.key != null 检查存在性。
func buildRuleInput(it *core.Item, rctx *core.RecommendContext) map[string]interface{} {
	labels := make(map[string]interface{}, len(it.Labels))
	for k, v := range it.Labels {
		labels[k] = v.Value
	}

	origins := make([]string, 0, it.Origins.Len())
	for _, o := range it.Origins.List() {
		origins = append(origins, string(o))
	}

	item := map[string]interface{}{
		"id":         it.ID,
		"channel_id": it.ChannelID,
		"score":      it.Score,
		"views":      it.Views,
		"pinned":     it.Pinned,
		"origins":    origins,
	}

	rctxMap := map[string]interface{}{}
	if rctx != nil {
		rctxMap["user_id"] = rctx.UserID
		rctxMap["params"] = rctx.Params
	}

	return map[string]interface{}{
		"item":  item,
		"label": labels,
		"rctx":  rctxMap,
	}
}
