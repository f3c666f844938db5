package rank

import (
	"context"
	"testing"

	"github.com/rushteam/feedkit/core"
)

func TestRuleNode_BoostAndResort(t *testing.T) {
	n, err := NewRuleNode([]BoostRule{
		{Expr: `"subscription" in item.origins && item.views > 1000`, Boost: 2.0},
	})
	if err != nil {
		t.Fatal(err)
	}

	hit := core.NewItem("hit")
	hit.Views = 5000
	hit.Origins = core.NewOriginSet(core.OriginSubscription)
	hit.Score = 1.0

	miss := core.NewItem("miss")
	miss.Views = 5000
	miss.Origins = core.NewOriginSet(core.OriginTrending)
	miss.Score = 1.5

	out, err := n.Process(context.Background(), &core.RecommendContext{}, []*core.Item{miss, hit})
	if err != nil {
		t.Fatal(err)
	}

	// 命中规则后重排，加分项进入分项明细
	if out[0].ID != "hit" {
		t.Fatalf("boosted item must lead, got %s", out[0].ID)
	}
	if out[0].Score != 3.0 || out[0].Breakdown.RuleBoost != 2.0 {
		t.Fatalf("score=%v ruleBoost=%v", out[0].Score, out[0].Breakdown.RuleBoost)
	}
	if out[1].Score != 1.5 || out[1].Breakdown.RuleBoost != 0 {
		t.Fatalf("miss item must be untouched: %+v", out[1].Breakdown)
	}
}

func TestRuleNode_EvalErrorIsMiss(t *testing.T) {
	// 访问不存在的 label key 求值失败，按未命中处理
	n, err := NewRuleNode([]BoostRule{
		{Expr: `label.no_such_key == "x"`, Boost: 1.0},
	})
	if err != nil {
		t.Fatal(err)
	}

	it := core.NewItem("A")
	it.Score = 1.0
	out, err := n.Process(context.Background(), nil, []*core.Item{it})
	if err != nil {
		t.Fatal(err)
	}
	if out[0].Score != 1.0 {
		t.Fatalf("eval error must not change score, got %v", out[0].Score)
	}
}

func TestNewRuleNode_InvalidExpr(t *testing.T) {
	if _, err := NewRuleNode([]BoostRule{{Expr: `item.views >`, Boost: 1}}); err == nil {
		t.Fatal("invalid expression must fail at build time")
	}
}

func TestNewRuleNode_SkipsEmptyExpr(t *testing.T) {
	n, err := NewRuleNode([]BoostRule{{Expr: "", Boost: 9}})
	if err != nil {
		t.Fatal(err)
	}
	it := core.NewItem("A")
	it.Score = 1.0
	out, err := n.Process(context.Background(), nil, []*core.Item{it})
	if err != nil {
		t.Fatal(err)
	}
	if out[0].Score != 1.0 {
		t.Fatalf("empty rule must be a no-op, got %v", out[0].Score)
	}
}
