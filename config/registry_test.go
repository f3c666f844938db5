package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rushteam/feedkit/config"
	_ "github.com/rushteam/feedkit/config/builders"
	"github.com/rushteam/feedkit/core"
	"github.com/rushteam/feedkit/pipeline"
)

const pipelineYAML = `
pipeline:
  name: ranked-feed
  nodes:
    - type: rank.score
      config:
        source: 1.0
        recency_half_life: 86400
    - type: rank.rule
      config:
        rules:
          - expr: 'item.pinned'
            boost: 2.0
    - type: rerank.shuffle
      config:
        window: 2
    - type: rerank.topn
      config:
        n: 3
`

func TestBuildPipelineFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte(pipelineYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := pipeline.LoadFromYAML(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := config.ValidatePipelineConfig(cfg); err != nil {
		t.Fatal(err)
	}

	p, err := cfg.BuildPipeline(config.DefaultFactory())
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Nodes) != 4 {
		t.Fatalf("want 4 nodes, got %d", len(p.Nodes))
	}

	items := []*core.Item{
		core.NewItem("a"),
		core.NewItem("b"),
		core.NewItem("c"),
		core.NewItem("d"),
		core.NewItem("e"),
	}
	items[2].Pinned = true

	out, err := p.Run(context.Background(), &core.RecommendContext{}, items)
	if err != nil {
		t.Fatal(err)
	}
	// topn 截断到 3；pinned 候选吃到规则加分后领跑
	if len(out) != 3 {
		t.Fatalf("topn must truncate to 3, got %d", len(out))
	}
	if out[0].ID != "c" {
		t.Fatalf("boosted pinned item must lead, got %s", out[0].ID)
	}
	if out[0].Breakdown.RuleBoost != 2.0 {
		t.Fatalf("rule boost missing: %+v", out[0].Breakdown)
	}
}

func TestValidatePipelineConfig_UnknownType(t *testing.T) {
	cfg := &pipeline.Config{}
	cfg.Pipeline.Nodes = []pipeline.NodeConfig{{Type: "rank.unknown"}}
	if err := config.ValidatePipelineConfig(cfg); err == nil {
		t.Fatal("unknown node type must fail validation")
	}
}

func TestSupportedTypes(t *testing.T) {
	types := config.SupportedTypes()
	want := map[string]bool{
		"rank.score":     false,
		"rank.rule":      false,
		"rerank.shuffle": false,
		"rerank.topn":    false,
	}
	for _, tp := range types {
		if _, ok := want[tp]; ok {
			want[tp] = true
		}
	}
	for tp, seen := range want {
		if !seen {
			t.Fatalf("builtin node %s not registered", tp)
		}
	}
}
