package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rushteam/feedkit/core"
	"github.com/rushteam/feedkit/store"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestProfile(t *testing.T, s core.Store) *Profile {
	t.Helper()
	return New(context.Background(), Options{
		UserID: "u1",
		Store:  s,
		Clock:  core.ClockFunc(func() time.Time { return t0 }),
	})
}

func TestRecordEngagement_AccumulatesAndDecays(t *testing.T) {
	p := newTestProfile(t, nil)

	p.RecordEngagement("gaming", 2.0, t0)
	p.RecordEngagement("music", 1.0, t0)

	snap := p.Snapshot()
	if snap.Weight("gaming") <= snap.Weight("music") {
		t.Fatalf("gaming should outweigh music: %v vs %v", snap.Weight("gaming"), snap.Weight("music"))
	}

	// 一个半衰期后纯衰减：权重减半，相对顺序不变
	p.RecordEngagement("gaming", 0, t0.Add(DefaultHalfLife))
	decayed := p.Snapshot()

	g, m := decayed.Weight("gaming"), decayed.Weight("music")
	if g >= snap.Weight("gaming") || m >= snap.Weight("music") {
		t.Fatalf("weights must not increase with time alone: gaming %v->%v music %v->%v",
			snap.Weight("gaming"), g, snap.Weight("music"), m)
	}
	if want := snap.Weight("gaming") / 2; g < want*0.99 || g > want*1.01 {
		t.Fatalf("half-life decay: want ~%v, got %v", want, g)
	}
	if g <= m {
		t.Fatalf("relative order must survive decay: %v vs %v", g, m)
	}
}

func TestRecordEngagement_TimeBackwardsDoesNotInflate(t *testing.T) {
	p := newTestProfile(t, nil)
	p.RecordEngagement("gaming", 1.0, t0)
	before := p.Snapshot().Weight("gaming")

	// 时钟倒退不放大权重
	p.RecordEngagement("news", 0, t0.Add(-time.Hour))
	if after := p.Snapshot().Weight("gaming"); after != before {
		t.Fatalf("backwards time changed weight: %v -> %v", before, after)
	}
}

func TestTopGenres(t *testing.T) {
	tests := []struct {
		name  string
		setup func(p *Profile)
		n     int
		want  []string
	}{
		{
			name:  "fresh profile is empty",
			setup: func(p *Profile) {},
			n:     3,
			want:  []string{},
		},
		{
			name: "ordered by weight",
			setup: func(p *Profile) {
				p.RecordEngagement("music", 3.0, t0)
				p.RecordEngagement("gaming", 1.0, t0)
				p.RecordEngagement("news", 2.0, t0)
			},
			n:    3,
			want: []string{"music", "news", "gaming"},
		},
		{
			name: "ties broken by most recent interaction",
			setup: func(p *Profile) {
				p.RecordEngagement("gaming", 1.0, t0)
				p.RecordEngagement("music", 1.0, t0.Add(time.Second))
			},
			n: 2,
			// 同权重（music 晚 1 秒录入，衰减可忽略）时 music 在前
			want: []string{"music", "gaming"},
		},
		{
			name: "fewer topics than n",
			setup: func(p *Profile) {
				p.RecordEngagement("gaming", 1.0, t0)
			},
			n:    5,
			want: []string{"gaming"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProfile(t, nil)
			tt.setup(p)
			got := p.TopGenres(tt.n)
			if len(got) != len(tt.want) {
				t.Fatalf("TopGenres(%d) = %v, want %v", tt.n, got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("TopGenres(%d) = %v, want %v", tt.n, got, tt.want)
				}
			}
		})
	}
}

func TestTopGenres_TieDecay(t *testing.T) {
	// 真正同权重的并列：手工构造相同权重、不同 lastSeen
	p := newTestProfile(t, nil)
	p.RecordEngagement("a", 1.0, t0)
	p.RecordEngagement("b", 1.0, t0)
	got := p.TopGenres(2)
	// 同权重同时间时按主题名字典序，保证输出稳定
	if got[0] != "a" || got[1] != "b" {
		t.Fatalf("stable tie order, got %v", got)
	}
}

func TestDiscoveryQueries(t *testing.T) {
	p := newTestProfile(t, nil)

	// 冷启动：非空是硬性契约
	for _, k := range []int{1, 3, 8} {
		got := p.DiscoveryQueries(k)
		if len(got) == 0 {
			t.Fatalf("DiscoveryQueries(%d) empty on cold start", k)
		}
		if len(got) > k {
			t.Fatalf("DiscoveryQueries(%d) returned %d queries", k, len(got))
		}
	}
	if got := p.DiscoveryQueries(0); got != nil {
		t.Fatalf("DiscoveryQueries(0) = %v, want nil", got)
	}

	// 有画像：Top 类目领先
	p.RecordEngagement("gaming", 3.0, t0)
	p.RecordEngagement("music", 1.0, t0)
	got := p.DiscoveryQueries(4)
	if len(got) != 4 {
		t.Fatalf("want 4 queries, got %v", got)
	}
	if got[0] != "gaming" || got[1] != "music" {
		t.Fatalf("top genres should lead: %v", got)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()

	p := newTestProfile(t, s)
	p.RecordEngagement("gaming", 2.0, t0)
	p.RecordInteraction("v1", t0)
	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	// 模拟进程重启
	p2 := newTestProfile(t, s)
	if w := p2.Snapshot().Weight("gaming"); w != 2.0 {
		t.Fatalf("restored weight = %v, want 2.0", w)
	}
	if _, ok := p2.Interactions()["v1"]; !ok {
		t.Fatalf("interaction not restored")
	}
}

// flakyStore 包装 MemoryStore，可注入写失败。
type flakyStore struct {
	*store.MemoryStore
	setErr error
}

func (s *flakyStore) Set(ctx context.Context, key string, value []byte, ttl ...int) error {
	if s.setErr != nil {
		return s.setErr
	}
	return s.MemoryStore.Set(ctx, key, value, ttl...)
}

func TestFlush_RetriesAfterWriteFailure(t *testing.T) {
	s := &flakyStore{MemoryStore: store.NewMemoryStore()}
	defer s.Close()

	p := newTestProfile(t, s)
	p.RecordEngagement("gaming", 2.0, t0)

	// 首次落盘失败：脏标记必须保留
	s.setErr = errors.New("disk full")
	if err := p.Flush(context.Background()); err == nil {
		t.Fatal("failed write must surface from Flush")
	}

	// 无新变更的情况下重试仍会写入
	s.setErr = nil
	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("retry flush: %v", err)
	}
	p2 := newTestProfile(t, s)
	if w := p2.Snapshot().Weight("gaming"); w != 2.0 {
		t.Fatalf("state lost after failed first write: weight = %v", w)
	}
}

func TestCorruptStoreRecoversEmpty(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()
	if err := s.Set(context.Background(), "profile:u1", []byte("{not json")); err != nil {
		t.Fatal(err)
	}

	// 损坏数据不 panic 不报错，得到空画像
	p := newTestProfile(t, s)
	if got := p.TopGenres(3); len(got) != 0 {
		t.Fatalf("corrupt store should yield empty profile, got %v", got)
	}
}

func TestReset(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()

	p := newTestProfile(t, s)
	p.RecordEngagement("gaming", 2.0, t0)
	p.RecordInteraction("v1", t0)
	if err := p.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := p.Reset(context.Background()); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got := p.TopGenres(3); len(got) != 0 {
		t.Fatalf("weights not cleared: %v", got)
	}
	if got := p.Interactions(); len(got) != 0 {
		t.Fatalf("interactions not cleared: %v", got)
	}
	if _, err := s.Get(context.Background(), "profile:u1"); !core.IsStoreNotFound(err) {
		t.Fatalf("persisted state should be deleted, err=%v", err)
	}
}
