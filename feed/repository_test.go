package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rushteam/feedkit/core"
	"github.com/rushteam/feedkit/feedcache"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// itemSpec 按调用克隆出新 Item：管线会原地标注来源与分数，
// 共享指针会让一次刷新污染下一次。
type itemSpec struct {
	id        string
	channelID string
	views     int64
	uploaded  time.Time
}

func (s itemSpec) build() *core.Item {
	it := core.NewItem(s.id)
	it.ChannelID = s.channelID
	it.Views = s.views
	it.UploadedAt = s.uploaded
	return it
}

func buildAll(specs []itemSpec) []*core.Item {
	out := make([]*core.Item, 0, len(specs))
	for _, s := range specs {
		out = append(out, s.build())
	}
	return out
}

type fakeClient struct {
	mu       sync.Mutex
	calls    map[string]int
	failAll  error
	uploads  map[string][]itemSpec
	related  map[string][]itemSpec
	search   map[string][]itemSpec
	trending []itemSpec
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		calls:   make(map[string]int),
		uploads: make(map[string][]itemSpec),
		related: make(map[string][]itemSpec),
		search:  make(map[string][]itemSpec),
	}
}

func (c *fakeClient) count(method string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[method]++
	return c.failAll
}

func (c *fakeClient) callCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

func (c *fakeClient) setFailAll(err error) {
	c.mu.Lock()
	c.failAll = err
	c.mu.Unlock()
}

func (c *fakeClient) Search(_ context.Context, query string, _ int) ([]*core.Item, error) {
	if err := c.count("search"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return buildAll(c.search[query]), nil
}

func (c *fakeClient) ChannelUploads(_ context.Context, channelID string, _ int) ([]*core.Item, error) {
	if err := c.count("uploads"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return buildAll(c.uploads[channelID]), nil
}

func (c *fakeClient) Related(_ context.Context, itemID string, _ int) ([]*core.Item, error) {
	if err := c.count("related"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return buildAll(c.related[itemID]), nil
}

func (c *fakeClient) Trending(_ context.Context, _ string, _ int) ([]*core.Item, error) {
	if err := c.count("trending"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return buildAll(c.trending), nil
}

var _ core.ContentClient = (*fakeClient)(nil)

type fakeLibrary struct {
	subscriptions []string
	watched       []string
	liked         []string
	searches      []string
}

func (l *fakeLibrary) Subscriptions(context.Context, string) ([]string, error) {
	return l.subscriptions, nil
}

func (l *fakeLibrary) RecentWatched(context.Context, string, int) ([]string, error) {
	return l.watched, nil
}

func (l *fakeLibrary) LikedItems(context.Context, string, int) ([]string, error) {
	return l.liked, nil
}

func (l *fakeLibrary) SearchInterests(context.Context, string, int) ([]string, error) {
	return l.searches, nil
}

// multiSourceFixture 构造典型场景：
// B 同时被订阅源与历史源召回且来自已订阅频道，A/C 各为单源。
func multiSourceFixture() (*fakeClient, *fakeLibrary) {
	client := newFakeClient()
	client.uploads["sub-channel"] = []itemSpec{
		{id: "B", channelID: "sub-channel", views: 9000, uploaded: t0.Add(-6 * time.Hour)},
		{id: "A", channelID: "sub-channel", views: 500, uploaded: t0.Add(-48 * time.Hour)},
	}
	client.related["w1"] = []itemSpec{
		{id: "B", channelID: "sub-channel", views: 9000, uploaded: t0.Add(-6 * time.Hour)},
		{id: "C", channelID: "other", views: 1200, uploaded: t0.Add(-12 * time.Hour)},
	}
	client.trending = []itemSpec{
		{id: "T1", channelID: "pop", views: 100000, uploaded: t0.Add(-3 * time.Hour)},
		{id: "T2", channelID: "pop", views: 80000, uploaded: t0.Add(-4 * time.Hour)},
	}
	library := &fakeLibrary{
		subscriptions: []string{"sub-channel"},
		watched:       []string{"w1"},
	}
	return client, library
}

func newTestRepo(t *testing.T, client *fakeClient, library Library, clk core.Clock) *Repository {
	t.Helper()
	r, err := New(context.Background(), Options{
		UserID:  "u1",
		Client:  client,
		Library: library,
		Limit:   20,
		Clock:   clk,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestGetFeed_MultiSourceItemLeads(t *testing.T) {
	client, library := multiSourceFixture()
	r := newTestRepo(t, client, library, &fakeClock{now: t0})

	res, err := r.GetFeed(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Unavailable || res.Stale {
		t.Fatalf("healthy refresh must be live: %+v", res)
	}
	if len(res.Items) == 0 {
		t.Fatal("feed must not be empty")
	}

	var b *core.Item
	pos := -1
	for i, it := range res.Items {
		if it.ID == "B" {
			b, pos = it, i
		}
	}
	if b == nil {
		t.Fatal("item B missing from feed")
	}
	if !b.Origins.Has(core.OriginSubscription) || !b.Origins.Has(core.OriginHistory) {
		t.Fatalf("B must carry both origins, got %v", b.Origins.List())
	}
	if b.Breakdown.SourceBoost <= 0 {
		t.Fatalf("B must receive source boost, breakdown %+v", b.Breakdown)
	}
	// 洗牌位移有界：排序第一的多源候选最多下移 window 位
	if pos > 3 {
		t.Fatalf("B displaced beyond shuffle window, position %d", pos)
	}
	if len(res.Shown) != len(res.Items) {
		t.Fatalf("Shown must mirror returned items: %d vs %d", len(res.Shown), len(res.Items))
	}
}

func TestGetFeed_CacheShortCircuit(t *testing.T) {
	client, library := multiSourceFixture()
	clk := &fakeClock{now: t0}
	r := newTestRepo(t, client, library, clk)

	if _, err := r.GetFeed(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	uploads := client.callCount("uploads")

	// TTL 内重复读取不触发任何召集
	if _, err := r.GetFeed(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if got := client.callCount("uploads"); got != uploads {
		t.Fatalf("fresh cache must skip gather, uploads %d -> %d", uploads, got)
	}

	// 强制刷新无视 FRESH 状态
	if _, err := r.GetFeed(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	if got := client.callCount("uploads"); got <= uploads {
		t.Fatal("force refresh must re-gather")
	}

	// TTL 过期后自动重新排序
	before := client.callCount("uploads")
	clk.Advance(feedcache.DefaultTTL + time.Minute)
	if _, err := r.GetFeed(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if got := client.callCount("uploads"); got <= before {
		t.Fatal("expired cache must re-gather")
	}
}

func TestGetFeed_PartialFailureDegrades(t *testing.T) {
	client, library := multiSourceFixture()
	// 历史/点赞扩展全部失败，订阅源仍然可用
	client.related = map[string][]itemSpec{}
	r := newTestRepo(t, client, library, &fakeClock{now: t0})

	res, err := r.GetFeed(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Unavailable {
		t.Fatal("partial failure must not make feed unavailable")
	}
	found := false
	for _, it := range res.Items {
		if it.ID == "B" {
			found = true
		}
	}
	if !found {
		t.Fatal("subscription candidates must survive partial failure")
	}
}

func TestGetFeed_TotalFailureFallsBackToCache(t *testing.T) {
	client, library := multiSourceFixture()
	clk := &fakeClock{now: t0}
	r := newTestRepo(t, client, library, clk)

	first, err := r.GetFeed(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}

	// 之后内容端整体故障
	client.setFailAll(errors.New("network down"))
	clk.Advance(feedcache.DefaultTTL + time.Minute)

	res, err := r.GetFeed(context.Background(), false)
	if err != nil {
		t.Fatal("total failure with warm cache must not error")
	}
	if !res.Stale {
		t.Fatal("cached fallback must be marked stale")
	}
	if len(res.Items) != len(first.Items) {
		t.Fatalf("fallback must serve the cached ranking, %d vs %d", len(res.Items), len(first.Items))
	}
}

func TestGetFeed_TotalFailureNoCacheUnavailable(t *testing.T) {
	client := newFakeClient()
	client.setFailAll(errors.New("network down"))
	r := newTestRepo(t, client, &fakeLibrary{subscriptions: []string{"ch"}}, &fakeClock{now: t0})

	res, err := r.GetFeed(context.Background(), false)
	if err != nil {
		t.Fatal("unavailable is a typed result, not an error")
	}
	if !res.Unavailable || len(res.Items) != 0 {
		t.Fatalf("want empty unavailable result, got %+v", res)
	}
}

func TestGetFeed_CancelledContext(t *testing.T) {
	client, library := multiSourceFixture()
	r := newTestRepo(t, client, library, &fakeClock{now: t0})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.GetFeed(ctx, false); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled ctx must surface as error, got %v", err)
	}
}

func TestGetFeed_ColdStartServesTrending(t *testing.T) {
	client := newFakeClient()
	client.trending = []itemSpec{
		{id: "T1", channelID: "pop", views: 100000, uploaded: t0.Add(-2 * time.Hour)},
		{id: "T2", channelID: "pop", views: 90000, uploaded: t0.Add(-5 * time.Hour)},
		{id: "T3", channelID: "pop", views: 50000, uploaded: t0.Add(-8 * time.Hour)},
	}
	// 全新用户：无订阅、无历史、无点赞、无搜索兴趣
	r := newTestRepo(t, client, &fakeLibrary{}, &fakeClock{now: t0})

	res, err := r.GetFeed(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 3 {
		t.Fatalf("cold start must serve trending, got %d items", len(res.Items))
	}
	for _, it := range res.Items {
		if !it.Origins.Has(core.OriginTrending) {
			t.Fatalf("cold start item %s must come from trending", it.ID)
		}
	}
}

func TestMarkShown_ExcludesOnNextRefresh(t *testing.T) {
	client, library := multiSourceFixture()
	r := newTestRepo(t, client, library, &fakeClock{now: t0})

	first, err := r.GetFeed(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	r.MarkShown([]string{"B"})

	second, err := r.GetFeed(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	for _, it := range second.Items {
		if it.ID == "B" {
			t.Fatal("shown item must be hard-excluded on next refresh")
		}
	}
	if len(second.Items) >= len(first.Items)+1 {
		t.Fatalf("second feed unexpectedly grew: %d -> %d", len(first.Items), len(second.Items))
	}
}

func TestResetProfile(t *testing.T) {
	client, library := multiSourceFixture()
	r := newTestRepo(t, client, library, &fakeClock{now: t0})

	r.RecordEngagement("gaming", 5)
	if _, err := r.GetFeed(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	before := client.callCount("uploads")

	if err := r.ResetProfile(context.Background()); err != nil {
		t.Fatal(err)
	}

	// 画像清空，缓存失效：下一次读取必须重新排序
	if snap := r.profile.Snapshot(); !snap.Empty() {
		t.Fatalf("profile must be empty after reset, got %v", snap.Interests)
	}
	if _, err := r.GetFeed(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if got := client.callCount("uploads"); got <= before {
		t.Fatal("reset must invalidate the feed cache")
	}
}
