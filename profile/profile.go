// Package profile 实现设备端的兴趣画像：按时间衰减的主题权重 + 互动时间戳。
//
// 并发纪律：所有变更在互斥锁内同步完成（内存态立即可见），
// 落盘通过去抖定时器异步调度（at-least-once），Close/Flush 保证最终写入。
// 排序链路只消费 Snapshot()，不会观察到半更新画像。
package profile

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/feedkit/core"
)

const (
	// DefaultHalfLife 是兴趣权重的默认半衰期：两周不互动权重减半。
	DefaultHalfLife = 14 * 24 * time.Hour

	// DefaultSaveDebounce 是落盘去抖窗口。
	DefaultSaveDebounce = 2 * time.Second

	// maxInteractions 是反重复时间戳映射的容量上限，超出淘汰最旧的。
	maxInteractions = 500

	// minWeight 以下的权重视为噪声，衰减后直接剪除，避免 map 无界增长。
	minWeight = 1e-4
)

// genericQueries 是冷启动兜底的通用发现查询。
var genericQueries = []string{
	"trending",
	"popular videos",
	"music",
	"gaming",
	"news",
	"podcasts",
	"documentary",
	"live",
}

// Options 是画像的构建参数。Store 为 nil 时画像只存在于内存。
type Options struct {
	UserID       string
	Store        core.Store
	Clock        core.Clock
	Logger       zerolog.Logger
	HalfLife     time.Duration
	SaveDebounce time.Duration
}

// Profile 是单用户的兴趣画像。
type Profile struct {
	mu sync.Mutex

	userID       string
	interests    map[string]float64
	lastSeen     map[string]time.Time
	interactions map[string]time.Time // itemID -> 最近互动时间（反重复）
	updatedAt    time.Time            // 上次衰减基准时间

	store        core.Store
	clock        core.Clock
	log          zerolog.Logger
	halfLife     time.Duration
	saveDebounce time.Duration

	dirty     bool
	saveTimer *time.Timer
	closed    bool
}

// persisted 是画像的落盘形态（JSON，内部格式，不承诺跨版本兼容）。
type persisted struct {
	Interests    map[string]float64   `json:"interests"`
	LastSeen     map[string]time.Time `json:"last_seen"`
	Interactions map[string]time.Time `json:"interactions"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// New 构建画像并尝试从 Store 恢复上次状态。
// 存储缺失或数据损坏一律视为全新画像，只记日志不报错。
func New(ctx context.Context, opts Options) *Profile {
	if opts.Clock == nil {
		opts.Clock = core.SystemClock{}
	}
	if opts.HalfLife <= 0 {
		opts.HalfLife = DefaultHalfLife
	}
	if opts.SaveDebounce <= 0 {
		opts.SaveDebounce = DefaultSaveDebounce
	}

	p := &Profile{
		userID:       opts.UserID,
		interests:    make(map[string]float64),
		lastSeen:     make(map[string]time.Time),
		interactions: make(map[string]time.Time),
		updatedAt:    opts.Clock.Now(),
		store:        opts.Store,
		clock:        opts.Clock,
		log:          opts.Logger,
		halfLife:     opts.HalfLife,
		saveDebounce: opts.SaveDebounce,
	}
	p.load(ctx)
	return p
}

func (p *Profile) storeKey() string {
	return "profile:" + p.userID
}

func (p *Profile) load(ctx context.Context) {
	if p.store == nil {
		return
	}
	data, err := p.store.Get(ctx, p.storeKey())
	if err != nil {
		if !core.IsStoreNotFound(err) {
			p.log.Warn().Err(err).Str("user_id", p.userID).Msg("profile load failed, starting empty")
		}
		return
	}
	var st persisted
	if err := json.Unmarshal(data, &st); err != nil {
		// 数据损坏：重置为空画像，绝不让反序列化失败变成崩溃
		p.log.Warn().Err(err).Str("user_id", p.userID).Msg("profile corrupt, resetting to empty")
		return
	}
	if st.Interests != nil {
		p.interests = st.Interests
	}
	if st.LastSeen != nil {
		p.lastSeen = st.LastSeen
	}
	if st.Interactions != nil {
		p.interactions = st.Interactions
	}
	if !st.UpdatedAt.IsZero() {
		p.updatedAt = st.UpdatedAt
	}
}

// RecordEngagement 记录一次互动：先对全部权重按 at-updatedAt 施加指数衰减，
// 再给 topic 加上 strength。strength=0 是合法的纯衰减调用，
// 均匀乘性衰减保证主题间相对顺序不变。
func (p *Profile) RecordEngagement(topic string, strength float64, at time.Time) {
	if topic == "" || strength < 0 {
		return
	}

	p.mu.Lock()
	p.decayLocked(at)
	if strength > 0 {
		p.interests[topic] += strength
		p.lastSeen[topic] = at
	}
	p.markDirtyLocked()
	p.mu.Unlock()
}

// decayLocked 将所有权重按 exp(-ln2 * Δt / halfLife) 衰减。
// 时间倒退（Δt < 0）不做放大，权重绝不因时间流逝而增加。
func (p *Profile) decayLocked(at time.Time) {
	dt := at.Sub(p.updatedAt)
	if dt > 0 {
		factor := math.Exp(-math.Ln2 * float64(dt) / float64(p.halfLife))
		for topic, w := range p.interests {
			w *= factor
			if w < minWeight {
				delete(p.interests, topic)
				delete(p.lastSeen, topic)
				continue
			}
			p.interests[topic] = w
		}
	}
	if at.After(p.updatedAt) {
		p.updatedAt = at
	}
}

// RecordInteraction 记录物品级互动时间（反重复信号），超出容量淘汰最旧的。
func (p *Profile) RecordInteraction(itemID string, at time.Time) {
	if itemID == "" {
		return
	}

	p.mu.Lock()
	p.interactions[itemID] = at
	if len(p.interactions) > maxInteractions {
		oldest := ""
		var oldestAt time.Time
		for id, ts := range p.interactions {
			if oldest == "" || ts.Before(oldestAt) {
				oldest, oldestAt = id, ts
			}
		}
		delete(p.interactions, oldest)
	}
	p.markDirtyLocked()
	p.mu.Unlock()
}

// TopGenres 返回按权重降序的前 n 个主题；同权重按最近互动时间，
// 再按主题名字典序，保证输出稳定。冷启动画像返回空。
func (p *Profile) TopGenres(n int) []string {
	if n <= 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.topGenresLocked(n)
}

func (p *Profile) topGenresLocked(n int) []string {
	type entry struct {
		topic  string
		weight float64
		seen   time.Time
	}
	entries := make([]entry, 0, len(p.interests))
	for topic, w := range p.interests {
		entries = append(entries, entry{topic: topic, weight: w, seen: p.lastSeen[topic]})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].weight != entries[j].weight {
			return entries[i].weight > entries[j].weight
		}
		if !entries[i].seen.Equal(entries[j].seen) {
			return entries[i].seen.After(entries[j].seen)
		}
		return entries[i].topic < entries[j].topic
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.topic
	}
	return out
}

// Snapshot 返回画像的只读快照，排序链路以此打分。
func (p *Profile) Snapshot() *core.ProfileSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	interests := make(map[string]float64, len(p.interests))
	for k, v := range p.interests {
		interests[k] = v
	}
	lastSeen := make(map[string]time.Time, len(p.lastSeen))
	for k, v := range p.lastSeen {
		lastSeen[k] = v
	}
	return &core.ProfileSnapshot{
		Interests: interests,
		LastSeen:  lastSeen,
		TopGenres: p.topGenresLocked(5),
	}
}

// Interactions 返回物品级互动时间快照（itemID -> 时间）。
func (p *Profile) Interactions() map[string]time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]time.Time, len(p.interactions))
	for k, v := range p.interactions {
		out[k] = v
	}
	return out
}

// Reset 清空画像（权重、时间戳、互动记录）并删除持久化数据。
// 这是"清除我的推荐"隐私控制的实现，唯一允许删除画像的路径。
func (p *Profile) Reset(ctx context.Context) error {
	p.mu.Lock()
	p.interests = make(map[string]float64)
	p.lastSeen = make(map[string]time.Time)
	p.interactions = make(map[string]time.Time)
	p.updatedAt = p.clock.Now()
	p.dirty = false
	if p.saveTimer != nil {
		p.saveTimer.Stop()
		p.saveTimer = nil
	}
	p.mu.Unlock()

	if p.store == nil {
		return nil
	}
	return p.store.Delete(ctx, p.storeKey())
}

// markDirtyLocked 调度一次去抖落盘。持有锁时调用。
func (p *Profile) markDirtyLocked() {
	p.dirty = true
	if p.store == nil || p.closed || p.saveTimer != nil {
		return
	}
	p.saveTimer = time.AfterFunc(p.saveDebounce, func() {
		if err := p.Flush(context.Background()); err != nil {
			p.log.Warn().Err(err).Str("user_id", p.userID).Msg("profile save failed")
		}
	})
}

// Flush 立即将当前画像写入 Store（幂等；无脏数据时为 no-op）。
func (p *Profile) Flush(ctx context.Context) error {
	p.mu.Lock()
	if p.saveTimer != nil {
		p.saveTimer.Stop()
		p.saveTimer = nil
	}
	if !p.dirty || p.store == nil {
		p.mu.Unlock()
		return nil
	}
	st := persisted{
		Interests:    make(map[string]float64, len(p.interests)),
		LastSeen:     make(map[string]time.Time, len(p.lastSeen)),
		Interactions: make(map[string]time.Time, len(p.interactions)),
		UpdatedAt:    p.updatedAt,
	}
	for k, v := range p.interests {
		st.Interests[k] = v
	}
	for k, v := range p.lastSeen {
		st.LastSeen[k] = v
	}
	for k, v := range p.interactions {
		st.Interactions[k] = v
	}
	p.dirty = false
	p.mu.Unlock()

	data, err := json.Marshal(&st)
	if err == nil {
		err = p.store.Set(ctx, p.storeKey(), data)
	}
	if err != nil {
		// 写失败保留脏标记，后续 Flush/Close 仍会重试
		p.mu.Lock()
		p.dirty = true
		p.mu.Unlock()
		return err
	}
	return nil
}

// Close 停止去抖定时器并做最终落盘。
func (p *Profile) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.Flush(context.Background())
}
