// Package feedcache 实现排序结果的时间盒缓存：EMPTY → FRESH → STALE 状态机 +
// singleflight 刷新去重。读写原子，读者不会观察到写了一半的条目。
package feedcache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/rushteam/feedkit/core"
)

// DefaultTTL 是缓存条目的默认有效期。分钟量级而非小时量级，
// 保证新的兴趣信号能较快反映到 Feed。
const DefaultTTL = 5 * time.Minute

// DefaultKey 是默认 Feed 的缓存 key。
const DefaultKey = "default"

// State 是缓存条目的状态。
type State int

const (
	StateEmpty State = iota // 无条目
	StateFresh              // TTL 内，可直接返回
	StateStale              // 超过 TTL 或被显式失效，读取须触发新一轮排序
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	default:
		return "empty"
	}
}

// Entry 是一次完整排序的物化结果。
type Entry struct {
	Result     *core.RankingResult `json:"result"`
	ComputedAt time.Time           `json:"computed_at"`
}

// Cache 是 Feed 缓存。同一 key 的并发刷新由 singleflight 合并为一次排序，
// 后到的调用方等待并共享第一次的结果，避免重复的网络 fan-out。
type Cache struct {
	mu          sync.RWMutex
	entries     map[string]*Entry
	invalidated map[string]bool

	ttl   time.Duration
	clock core.Clock
	group singleflight.Group

	// store 可选：条目写透到持久化存储，进程重启后以 STALE 身份兜底。
	store core.Store
	log   zerolog.Logger
}

// Options 是缓存构建参数。
type Options struct {
	TTL    time.Duration
	Clock  core.Clock
	Store  core.Store
	Logger zerolog.Logger
}

func New(opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Clock == nil {
		opts.Clock = core.SystemClock{}
	}
	return &Cache{
		entries:     make(map[string]*Entry),
		invalidated: make(map[string]bool),
		ttl:         opts.TTL,
		clock:       opts.Clock,
		store:       opts.Store,
		log:         opts.Logger,
	}
}

func storeKey(key string) string { return "feedcache:" + key }

// Get 返回条目与其状态。内存无条目时尝试从持久化存储恢复
// （恢复的条目通常已过 TTL，以 STALE 状态参与兜底）。
func (c *Cache) Get(key string) (*Entry, State) {
	c.mu.RLock()
	e, ok := c.entries[key]
	invalid := c.invalidated[key]
	c.mu.RUnlock()

	if !ok {
		e = c.loadPersisted(key)
		if e == nil {
			return nil, StateEmpty
		}
	}
	if invalid || c.clock.Now().Sub(e.ComputedAt) >= c.ttl {
		return e, StateStale
	}
	return e, StateFresh
}

func (c *Cache) loadPersisted(key string) *Entry {
	if c.store == nil {
		return nil
	}
	data, err := c.store.Get(context.Background(), storeKey(key))
	if err != nil {
		return nil
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		// 损坏的缓存直接丢弃，下一轮排序会覆盖
		c.log.Warn().Err(err).Str("key", key).Msg("feed cache corrupt, discarding")
		return nil
	}
	c.mu.Lock()
	if _, ok := c.entries[key]; !ok {
		c.entries[key] = &e
	}
	c.mu.Unlock()
	return &e
}

// Invalidate 显式失效条目（FRESH → STALE）。条目本身保留，仍可做兜底。
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	c.invalidated[key] = true
	c.mu.Unlock()
}

// put 原子写入新条目并清除失效标记。
func (c *Cache) put(key string, e *Entry) {
	c.mu.Lock()
	c.entries[key] = e
	delete(c.invalidated, key)
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	data, err := json.Marshal(e)
	if err == nil {
		err = c.store.Set(context.Background(), storeKey(key), data)
	}
	if err != nil {
		// 写透失败只影响重启兜底，不影响本轮结果
		c.log.Warn().Err(err).Str("key", key).Msg("feed cache persist failed")
	}
}

// Do 是缓存的读写入口：
//   - FRESH 且非强制刷新：直接返回缓存结果，不触发任何召集
//   - 其余情况：同 key 至多一次 compute 在途，其余调用方等待共享
//   - compute 报错或被取消时不写缓存（取消的排序绝不污染缓存）
//   - 强制刷新无视状态，总是走 compute 并原子覆盖条目
func (c *Cache) Do(
	ctx context.Context,
	key string,
	force bool,
	compute func(ctx context.Context) (*core.RankingResult, error),
) (*core.RankingResult, error) {
	if !force {
		if e, state := c.Get(key); state == StateFresh {
			return e.Result, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// 双检：排队期间可能已有刷新完成
		if !force {
			if e, state := c.Get(key); state == StateFresh {
				return e.Result, nil
			}
		}
		result, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.put(key, &Entry{Result: result, ComputedAt: c.clock.Now()})
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*core.RankingResult), nil
}
