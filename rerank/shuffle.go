package rerank

import (
	"context"
	"math/rand"
	"time"

	"github.com/rushteam/feedkit/core"
	"github.com/rushteam/feedkit/pipeline"
)

// DefaultShuffleWindow 是默认的位移窗口。
const DefaultShuffleWindow = 3

// ShuffleNode 是变化洗牌 Node：对严格排序结果施加有界扰动，
// 让相邻两次刷新的 Feed 不至于完全相同，同时保持整体质量梯度。
//
// 约束：
//   - Pinned（外部钦定头条）无论排序位次如何都提到第 0 位
//   - 其余候选距其排序位的位移不超过 Window（Pinned 提位引起的顺移除外）
//   - 后半段候选绝不进入头部四分之一位置
//   - 长度 <= 2 的列表原样返回
//
// 给定相同 seed 输出确定（可复现测试）；真实调用方每次刷新注入新 seed。
type ShuffleNode struct {
	// Window 是最大位移窗口（<=0 用默认 3）
	Window int

	// Seed 产出本次洗牌的种子；nil 时用当前时间。
	Seed func() int64
}

func (n *ShuffleNode) Name() string        { return "rerank.shuffle" }
func (n *ShuffleNode) Kind() pipeline.Kind { return pipeline.KindReRank }

func (n *ShuffleNode) Process(
	_ context.Context,
	_ *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	seed := time.Now().UnixNano()
	if n.Seed != nil {
		seed = n.Seed()
	}
	window := n.Window
	if window <= 0 {
		window = DefaultShuffleWindow
	}
	return LightShuffle(items, seed, window), nil
}

// LightShuffle 对有序列表做有界局部洗牌（纯函数，seed 决定输出）。
//
// 实现：先把 Pinned 候选提到首位，再将其余部分切成长度 window+1
// 的连续块并在块内洗牌，块边界由 seed 随机偏移。块内洗牌的最大位移
// 为块长-1，因此候选距原位不超过 window，质量梯度整体保持。
// 触及头部四分之一位置的块不跨过中点，
// 后半段候选不可能被抬进头部四分之一。
func LightShuffle(items []*core.Item, seed int64, window int) []*core.Item {
	if len(items) <= 2 || window <= 0 {
		return items
	}

	out := make([]*core.Item, len(items))
	copy(out, items)

	// 钦定头条提到首位并固定不动
	start := 0
	if i := pinnedIndex(out); i >= 0 {
		head := out[i]
		copy(out[1:i+1], out[:i])
		out[0] = head
		start = 1
	}

	rng := rand.New(rand.NewSource(seed))
	blockSize := window + 1
	quarter := len(out) / 4
	half := len(out) / 2

	// 首块长度随机，避免块边界在多次刷新间固定
	lo := start
	hi := start + 1 + rng.Intn(blockSize)
	for lo < len(out) {
		if hi > len(out) {
			hi = len(out)
		}
		// 触及头部四分之一的块不得跨过中点
		if lo < quarter && hi > half {
			hi = half
		}
		shuffleBlock(rng, out[lo:hi])
		lo = hi
		hi = lo + blockSize
	}
	return out
}

func pinnedIndex(items []*core.Item) int {
	for i, it := range items {
		if it != nil && it.Pinned {
			return i
		}
	}
	return -1
}

func shuffleBlock(rng *rand.Rand, block []*core.Item) {
	rng.Shuffle(len(block), func(i, j int) {
		block[i], block[j] = block[j], block[i]
	})
}
