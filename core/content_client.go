package core

import "context"

// ContentClient 是内容检索/抓取能力的领域接口，由外部的网络/解析客户端实现。
// 引擎只消费它产出的原始候选列表，不关心抓取协议与缓存细节。
//
// 约定：
//   - 所有方法必须尊重 ctx 超时与取消
//   - limit <= 0 时由实现自行决定默认条数
//   - 返回的 Item 不要求填充 Origins / Score，由召集与打分阶段补齐
type ContentClient interface {
	// Search 按文本查询检索候选
	Search(ctx context.Context, query string, limit int) ([]*Item, error)

	// ChannelUploads 获取指定频道的最新上传
	ChannelUploads(ctx context.Context, channelID string, limit int) ([]*Item, error)

	// Related 获取与指定物品相关的候选
	Related(ctx context.Context, itemID string, limit int) ([]*Item, error)

	// Trending 获取热门候选（region 可为空，表示默认区域）
	Trending(ctx context.Context, region string, limit int) ([]*Item, error)
}
