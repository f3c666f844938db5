package store

import "github.com/rushteam/feedkit/core"

// 注意：此包只包含实现，接口定义在 core 包（依赖倒置）。
//
// 示例：
//   var s core.Store = NewMemoryStore()

// ErrNotFound 是 core.ErrStoreNotFound 的包内别名，方便实现内部引用。
var ErrNotFound = core.ErrStoreNotFound
