package core

import "time"

// Clock 是时间源接口。衰减、新鲜度与缓存 TTL 全部经由它取时间，
// 测试中注入假时钟即可精确验证时间相关行为。
type Clock interface {
	Now() time.Time
}

// SystemClock 是默认实现，直接使用系统时间。
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc 将函数适配为 Clock，测试常用。
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }
