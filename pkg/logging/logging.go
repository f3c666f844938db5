// Package logging 提供 zerolog 的统一构建入口。
// 引擎各组件接受 zerolog.Logger；零值（禁用）logger 是合法默认值，
// 便于库被嵌入时由宿主决定日志去向。
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New 构建一个带时间戳的结构化 logger，component 写入固定字段。
func New(w io.Writer, level zerolog.Level, component string) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return zerolog.New(w).Level(level).With().
		Timestamp().
		Str("component", component).
		Logger()
}

// Nop 返回禁用的 logger，嵌入方未注入日志时使用。
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
