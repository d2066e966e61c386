package logx

import (
	"context"

	"go.uber.org/zap"
)

// Logger 是跨包复用的最小日志接口：结构化字段 + ctx 透传（trace/span）。
type Logger interface {
	Info(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Debug(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	WithContext(ctx context.Context) Logger
}

// Nop 返回丢弃所有输出的 Logger，给未注入日志的组件和测试使用。
func Nop() Logger {
	return NewZapLogger(nil)
}

// OrNop 把 nil 替换为 Nop，组件构造函数里统一调用。
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}

// Named 给底层 zap logger 追加名字段，非 ZapLogger 原样返回。
func Named(l Logger, name string) Logger {
	if z, ok := l.(*ZapLogger); ok && z != nil {
		return &ZapLogger{logger: z.logger.Named(name)}
	}
	return OrNop(l)
}
