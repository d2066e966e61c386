package logx

import (
	"context"
	"errors"
	"testing"

	"LandVerse/modules/kit/errx"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestBuildErrorLog_能提取语义与栈(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	e := errx.NewSys("CHUNK_FETCH_FAILED", "区块加载失败").
		WithData("chunk_id", "3_-2").
		WithCause(cause)

	meta := BuildErrorLog(e)
	if meta.Error == "" || meta.Code == "" || meta.Msg == "" {
		t.Fatalf("期望 Error/Code/Msg 非空, got=%+v", meta)
	}
	if meta.Data == nil || meta.Data["chunk_id"] != "3_-2" {
		t.Fatalf("期望 meta.Data 包含 chunk_id=3_-2, got=%v", meta.Data)
	}
	if len(meta.CauseChain) == 0 {
		t.Fatalf("期望 meta.CauseChain 非空")
	}
	if meta.Origin == "" || meta.Stack == "" {
		t.Fatalf("期望 meta.Origin/meta.Stack 非空 origin=%q stack=%q", meta.Origin, meta.Stack)
	}
}

func TestReportError_按错误类别分流日志级别(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapLogger(zap.New(core))

	ReportErrorWithLoggerContext(context.Background(), l, "join_room", errx.ErrInvalidParam)
	ReportErrorWithLoggerContext(context.Background(), l, "fetch_chunk", errx.ErrUnavailable.WithCause(errors.New("503")))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("期望 2 条日志, got=%d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel {
		t.Fatalf("期望业务拒绝记 INFO, got=%v", entries[0].Level)
	}
	if entries[1].Level != zapcore.ErrorLevel {
		t.Fatalf("期望系统错误记 ERROR, got=%v", entries[1].Level)
	}
}
