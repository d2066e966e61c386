package tracex

import (
	"context"
	"testing"
)

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "t-1")
	if got, ok := TraceIDFrom(ctx); !ok || got != "t-1" {
		t.Fatalf("期望 TraceIDFrom round-trip 成功，got=%q ok=%v", got, ok)
	}
}

func TestUserID_零值视为未鉴权(t *testing.T) {
	ctx := WithUserID(context.Background(), 0)
	if _, ok := UserIDFrom(ctx); ok {
		t.Fatalf("期望 uid=0 视为未设置")
	}
	ctx = WithUserID(ctx, 42)
	if got, ok := UserIDFrom(ctx); !ok || got != 42 {
		t.Fatalf("期望 UserIDFrom==42, got=%d ok=%v", got, ok)
	}
}
