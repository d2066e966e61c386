package errx

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Is_只按code比较语义(t *testing.T) {
	e1 := NewBiz("ROOM_X", "x").WithData("k", "v").WithCause(errors.New("cause1"))
	e2 := NewBiz("ROOM_X", "x2").WithData("k2", "v2").WithCause(errors.New("cause2"))
	if !errors.Is(e1, e2) {
		t.Fatalf("期望 errors.Is(e1, e2)==true, e1=%v e2=%v", e1, e2)
	}
}

func TestError_业务错误不捕获栈_但保留cause链(t *testing.T) {
	cause := errors.New("ws closed")
	err := NewBiz("NOT_OPEN", "连接未建立").WithCause(cause)
	if got := err.Stack(); got != nil {
		t.Fatalf("期望业务错误不捕获栈，got=%v", got)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("期望 cause 链不丢，err=%v", err)
	}
	if err.IsSys() {
		t.Fatalf("期望业务错误 IsSys()==false")
	}
}

func TestError_系统错误捕获一次栈_且不重复捕获(t *testing.T) {
	sys := NewSys("CHUNK_FETCH_FAILED", "区块加载失败").WithCause(errors.New("io timeout"))
	if got := sys.Stack(); len(got) == 0 {
		t.Fatalf("期望系统错误捕获栈，got=%v", got)
	}

	sys2 := NewSys("GATEWAY_ERROR", "网关异常").WithCause(sys)
	if got := sys2.Stack(); got != nil {
		t.Fatalf("期望上层系统错误不重复捕获栈，got=%v", got)
	}
}

func TestError_Data_防止外部map污染(t *testing.T) {
	m := map[string]any{"k": "v"}
	err := NewBiz("ROOM_X", "").WithDataMap(m)
	m["k"] = "mutated"
	if got := err.Data()["k"]; got != "v" {
		t.Fatalf("期望构造时复制 data，got=%v", got)
	}
}

func TestCodeOf_能穿透fmt包装(t *testing.T) {
	wrapped := fmt.Errorf("join room: %w", ErrInvalidParam.WithMsg("房间号非法"))
	if got := CodeOf(wrapped); got != CodeInvalidParam {
		t.Fatalf("期望 CodeOf==%s, got=%s", CodeInvalidParam, got)
	}
	if got := MsgOf(wrapped); got != "房间号非法" {
		t.Fatalf("期望 MsgOf 返回派生后的文案, got=%q", got)
	}
	if got := MsgOf(errors.New("raw")); got != ErrInternal.Msg() {
		t.Fatalf("期望非 errx 错误兜底为内部错误文案, got=%q", got)
	}
}
