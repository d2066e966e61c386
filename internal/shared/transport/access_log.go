package transport

import (
	"context"
	"time"

	"go.uber.org/zap"

	"LandVerse/modules/kit/errx"
	"LandVerse/modules/kit/logx"
	"LandVerse/modules/kit/tracex"
)

// AccessLog 记录一次入口调用（ws 消息、HTTP 请求、gRPC 调用）的结果，结束时统一打一行。
type AccessLog struct {
	BizCode     BizCode
	ErrorReason string
	RoomID      string
	startTime   time.Time
	action      string
}

type accessLogKey struct{}

// NewConnContext 为 ws 连接上的一条消息创建 context，带上用户 id。
func NewConnContext(action string, uid int64) context.Context {
	ctx := NewContextWithParent(context.Background(), action)
	if uid != 0 {
		ctx = tracex.WithUserID(ctx, uid)
	}
	return ctx
}

// NewContextWithParent 挂上新的 trace id 和 AccessLog，父 context 的取消信号保留。
// 默认结果是 SystemError，处理方没有显式设置时按失败记。
func NewContextWithParent(parent context.Context, action string) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	if action == "" {
		action = "unknown"
	}
	ctx := parent
	if traceID := tracex.NewTraceID(); traceID != "" {
		ctx = tracex.WithTraceID(ctx, traceID)
	}
	ctx = tracex.WithSpanID(ctx, "landverse")
	return context.WithValue(ctx, accessLogKey{}, &AccessLog{
		BizCode:   BizCode(SystemError),
		startTime: time.Now(),
		action:    action,
	})
}

func FromContext(ctx context.Context) *AccessLog {
	if ctx == nil {
		return nil
	}
	al, _ := ctx.Value(accessLogKey{}).(*AccessLog)
	return al
}

func SetBizCode(ctx context.Context, code BizCode) {
	if al := FromContext(ctx); al != nil {
		al.BizCode = code
	}
}

// SetRoom 记录本次请求涉及的房间。
func SetRoom(ctx context.Context, roomID string) {
	if al := FromContext(ctx); al != nil {
		al.RoomID = roomID
	}
}

func SetErrorReason(ctx context.Context, reason string) {
	if reason == "" {
		return
	}
	if al := FromContext(ctx); al != nil {
		al.ErrorReason = reason
	}
}

// SetResult 按处理结果设置业务码，失败时顺带把错误码记成原因。
func SetResult(ctx context.Context, err error) {
	SetBizCode(ctx, CodeFromError(err))
	if err != nil {
		SetErrorReason(ctx, string(errx.CodeOf(err)))
	}
}

// WriteAccessLog 在入口处 defer 调用。
func WriteAccessLog(ctx context.Context, log logx.Logger) {
	al := FromContext(ctx)
	if al == nil || log == nil {
		return
	}
	fields := make([]zap.Field, 0, 4)
	fields = append(fields, zap.Duration("latency", time.Since(al.startTime)))
	if al.RoomID != "" {
		fields = append(fields, zap.String("room_id", al.RoomID))
	}
	result := "success"
	if al.BizCode != BizCode(OK) {
		result = "failure"
	}
	fields = append(fields, zap.String("result", result))
	if result == "failure" && al.ErrorReason != "" {
		fields = append(fields, zap.String("error_reason", al.ErrorReason))
	}
	logx.ReportAccessWithLoggerContext(ctx, log, al.action, int(al.BizCode), fields...)
}
