package ws

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"LandVerse/internal/protocol"
	"LandVerse/internal/shared/transport"
	"LandVerse/modules/kit/errx"
	"LandVerse/modules/kit/logx"
)

// HandlerFunc 返回的错误会被转换成 error 报文回给发送方。
type HandlerFunc func(ctx context.Context, req *Request) error

// Validator 在分发前校验 payload，protocol.Validator 实现它。
type Validator interface {
	Validate(msgType string, payload json.RawMessage) error
}

type Router struct {
	handlers  map[string]HandlerFunc
	validator Validator
	log       logx.Logger
}

func NewRouter(l logx.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		log:      logx.OrNop(l),
	}
}

func (r *Router) Handle(msgType string, h HandlerFunc) {
	r.handlers[msgType] = h
}

func (r *Router) Use(v Validator) {
	r.validator = v
}

// Routes 返回已注册的消息类型。
func (r *Router) Routes() []string {
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}

// Dispatch 按 type 找处理器。每条消息一条访问日志。
func (r *Router) Dispatch(conn Conn, env protocol.Envelope) {
	ctx := transport.NewConnContext("WS "+env.Type, conn.Identity().UserID)
	defer transport.WriteAccessLog(ctx, r.log)

	h := r.handlers[env.Type]
	if h == nil {
		r.reply(ctx, conn, env.Type, errx.ErrInvalidParam.WithMsg("未知消息类型").WithData("type", env.Type))
		return
	}
	if r.validator != nil {
		if err := r.validator.Validate(env.Type, env.Payload); err != nil {
			r.reply(ctx, conn, env.Type, errx.ErrInvalidParam.WithCause(err))
			return
		}
	}

	err := r.safeCall(ctx, h, &Request{Conn: conn, Env: env})
	if err != nil {
		r.reply(ctx, conn, env.Type, err)
		return
	}
	transport.SetResult(ctx, nil)
}

func (r *Router) safeCall(ctx context.Context, h HandlerFunc, req *Request) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("ws handler panic", zap.String("type", req.Env.Type), zap.Any("panic", rec))
			err = errx.ErrInternal
		}
	}()
	return h(ctx, req)
}

// reply 记录错误并回 error 报文，系统错误对客户端只给兜底文案。
func (r *Router) reply(ctx context.Context, conn Conn, refType string, err error) {
	transport.SetResult(ctx, err)
	logx.ReportErrorWithLoggerContext(ctx, r.log, "WS "+refType, err)

	code := errx.CodeOf(err)
	if code == "" {
		code = errx.CodeInternal
	}
	_ = conn.Push(protocol.TypeError, protocol.ErrorPayload{
		Code:    string(code),
		Msg:     errx.MsgOf(err),
		RefType: refType,
	})
}
