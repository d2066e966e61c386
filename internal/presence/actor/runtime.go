package actor

import (
	"context"
	"errors"
	"time"

	protoactor "github.com/asynkron/protoactor-go/actor"

	"LandVerse/internal/presence/actors"
	"LandVerse/modules/kit/errx"
)

const defaultAskTimeout = 3 * time.Second

// Runtime 把房间 actor 包成同步调用，给 app 层用。
type Runtime struct {
	system  *protoactor.ActorSystem
	root    *protoactor.RootContext
	manager *protoactor.PID
	timeout time.Duration
}

func NewRuntime(askTimeout time.Duration) *Runtime {
	if askTimeout <= 0 {
		askTimeout = defaultAskTimeout
	}

	system := protoactor.NewActorSystem()
	root := system.Root
	// manager 只做路由和建房，不干重活
	managerProps := protoactor.PropsFromProducer(func() protoactor.Actor {
		return actors.NewManagerActor()
	})
	manager := root.Spawn(managerProps)

	return &Runtime{
		system:  system,
		root:    root,
		manager: manager,
		timeout: askTimeout,
	}
}

func (r *Runtime) Shutdown() {
	if r == nil {
		return
	}
	if r.root != nil && r.manager != nil {
		_ = r.root.StopFuture(r.manager).Wait()
	}
	if r.system != nil {
		r.system.Shutdown()
	}
}

func (r *Runtime) request(ctx context.Context, msg any) (any, error) {
	if r == nil || r.root == nil || r.manager == nil {
		return nil, errx.ErrUnavailable.WithMsg("actor runtime 未初始化")
	}
	future := r.root.RequestFuture(r.manager, msg, r.timeoutFromContext(ctx))
	res, err := future.Result()
	if err != nil {
		if errors.Is(err, protoactor.ErrTimeout) {
			return nil, errx.ErrTimeout.WithCause(err)
		}
		return nil, errx.ErrInternal.WithMsg("actor 请求失败").WithCause(err)
	}
	return res, nil
}

func (r *Runtime) timeoutFromContext(ctx context.Context) time.Duration {
	if r.timeout <= 0 {
		return defaultAskTimeout
	}
	if ctx == nil {
		return r.timeout
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return r.timeout
	}
	remain := time.Until(deadline)
	if remain <= 0 {
		return time.Millisecond
	}
	if remain < r.timeout {
		return remain
	}
	return r.timeout
}

// Ask 发送房间命令并等待房间的确认。
func (r *Runtime) Ask(ctx context.Context, msg actors.RoomMessage) error {
	if msg == nil {
		return errx.ErrInvalidParam.WithMsg("room message 不能为空")
	}
	res, err := r.request(ctx, msg)
	if err != nil {
		return err
	}
	ack, ok := res.(*actors.Ack)
	if !ok {
		return errx.ErrInternal.WithMsg("actor 返回类型非法")
	}
	return ack.Err
}

// Tell 不等回复，断线清理这类没人等结果的消息走这里。
func (r *Runtime) Tell(msg any) {
	if r == nil || r.root == nil {
		return
	}
	r.root.Send(r.manager, msg)
}

func (r *Runtime) Members(ctx context.Context, roomID string) (*actors.MembersReply, error) {
	res, err := r.request(ctx, &actors.MembersQuery{RoomID: roomID})
	if err != nil {
		return nil, err
	}
	reply, ok := res.(*actors.MembersReply)
	if !ok {
		return nil, errx.ErrInternal.WithMsg("actor 返回类型非法")
	}
	return reply, nil
}

func (r *Runtime) Rooms(ctx context.Context) ([]string, error) {
	res, err := r.request(ctx, &actors.RoomsQuery{})
	if err != nil {
		return nil, err
	}
	reply, ok := res.(*actors.RoomsReply)
	if !ok {
		return nil, errx.ErrInternal.WithMsg("actor 返回类型非法")
	}
	return reply.Rooms, nil
}
