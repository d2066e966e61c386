package actors

import (
	"sort"

	"github.com/asynkron/protoactor-go/actor"

	"LandVerse/internal/presence/domain"
)

type stashed struct {
	msg    any
	sender *actor.PID
}

// ManagerActor 只做路由和房间生命周期，不碰房间状态。
type ManagerActor struct {
	rooms map[string]*actor.PID // room_id -> room actor
	// 正在回收的房间，期间到达的消息先暂存，回收结束后重新投递
	draining map[string][]stashed
}

func NewManagerActor() *ManagerActor {
	return &ManagerActor{
		rooms:    make(map[string]*actor.PID),
		draining: make(map[string][]stashed),
	}
}

func (m *ManagerActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *LeaveAll:
		for _, pid := range m.rooms {
			ctx.Send(pid, msg)
		}
	case *RoomsQuery:
		ctx.Respond(&RoomsReply{Rooms: m.roomIDs()})
	case *roomEmpty:
		m.collect(ctx, msg.roomID)
	case *roomDrained:
		m.drained(ctx, msg)
	case RoomMessage:
		m.route(ctx, msg)
	}
}

func (m *ManagerActor) route(ctx actor.Context, msg RoomMessage) {
	roomID := msg.Room()
	if queue, ok := m.draining[roomID]; ok {
		m.draining[roomID] = append(queue, stashed{msg: msg, sender: ctx.Sender()})
		return
	}
	if pid, ok := m.rooms[roomID]; ok {
		ctx.Forward(pid)
		return
	}

	// 房间不存在：只有 join 会建房，其余请求直接回复
	switch msg.(type) {
	case *Join:
		ctx.Forward(m.spawn(ctx, roomID))
	case *MembersQuery:
		ctx.Respond(&MembersReply{})
	case *Leave, *LiveStop, *Signal:
		ctx.Respond(&Ack{})
	default:
		ctx.Respond(&Ack{Err: domain.ErrNotMember.WithData("room_id", roomID)})
	}
}

func (m *ManagerActor) spawn(ctx actor.Context, roomID string) *actor.PID {
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewRoomActor(roomID)
	})
	pid := ctx.Spawn(props)
	m.rooms[roomID] = pid
	return pid
}

// collect 让空房间自查一次。房间邮箱里可能还有没处理的 join，所以不能直接 Stop。
func (m *ManagerActor) collect(ctx actor.Context, roomID string) {
	if _, ok := m.draining[roomID]; ok {
		return
	}
	pid, ok := m.rooms[roomID]
	if !ok {
		return
	}
	m.draining[roomID] = nil
	ctx.Send(pid, &stopIfIdle{})
}

func (m *ManagerActor) drained(ctx actor.Context, msg *roomDrained) {
	queue := m.draining[msg.roomID]
	delete(m.draining, msg.roomID)
	if msg.stopped {
		delete(m.rooms, msg.roomID)
	}
	for _, s := range queue {
		ctx.RequestWithCustomSender(ctx.Self(), s.msg, s.sender)
	}
}

func (m *ManagerActor) roomIDs() []string {
	out := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
