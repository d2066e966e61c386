package actors

import (
	"sort"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"

	"LandVerse/internal/presence/domain"
	"LandVerse/internal/protocol"
	"LandVerse/internal/shared/transport/ws"
)

type member struct {
	conn     ws.Conn
	userID   int64
	username string
	x, y     int
	joinedAt time.Time
}

// RoomActor 持有一个房间的成员和直播名单。状态只在 Receive 里改，不需要锁。
type RoomActor struct {
	roomID       string
	members      map[int64]*member
	broadcasters map[int64]protocol.MediaKind
	now          func() time.Time
}

func NewRoomActor(roomID string) *RoomActor {
	return &RoomActor{
		roomID:       roomID,
		members:      make(map[int64]*member),
		broadcasters: make(map[int64]protocol.MediaKind),
		now:          time.Now,
	}
}

func (r *RoomActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *Join:
		ctx.Respond(&Ack{Err: r.join(msg)})
	case *Leave:
		r.leave(ctx, msg.UserID, msg.ConnID)
		ctx.Respond(&Ack{})
	case *LeaveAll:
		r.leave(ctx, msg.UserID, msg.ConnID)
	case *Location:
		ctx.Respond(&Ack{Err: r.location(msg)})
	case *Chat:
		ctx.Respond(&Ack{Err: r.chat(msg)})
	case *Typing:
		ctx.Respond(&Ack{Err: r.typing(msg)})
	case *LiveStatus:
		ctx.Respond(&Ack{Err: r.liveStatus(msg)})
	case *LiveStart:
		ctx.Respond(&Ack{Err: r.liveStart(msg)})
	case *LiveStop:
		r.liveStop(msg.UserID)
		ctx.Respond(&Ack{})
	case *Signal:
		r.signal(msg)
		ctx.Respond(&Ack{})
	case *MembersQuery:
		ctx.Respond(r.snapshot())
	case *stopIfIdle:
		stopped := len(r.members) == 0
		ctx.Send(ctx.Parent(), &roomDrained{roomID: r.roomID, stopped: stopped})
		if stopped {
			ctx.Stop(ctx.Self())
		}
	}
}

func (r *RoomActor) join(msg *Join) error {
	ident := msg.Conn.Identity()
	if m, ok := r.members[ident.UserID]; ok {
		// 重复加入：只补发确认和快照。换了连接说明是重连，旧连接上的直播作废。
		if m.conn.ID() != msg.Conn.ID() {
			m.conn = msg.Conn
			r.liveStop(ident.UserID)
		}
		r.ack(m)
		return nil
	}

	m := &member{
		conn:     msg.Conn,
		userID:   ident.UserID,
		username: ident.Username,
		joinedAt: r.now(),
	}
	if key, err := protocol.ParseRoom(r.roomID); err == nil && key.IsLand {
		m.x, m.y = key.X, key.Y
	}
	r.members[ident.UserID] = m
	r.ack(m)
	r.broadcast(protocol.TypeMemberJoined, protocol.MemberEventPayload{
		RoomID:   r.roomID,
		UserID:   m.userID,
		Username: m.username,
	}, m.userID)
	return nil
}

func (r *RoomActor) ack(m *member) {
	_ = m.conn.Push(protocol.TypeJoinedRoom, protocol.RoomPayload{RoomID: r.roomID})
	others := make([]protocol.Member, 0, len(r.members))
	for _, o := range r.sortedMembers() {
		if o.userID == m.userID {
			continue
		}
		others = append(others, protocol.Member{UserID: o.userID, Username: o.username, X: o.x, Y: o.y})
	}
	_ = m.conn.Push(protocol.TypeRoomMembers, protocol.RoomMembersPayload{RoomID: r.roomID, Members: others})
}

// leave 在 connID 非空时只移除同一连接的成员，避免旧连接的断开把重连后的成员踢掉。
// left_room 确认由调用方发，不是成员也照样确认。
func (r *RoomActor) leave(ctx actor.Context, userID int64, connID string) {
	m, ok := r.members[userID]
	if ok && connID != "" && m.conn.ID() != connID {
		return
	}
	if ok {
		r.liveStop(userID)
		delete(r.members, userID)
		r.broadcast(protocol.TypeMemberLeft, protocol.MemberEventPayload{
			RoomID:   r.roomID,
			UserID:   userID,
			Username: m.username,
		}, userID)
	}
	if len(r.members) == 0 && ctx.Parent() != nil {
		ctx.Send(ctx.Parent(), &roomEmpty{roomID: r.roomID})
	}
}

func (r *RoomActor) location(msg *Location) error {
	m, ok := r.members[msg.UserID]
	if !ok {
		return domain.ErrNotMember.WithData("room_id", r.roomID)
	}
	m.x, m.y = msg.X, msg.Y
	r.broadcast(protocol.TypeLocation, protocol.LocationPayload{
		RoomID:   r.roomID,
		UserID:   m.userID,
		Username: m.username,
		X:        m.x,
		Y:        m.y,
	}, m.userID)
	return nil
}

// chat 连同发送者一起广播，客户端按 id 去重。
func (r *RoomActor) chat(msg *Chat) error {
	m, ok := r.members[msg.UserID]
	if !ok {
		return domain.ErrNotMember.WithData("room_id", r.roomID)
	}
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	r.broadcast(protocol.TypeMessage, protocol.ChatPayload{
		ID:        id.String(),
		RoomID:    r.roomID,
		SenderID:  m.userID,
		Sender:    m.username,
		Content:   msg.Content,
		Timestamp: r.now().UnixMilli(),
	}, 0)
	return nil
}

func (r *RoomActor) typing(msg *Typing) error {
	if _, ok := r.members[msg.UserID]; !ok {
		return domain.ErrNotMember.WithData("room_id", r.roomID)
	}
	r.broadcast(protocol.TypeTyping, protocol.TypingPayload{
		RoomID:   r.roomID,
		UserID:   msg.UserID,
		IsTyping: msg.IsTyping,
	}, msg.UserID)
	return nil
}

func (r *RoomActor) liveStatus(msg *LiveStatus) error {
	m, ok := r.members[msg.UserID]
	if !ok {
		return domain.ErrNotMember.WithData("room_id", r.roomID)
	}
	_ = m.conn.Push(protocol.TypeLivePeers, protocol.LivePeersPayload{
		RoomID: r.roomID,
		Peers:  r.livePeers(),
	})
	return nil
}

func (r *RoomActor) liveStart(msg *LiveStart) error {
	m, ok := r.members[msg.UserID]
	if !ok {
		return domain.ErrNotMember.WithData("room_id", r.roomID)
	}
	kind := msg.Kind
	if kind == "" {
		kind = protocol.MediaAudio
	}
	if !kind.Valid() {
		return domain.ErrBadMediaKind.WithData("media_type", string(kind))
	}
	if cur, ok := r.broadcasters[m.userID]; ok && cur == kind {
		return nil
	}
	r.broadcasters[m.userID] = kind
	r.broadcast(protocol.TypeLivePeerJoined, protocol.LivePeerEventPayload{
		RoomID:    r.roomID,
		UserID:    m.userID,
		Username:  m.username,
		MediaType: kind,
	}, m.userID)
	return nil
}

// liveStop 对非主播静默忽略。
func (r *RoomActor) liveStop(userID int64) {
	kind, ok := r.broadcasters[userID]
	if !ok {
		return
	}
	delete(r.broadcasters, userID)
	username := ""
	if m, ok := r.members[userID]; ok {
		username = m.username
	}
	r.broadcast(protocol.TypeLivePeerLeft, protocol.LivePeerEventPayload{
		RoomID:    r.roomID,
		UserID:    userID,
		Username:  username,
		MediaType: kind,
	}, userID)
}

// signal 只在同房间成员之间转发，盖上 from_user_id，其余丢弃。
func (r *RoomActor) signal(msg *Signal) {
	if msg.From == msg.Target {
		return
	}
	if _, ok := r.members[msg.From]; !ok {
		return
	}
	target, ok := r.members[msg.Target]
	if !ok {
		return
	}
	_ = target.conn.Push(msg.Type, protocol.SignalPayload{
		RoomID:       r.roomID,
		TargetUserID: msg.Target,
		FromUserID:   msg.From,
		Payload:      msg.Payload,
	})
}

func (r *RoomActor) snapshot() *MembersReply {
	out := &MembersReply{Members: make([]protocol.Member, 0, len(r.members))}
	for _, m := range r.sortedMembers() {
		out.Members = append(out.Members, protocol.Member{UserID: m.userID, Username: m.username, X: m.x, Y: m.y})
	}
	out.Broadcaster = r.livePeers()
	return out
}

func (r *RoomActor) livePeers() []protocol.LivePeer {
	peers := make([]protocol.LivePeer, 0, len(r.broadcasters))
	for uid, kind := range r.broadcasters {
		p := protocol.LivePeer{UserID: uid, MediaType: kind}
		if m, ok := r.members[uid]; ok {
			p.Username = m.username
		}
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].UserID < peers[j].UserID })
	return peers
}

func (r *RoomActor) sortedMembers() []*member {
	out := make([]*member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].userID < out[j].userID })
	return out
}

// broadcast 推给房间内所有成员，except 为 0 时包括发送者。
func (r *RoomActor) broadcast(msgType string, payload any, except int64) {
	for uid, m := range r.members {
		if uid == except {
			continue
		}
		_ = m.conn.Push(msgType, payload)
	}
}
