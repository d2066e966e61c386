package actors

import (
	"encoding/json"

	"LandVerse/internal/protocol"
	"LandVerse/internal/shared/transport/ws"
)

// RoomMessage 是需要路由到某个房间 actor 的消息。
type RoomMessage interface {
	Room() string
}

// Ack 是房间 actor 对请求的统一回复。
type Ack struct {
	Err error
}

type Join struct {
	RoomID string
	Conn   ws.Conn
}

type Leave struct {
	RoomID string
	UserID int64
	ConnID string
}

// LeaveAll 在连接断开时发给所有房间，只移除 ConnID 匹配的成员。
type LeaveAll struct {
	UserID int64
	ConnID string
}

type Location struct {
	RoomID string
	UserID int64
	X, Y   int
}

type Chat struct {
	RoomID  string
	UserID  int64
	Content string
}

type Typing struct {
	RoomID   string
	UserID   int64
	IsTyping bool
}

type LiveStatus struct {
	RoomID string
	UserID int64
}

type LiveStart struct {
	RoomID string
	UserID int64
	Kind   protocol.MediaKind
}

type LiveStop struct {
	RoomID string
	UserID int64
}

// Signal 是 offer/answer/ice，Type 原样转发。
type Signal struct {
	RoomID  string
	Type    string
	From    int64
	Target  int64
	Payload json.RawMessage
}

// MembersQuery 的回复是 MembersReply。
type MembersQuery struct {
	RoomID string
}

type MembersReply struct {
	Members     []protocol.Member
	Broadcaster []protocol.LivePeer
}

// RoomsQuery 的回复是 RoomsReply，列出当前存活的房间。
type RoomsQuery struct{}

type RoomsReply struct {
	Rooms []string
}

func (m *Join) Room() string         { return m.RoomID }
func (m *Leave) Room() string        { return m.RoomID }
func (m *Location) Room() string     { return m.RoomID }
func (m *Chat) Room() string         { return m.RoomID }
func (m *Typing) Room() string       { return m.RoomID }
func (m *LiveStatus) Room() string   { return m.RoomID }
func (m *LiveStart) Room() string    { return m.RoomID }
func (m *LiveStop) Room() string     { return m.RoomID }
func (m *Signal) Room() string       { return m.RoomID }
func (m *MembersQuery) Room() string { return m.RoomID }

// 房间回收的内部消息。
type roomEmpty struct {
	roomID string
}

type stopIfIdle struct{}

type roomDrained struct {
	roomID  string
	stopped bool
}
