package protocol

// 房间成员
const (
	TypeJoinRoom      = "join_room"
	TypeLeaveRoom     = "leave_room"
	TypeJoinedRoom    = "joined_room"
	TypeLeftRoom      = "left_room"
	TypeRoomMembers   = "room_members"
	TypeMemberJoined  = "member_joined"
	TypeMemberLeft    = "member_left"
	TypeLocation      = "player_location"
	TypePresence      = "presence_update"
	TypeSessionKicked = "session_replaced"
)

// 聊天
const (
	TypeMessage = "message"
	TypeTyping  = "typing"
)

// 直播与信令
const (
	TypeLiveStatus     = "live_status"
	TypeLivePeers      = "live_peers"
	TypeLiveStart      = "live_start"
	TypeLiveStop       = "live_stop"
	TypeLivePeerJoined = "live_peer_joined"
	TypeLivePeerLeft   = "live_peer_left"
	TypeLiveOffer      = "live_offer"
	TypeLiveAnswer     = "live_answer"
	TypeLiveICE        = "live_ice"
)

// 连接层
const (
	TypeHeartbeat  = "heartbeat"
	TypeHandshake  = "handshake"
	TypeError      = "error"
	TypeLandUpdate = "land_update"
)

// 本地生命周期伪事件，只在客户端会话内部分发，不上网络。
const (
	EventConnected    = "connected"
	EventReconnected  = "reconnected"
	EventDisconnected = "disconnected"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// IsSignal 判断是否是需要按 target 路由的信令。
func IsSignal(msgType string) bool {
	switch msgType {
	case TypeLiveOffer, TypeLiveAnswer, TypeLiveICE:
		return true
	}
	return false
}
