package protocol

import "encoding/json"

type RoomPayload struct {
	RoomID string `json:"room_id"`
}

type Member struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
}

type RoomMembersPayload struct {
	RoomID  string   `json:"room_id"`
	Members []Member `json:"members"`
}

type MemberEventPayload struct {
	RoomID   string `json:"room_id"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

type LocationPayload struct {
	RoomID   string `json:"room_id"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
}

type PresencePayload struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username,omitempty"`
	Status   string `json:"status"`
}

type ChatPayload struct {
	ID        string `json:"id,omitempty"`
	RoomID    string `json:"room_id"`
	SenderID  int64  `json:"sender_id,omitempty"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

type TypingPayload struct {
	RoomID   string `json:"room_id"`
	UserID   int64  `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

func (k MediaKind) Valid() bool {
	return k == MediaAudio || k == MediaVideo
}

type LivePeer struct {
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	MediaType MediaKind `json:"media_type"`
}

type LivePeersPayload struct {
	RoomID string     `json:"room_id"`
	Peers  []LivePeer `json:"peers"`
}

type LiveStartPayload struct {
	RoomID    string    `json:"room_id"`
	MediaType MediaKind `json:"media_type,omitempty"`
}

type LivePeerEventPayload struct {
	RoomID    string    `json:"room_id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	MediaType MediaKind `json:"media_type,omitempty"`
}

// SignalPayload 是 offer/answer/ice 的路由外壳，服务端不解析 Payload。
type SignalPayload struct {
	RoomID       string          `json:"room_id"`
	TargetUserID int64           `json:"target_user_id"`
	FromUserID   int64           `json:"from_user_id,omitempty"`
	Payload      json.RawMessage `json:"payload"`
}

// Signal 是客户端之间交换的信令内容。
type Signal struct {
	SDPType   string        `json:"type,omitempty"`
	SDP       string        `json:"sdp,omitempty"`
	Candidate *ICECandidate `json:"candidate,omitempty"`
}

type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

type LandUpdatePayload struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Field string `json:"field"`
	Value any    `json:"value"`
}

type HeartbeatPayload struct {
	CTime int64 `json:"ctime"`
	STime int64 `json:"stime,omitempty"`
}

type HandshakePayload struct {
	Key string `json:"key"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Msg     string `json:"msg"`
	RefType string `json:"ref_type,omitempty"`
}
