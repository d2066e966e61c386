package ws

import (
	"errors"

	"LandVerse/internal/protocol"
)

var (
	ErrConnClosed   = errors.New("ws connection closed")
	ErrSlowConsumer = errors.New("ws outbound queue full")
)

// Identity 是升级时从凭证里解析出的用户。
type Identity struct {
	UserID   int64
	Username string
}

// Conn 是服务端视角的一条连接。
type Conn interface {
	ID() string
	Identity() Identity
	SetProperty(key string, value any)
	GetProperty(key string) any
	RemoveProperty(key string)
	Addr() string
	// Push 不阻塞：队列满时关闭连接并返回 ErrSlowConsumer。
	Push(msgType string, payload any) error
	// Kick 发出最后一条消息后关闭连接。
	Kick(msgType string, payload any)
	Close()
	// Done 用于感知连接生命周期结束（连接关闭时该 channel 会被关闭）
	Done() <-chan struct{}
}

// Request 是一条已解码的入站消息。
type Request struct {
	Conn Conn
	Env  protocol.Envelope
}

func (r *Request) Bind(dst any) error {
	return r.Env.Bind(dst)
}

func (r *Request) UserID() int64 {
	return r.Conn.Identity().UserID
}

const (
	SecretKey = "secretKey"
)
