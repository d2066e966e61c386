package live

import (
	"context"

	"LandVerse/internal/protocol"
)

// MediaProvider 获取本地摄像头/麦克风。
type MediaProvider interface {
	Acquire(ctx context.Context, kind protocol.MediaKind) (LocalMedia, error)
}

// LocalMedia 是一组本地轨道，Stop 之后不可再用。
type LocalMedia interface {
	Kind() protocol.MediaKind
	Stop()
}

// RemoteStream 是远端推过来的一路媒体。
type RemoteStream interface {
	ID() string
	Kind() string
}

type PeerState int

const (
	PeerNew PeerState = iota
	PeerConnecting
	PeerConnected
	PeerDisconnected
	PeerFailed
	PeerClosed
)

// PeerCallbacks 由 PeerConn 在任意协程里回调。
type PeerCallbacks struct {
	OnICECandidate func(protocol.ICECandidate)
	OnTrack        func(RemoteStream)
	OnStateChange  func(PeerState)
}

// PeerConn 是一条 WebRTC 连接。CreateOffer/CreateAnswer 同时设置本地描述。
type PeerConn interface {
	AddLocalMedia(m LocalMedia) error
	CreateOffer(ctx context.Context) (protocol.Signal, error)
	CreateAnswer(ctx context.Context) (protocol.Signal, error)
	SetRemoteDescription(sig protocol.Signal) error
	AddICECandidate(c protocol.ICECandidate) error
	Close() error
}

type PeerFactory interface {
	NewPeer(ctx context.Context, cb PeerCallbacks) (PeerConn, error)
}

// Notifier 把需要用户知道的失败展示出来。
type Notifier interface {
	Notify(msg string)
}

type NotifierFunc func(msg string)

func (f NotifierFunc) Notify(msg string) { f(msg) }
