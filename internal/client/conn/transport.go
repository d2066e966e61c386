package conn

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"LandVerse/internal/protocol"
	"LandVerse/internal/shared/security"
)

// Transport 是一条已建立的 ws 连接，*websocket.Conn 直接满足。
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Transport, error)
}

// WSDialer 用 gorilla websocket 拨号。
type WSDialer struct {
	websocket.Dialer
}

func (d WSDialer) Dial(ctx context.Context, url string, header http.Header) (Transport, error) {
	c, resp, err := d.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized.WithCause(err)
		}
		return nil, err
	}
	return c, nil
}

// frameCodec 处理明文与加密两种帧。key 为空时是明文 TextMessage。
type frameCodec struct {
	key []byte
}

func (c frameCodec) sealed() bool {
	return len(c.key) > 0
}

func (c frameCodec) encode(plain []byte) (int, []byte, error) {
	if !c.sealed() {
		return websocket.TextMessage, plain, nil
	}
	data, err := security.Seal(plain, c.key)
	if err != nil {
		return 0, nil, err
	}
	return websocket.BinaryMessage, data, nil
}

func (c frameCodec) decode(messageType int, data []byte) ([]byte, error) {
	if !c.sealed() || messageType != websocket.BinaryMessage {
		return data, nil
	}
	return security.Open(data, c.key)
}

// readHandshake 读取加密模式下服务端下发的第一帧（gzip 过的 handshake 信封）。
func readHandshake(tr Transport, timeout time.Duration) (frameCodec, error) {
	_ = tr.SetReadDeadline(time.Now().Add(timeout))
	defer tr.SetReadDeadline(time.Time{})

	_, data, err := tr.ReadMessage()
	if err != nil {
		return frameCodec{}, err
	}
	plain, err := security.UnZip(data)
	if err != nil {
		return frameCodec{}, ErrHandshake.WithCause(err)
	}
	env, err := protocol.Decode(plain)
	if err != nil {
		return frameCodec{}, ErrHandshake.WithCause(err)
	}
	if env.Type != protocol.TypeHandshake {
		return frameCodec{}, ErrHandshake.WithData("type", env.Type)
	}
	var hs protocol.HandshakePayload
	if err := env.Bind(&hs); err != nil || hs.Key == "" {
		return frameCodec{}, ErrHandshake.WithCause(err)
	}
	return frameCodec{key: []byte(hs.Key)}, nil
}
