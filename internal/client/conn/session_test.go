package conn

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"LandVerse/internal/protocol"
	"LandVerse/internal/shared/security"
)

const testToken = "tok"

type wsServer struct {
	srv     *httptest.Server
	conns   chan *websocket.Conn
	accepts atomic.Int32
	reject  atomic.Bool
	sealKey string
}

func newWSServer(t *testing.T, sealKey string) *wsServer {
	t.Helper()
	s := &wsServer{conns: make(chan *websocket.Conn, 8), sealKey: sealKey}
	up := websocket.Upgrader{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.reject.Load() || r.Header.Get("Authorization") != "Bearer "+testToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.accepts.Add(1)
		if s.sealKey != "" {
			data, _ := protocol.Encode(protocol.TypeHandshake, protocol.HandshakePayload{Key: s.sealKey})
			zipped, _ := security.Zip(data)
			_ = c.WriteMessage(websocket.BinaryMessage, zipped)
		}
		s.conns <- c
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsServer) next(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		t.Cleanup(func() { _ = c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("等待服务端连接超时")
		return nil
	}
}

func testConfig(url string) Config {
	cfg := DefaultConfig(url)
	cfg.BackoffMin = 10 * time.Millisecond
	cfg.BackoffMax = 40 * time.Millisecond
	cfg.Heartbeat = time.Hour
	return cfg
}

func cred() Credential {
	return Credential{Token: testToken, Identity: Identity{UserID: 7, Username: "alice"}}
}

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("等待 %s 超时", what)
	}
}

func signalOn(s *Session, eventType string) <-chan struct{} {
	ch := make(chan struct{}, 8)
	s.On(eventType, func(protocol.Envelope) { ch <- struct{}{} })
	return ch
}

func TestSend_未连接时立即失败(t *testing.T) {
	s := NewSession(testConfig("ws://127.0.0.1:1"), nil, nil)
	err := s.Send(protocol.TypeJoinRoom, protocol.RoomPayload{RoomID: "world"})
	if !errors.Is(err, ErrNotOpen) {
		t.Fatalf("期望 ErrNotOpen, got=%v", err)
	}
}

func TestConnect_消息分发给所有订阅者(t *testing.T) {
	srv := newWSServer(t, "")
	s := NewSession(testConfig(srv.url()), nil, nil)
	connected := signalOn(s, protocol.EventConnected)

	got1 := make(chan protocol.Envelope, 1)
	got2 := make(chan protocol.Envelope, 1)
	s.On(protocol.TypeMessage, func(env protocol.Envelope) { got1 <- env })
	sub2 := s.On(protocol.TypeMessage, func(env protocol.Envelope) { got2 <- env })

	if err := s.Connect(context.Background(), cred()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Disconnect()
	waitSignal(t, connected, "connected")
	if s.State() != Open {
		t.Fatalf("期望 open, got=%v", s.State())
	}

	c := srv.next(t)
	data, _ := protocol.Encode(protocol.TypeMessage, protocol.ChatPayload{RoomID: "world", Content: "hi"})
	_ = c.WriteMessage(websocket.TextMessage, data)

	for _, ch := range []chan protocol.Envelope{got1, got2} {
		select {
		case env := <-ch:
			var p protocol.ChatPayload
			if err := env.Bind(&p); err != nil || p.Content != "hi" {
				t.Fatalf("期望收到 hi, got=%+v err=%v", p, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("订阅者没有收到消息")
		}
	}

	s.Unsubscribe(sub2)
	s.Unsubscribe(sub2)
	_ = c.WriteMessage(websocket.TextMessage, data)
	<-got1
	select {
	case <-got2:
		t.Fatalf("取消订阅后不应再收到")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSend_写出信封(t *testing.T) {
	srv := newWSServer(t, "")
	s := NewSession(testConfig(srv.url()), nil, nil)
	if err := s.Connect(context.Background(), cred()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Disconnect()
	c := srv.next(t)

	if err := s.Send(protocol.TypeJoinRoom, protocol.RoomPayload{RoomID: "land_1_2"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	env, err := protocol.Decode(data)
	if err != nil || env.Type != protocol.TypeJoinRoom {
		t.Fatalf("期望 join_room, got=%+v err=%v", env, err)
	}
}

func TestReconnect_断线后重连且订阅保留(t *testing.T) {
	srv := newWSServer(t, "")
	s := NewSession(testConfig(srv.url()), nil, nil)
	disconnected := signalOn(s, protocol.EventDisconnected)
	reconnected := signalOn(s, protocol.EventReconnected)
	got := make(chan struct{}, 1)
	s.On(protocol.TypeMessage, func(protocol.Envelope) { got <- struct{}{} })

	if err := s.Connect(context.Background(), cred()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Disconnect()

	first := srv.next(t)
	_ = first.Close()
	waitSignal(t, disconnected, "disconnected")
	waitSignal(t, reconnected, "reconnected")

	if n := srv.accepts.Load(); n != 2 {
		t.Fatalf("期望服务端接受两次连接, got=%d", n)
	}
	if s.State() != Open {
		t.Fatalf("期望重连后 open, got=%v", s.State())
	}

	second := srv.next(t)
	data, _ := protocol.Encode(protocol.TypeMessage, protocol.ChatPayload{RoomID: "world"})
	_ = second.WriteMessage(websocket.TextMessage, data)
	waitSignal(t, got, "重连后的消息")
}

func TestDisconnect_主动断开不再重连(t *testing.T) {
	srv := newWSServer(t, "")
	s := NewSession(testConfig(srv.url()), nil, nil)
	disconnected := signalOn(s, protocol.EventDisconnected)
	reconnected := signalOn(s, protocol.EventReconnected)

	if err := s.Connect(context.Background(), cred()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	srv.next(t)
	s.Disconnect()
	waitSignal(t, disconnected, "disconnected")
	waitSignal(t, s.Done(), "后台循环退出")

	select {
	case <-reconnected:
		t.Fatalf("主动断开后不应重连")
	case <-time.After(100 * time.Millisecond):
	}
	if s.State() != Disconnected {
		t.Fatalf("期望 disconnected, got=%v", s.State())
	}
	if err := s.Send(protocol.TypeHeartbeat, nil); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("期望断开后 Send 失败, got=%v", err)
	}
}

func TestSessionReplaced_被顶号后不重连(t *testing.T) {
	srv := newWSServer(t, "")
	s := NewSession(testConfig(srv.url()), nil, nil)
	kicked := signalOn(s, protocol.TypeSessionKicked)

	if err := s.Connect(context.Background(), cred()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	c := srv.next(t)
	data, _ := protocol.Encode(protocol.TypeSessionKicked, struct{}{})
	_ = c.WriteMessage(websocket.TextMessage, data)
	waitSignal(t, kicked, "session_replaced")
	_ = c.Close()

	waitSignal(t, s.Done(), "后台循环退出")
	if n := srv.accepts.Load(); n != 1 {
		t.Fatalf("期望不再重连, accepts=%d", n)
	}
}

func TestConnect_凭证被拒绝(t *testing.T) {
	srv := newWSServer(t, "")
	srv.reject.Store(true)
	s := NewSession(testConfig(srv.url()), nil, nil)

	err := s.Connect(context.Background(), cred())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("期望 ErrUnauthorized, got=%v", err)
	}
	if s.State() != Disconnected {
		t.Fatalf("期望 disconnected, got=%v", s.State())
	}
	if err := s.Connect(context.Background(), Credential{}); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("期望 ErrNoCredential, got=%v", err)
	}
}

func TestSealed_握手后收发加密帧(t *testing.T) {
	key := "0123456789abcdef"
	srv := newWSServer(t, key)
	cfg := testConfig(srv.url())
	cfg.Sealed = true
	s := NewSession(cfg, nil, nil)
	got := make(chan protocol.Envelope, 1)
	s.On(protocol.TypeMessage, func(env protocol.Envelope) { got <- env })

	if err := s.Connect(context.Background(), cred()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Disconnect()
	c := srv.next(t)

	if err := s.Send(protocol.TypeTyping, protocol.TypingPayload{RoomID: "world", IsTyping: true}); err != nil {
		t.Fatalf("send: %v", err)
	}
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, frame, err := c.ReadMessage()
	if err != nil || mt != websocket.BinaryMessage {
		t.Fatalf("期望二进制帧, mt=%d err=%v", mt, err)
	}
	plain, err := security.Open(frame, []byte(key))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if env, _ := protocol.Decode(plain); env.Type != protocol.TypeTyping {
		t.Fatalf("期望 typing, got=%s", env.Type)
	}

	data, _ := protocol.Encode(protocol.TypeMessage, protocol.ChatPayload{RoomID: "world", Content: "sealed"})
	sealed, _ := security.Seal(data, []byte(key))
	_ = c.WriteMessage(websocket.BinaryMessage, sealed)
	select {
	case env := <-got:
		var p protocol.ChatPayload
		_ = env.Bind(&p)
		if p.Content != "sealed" {
			t.Fatalf("期望解密出 sealed, got=%q", p.Content)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("没有收到加密消息")
	}
}

func TestDispatch_单个订阅者panic不影响其他(t *testing.T) {
	s := NewSession(testConfig("ws://unused"), nil, nil)
	var calls atomic.Int32
	s.On("x", func(protocol.Envelope) { panic("boom") })
	s.On("x", func(protocol.Envelope) { calls.Add(1) })

	s.dispatch(protocol.Envelope{Type: "x"})
	if calls.Load() != 1 {
		t.Fatalf("期望第二个订阅者仍被调用")
	}
}

func TestScope_关闭时释放全部订阅(t *testing.T) {
	s := NewSession(testConfig("ws://unused"), nil, nil)
	var calls atomic.Int32
	sc := NewScope(s)
	sc.On("a", func(protocol.Envelope) { calls.Add(1) })
	sc.On("b", func(protocol.Envelope) { calls.Add(1) })
	sc.Close()

	s.dispatch(protocol.Envelope{Type: "a"})
	s.dispatch(protocol.Envelope{Type: "b"})
	if calls.Load() != 0 {
		t.Fatalf("期望 Scope 关闭后不再回调, calls=%d", calls.Load())
	}
	if sub := sc.On("a", func(protocol.Envelope) {}); sub.Valid() {
		t.Fatalf("期望关闭后的 Scope 不再订阅")
	}
}
