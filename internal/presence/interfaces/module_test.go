package interfaces_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"LandVerse/internal/client/conn"
	"LandVerse/internal/presence/interfaces"
	"LandVerse/internal/presence/interfaces/handler"
	"LandVerse/internal/protocol"
	"LandVerse/internal/shared/security"
	"LandVerse/internal/shared/session"
	transporthttp "LandVerse/internal/shared/transport/http"
	"LandVerse/internal/shared/transport/ws"
)

type stack struct {
	srv *httptest.Server
	mod *interfaces.Module
}

func newStack(t *testing.T, sealed bool) *stack {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	gin.SetMode(gin.TestMode)

	mod := interfaces.New(interfaces.Options{AskTimeout: time.Second, DevToken: true}, session.NewSessMgr(), nil)
	t.Cleanup(mod.Shutdown)

	router := ws.NewRouter(nil)
	router.Use(protocol.MustValidator())
	mod.Register(router)
	wsSrv := ws.NewServer(router, handler.JWTAuthenticator, mod.Hooks(), ws.Options{Sealed: sealed}, nil, nil)

	hs := transporthttp.NewHttpServer(":0", gin.New(), nil, nil)
	mod.RegisterHTTP(hs.Group())
	hs.Engine().GET("/ws", gin.WrapH(wsSrv))

	srv := httptest.NewServer(hs.Handler())
	t.Cleanup(srv.Close)
	return &stack{srv: srv, mod: mod}
}

func (s *stack) wsURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
}

type client struct {
	sess   *conn.Session
	events chan protocol.Envelope
}

func (s *stack) dial(t *testing.T, uid int64, name string, sealed bool) *client {
	t.Helper()
	token, err := security.Award(uid, name)
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	cfg := conn.DefaultConfig(s.wsURL())
	cfg.Sealed = sealed
	cfg.Heartbeat = time.Hour
	c := &client{sess: conn.NewSession(cfg, nil, nil), events: make(chan protocol.Envelope, 64)}
	for _, typ := range []string{
		protocol.TypeJoinedRoom, protocol.TypeRoomMembers, protocol.TypeMemberJoined,
		protocol.TypeMessage, protocol.TypeError, protocol.TypeLiveOffer, protocol.TypePresence,
	} {
		c.sess.On(typ, func(env protocol.Envelope) { c.events <- env })
	}
	if err := c.sess.Connect(context.Background(), conn.Credential{Token: token, Identity: conn.Identity{UserID: uid, Username: name}}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(c.sess.Disconnect)
	return c
}

func (c *client) await(t *testing.T, msgType string) protocol.Envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-c.events:
			if env.Type == msgType {
				return env
			}
		case <-deadline:
			t.Fatalf("等待 %s 超时", msgType)
		}
	}
}

func TestModule_加入房间聊天与信令(t *testing.T) {
	for _, sealed := range []bool{false, true} {
		st := newStack(t, sealed)
		alice := st.dial(t, 1, "alice", sealed)
		bob := st.dial(t, 2, "bob", sealed)
		room := protocol.LandRoom(5, 6)

		_ = alice.sess.Send(protocol.TypeJoinRoom, protocol.RoomPayload{RoomID: room})
		alice.await(t, protocol.TypeJoinedRoom)
		_ = bob.sess.Send(protocol.TypeJoinRoom, protocol.RoomPayload{RoomID: room})
		bob.await(t, protocol.TypeJoinedRoom)
		alice.await(t, protocol.TypeMemberJoined)

		_ = alice.sess.Send(protocol.TypeMessage, protocol.ChatPayload{RoomID: room, Content: "hello"})
		var msg protocol.ChatPayload
		_ = bob.await(t, protocol.TypeMessage).Bind(&msg)
		if msg.Sender != "alice" || msg.Content != "hello" {
			t.Fatalf("sealed=%v unexpected chat %+v", sealed, msg)
		}

		_ = bob.sess.Send(protocol.TypeLiveOffer, protocol.SignalPayload{
			RoomID:       room,
			TargetUserID: 1,
			Payload:      json.RawMessage(`{"type":"offer","sdp":"v=0"}`),
		})
		var sig protocol.SignalPayload
		_ = alice.await(t, protocol.TypeLiveOffer).Bind(&sig)
		if sig.FromUserID != 2 {
			t.Fatalf("信令应带上发送者, got=%+v", sig)
		}
	}
}

func TestModule_非法报文回error(t *testing.T) {
	st := newStack(t, false)
	alice := st.dial(t, 1, "alice", false)

	_ = alice.sess.Send(protocol.TypeJoinRoom, protocol.RoomPayload{RoomID: "lobby"})
	var p protocol.ErrorPayload
	_ = alice.await(t, protocol.TypeError).Bind(&p)
	if p.RefType != protocol.TypeJoinRoom || p.Code != "INVALID_PARAM" {
		t.Fatalf("unexpected error payload %+v", p)
	}

	_ = alice.sess.Send(protocol.TypeMessage, protocol.ChatPayload{RoomID: "world", Content: "x"})
	_ = alice.await(t, protocol.TypeError).Bind(&p)
	if p.Code != "ROOM_NOT_MEMBER" {
		t.Fatalf("未加入房间发言应返回 ROOM_NOT_MEMBER, got=%+v", p)
	}
}

func TestModule_无凭证拒绝升级(t *testing.T) {
	st := newStack(t, false)
	resp, err := http.Get(st.srv.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("期望 401, got=%d", resp.StatusCode)
	}
}

func TestModule_HTTP成员查询与开发令牌(t *testing.T) {
	st := newStack(t, false)
	alice := st.dial(t, 1, "alice", false)
	_ = alice.sess.Send(protocol.TypeJoinRoom, protocol.RoomPayload{RoomID: "world"})
	alice.await(t, protocol.TypeJoinedRoom)

	resp, err := http.Get(st.srv.URL + "/api/rooms/world/members")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var body struct {
		Members []protocol.Member `json:"members"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if len(body.Members) != 1 || body.Members[0].Username != "alice" {
		t.Fatalf("unexpected members %+v", body.Members)
	}

	resp, err = http.Get(st.srv.URL + "/api/rooms/lobby/members")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("非法房间号期望 400, got=%d", resp.StatusCode)
	}

	resp, err = http.Post(st.srv.URL+"/api/dev/token", "application/json", strings.NewReader(`{"user_id":7,"username":"dev"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	var tok struct {
		Token string `json:"token"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&tok)
	resp.Body.Close()
	_, claims, err := security.ParseToken(tok.Token)
	if err != nil || claims.UID != 7 || claims.Username != "dev" {
		t.Fatalf("开发令牌无效 claims=%+v err=%v", claims, err)
	}
}
