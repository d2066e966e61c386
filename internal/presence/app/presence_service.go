package app

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"LandVerse/internal/presence/actors"
	"LandVerse/internal/presence/domain"
	"LandVerse/internal/protocol"
	"LandVerse/internal/shared/session"
	"LandVerse/internal/shared/transport/ws"
	"LandVerse/modules/kit/errx"
	"LandVerse/modules/kit/logx"
)

const chatLimiterKey = "chat_limiter"

type Config struct {
	// ChatInterval 是同一连接两条聊天之间的最小平均间隔，ChatBurst 是允许的突发条数。
	ChatInterval time.Duration
	ChatBurst    int
}

func DefaultConfig() Config {
	return Config{ChatInterval: 500 * time.Millisecond, ChatBurst: 5}
}

type PresenceService struct {
	rooms RoomRuntime
	sess  session.Manager
	cfg   Config
	log   logx.Logger
}

func NewPresenceService(rooms RoomRuntime, sess session.Manager, cfg Config, l logx.Logger) *PresenceService {
	def := DefaultConfig()
	if cfg.ChatInterval <= 0 {
		cfg.ChatInterval = def.ChatInterval
	}
	if cfg.ChatBurst <= 0 {
		cfg.ChatBurst = def.ChatBurst
	}
	return &PresenceService{
		rooms: rooms,
		sess:  sess,
		cfg:   cfg,
		log:   logx.Named(logx.OrNop(l), "presence"),
	}
}

// OnConnect 登记连接。同一用户的旧连接被顶掉时不再广播上线。
func (s *PresenceService) OnConnect(conn ws.Conn) {
	ident := conn.Identity()
	conn.SetProperty(chatLimiterKey, rate.NewLimiter(rate.Every(s.cfg.ChatInterval), s.cfg.ChatBurst))
	if replaced := s.sess.Bind(conn); replaced != nil {
		s.log.Info("会话被新连接顶替", zap.Int64("uid", ident.UserID), zap.String("old_conn", replaced.ID()))
		return
	}
	s.sess.Broadcast(protocol.TypePresence, protocol.PresencePayload{
		UserID:   ident.UserID,
		Username: ident.Username,
		Status:   protocol.StatusOnline,
	}, ident.UserID)
}

// OnClose 把这条连接从所有房间移除。只有当前连接断开才算下线。
func (s *PresenceService) OnClose(conn ws.Conn) {
	ident := conn.Identity()
	s.rooms.Tell(&actors.LeaveAll{UserID: ident.UserID, ConnID: conn.ID()})
	if !s.sess.UnbindConn(conn) {
		return
	}
	s.sess.Broadcast(protocol.TypePresence, protocol.PresencePayload{
		UserID:   ident.UserID,
		Username: ident.Username,
		Status:   protocol.StatusOffline,
	}, ident.UserID)
}

func (s *PresenceService) Join(ctx context.Context, conn ws.Conn, roomID string) error {
	if err := checkRoom(roomID); err != nil {
		return err
	}
	return s.rooms.Ask(ctx, &actors.Join{RoomID: roomID, Conn: conn})
}

// Leave 不在房间里也确认 left_room。
func (s *PresenceService) Leave(ctx context.Context, conn ws.Conn, roomID string) error {
	if err := checkRoom(roomID); err != nil {
		return err
	}
	if err := s.rooms.Ask(ctx, &actors.Leave{RoomID: roomID, UserID: conn.Identity().UserID, ConnID: conn.ID()}); err != nil {
		return err
	}
	return conn.Push(protocol.TypeLeftRoom, protocol.RoomPayload{RoomID: roomID})
}

func (s *PresenceService) Move(ctx context.Context, conn ws.Conn, roomID string, x, y int) error {
	if err := checkRoom(roomID); err != nil {
		return err
	}
	return s.rooms.Ask(ctx, &actors.Location{RoomID: roomID, UserID: conn.Identity().UserID, X: x, Y: y})
}

func (s *PresenceService) Chat(ctx context.Context, conn ws.Conn, roomID, content string) error {
	if err := checkRoom(roomID); err != nil {
		return err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.ErrEmptyMessage
	}
	if n := utf8.RuneCountInString(content); n > domain.MaxChatContent {
		return domain.ErrMessageTooLong.WithData("length", n).WithData("max", domain.MaxChatContent)
	}
	if lim, ok := conn.GetProperty(chatLimiterKey).(*rate.Limiter); ok && !lim.Allow() {
		return errx.ErrRateLimited.WithData("room_id", roomID)
	}
	return s.rooms.Ask(ctx, &actors.Chat{RoomID: roomID, UserID: conn.Identity().UserID, Content: content})
}

func (s *PresenceService) Typing(ctx context.Context, conn ws.Conn, roomID string, typing bool) error {
	if err := checkRoom(roomID); err != nil {
		return err
	}
	return s.rooms.Ask(ctx, &actors.Typing{RoomID: roomID, UserID: conn.Identity().UserID, IsTyping: typing})
}

func (s *PresenceService) LiveStatus(ctx context.Context, conn ws.Conn, roomID string) error {
	if err := checkRoom(roomID); err != nil {
		return err
	}
	return s.rooms.Ask(ctx, &actors.LiveStatus{RoomID: roomID, UserID: conn.Identity().UserID})
}

func (s *PresenceService) LiveStart(ctx context.Context, conn ws.Conn, roomID string, kind protocol.MediaKind) error {
	if err := checkRoom(roomID); err != nil {
		return err
	}
	return s.rooms.Ask(ctx, &actors.LiveStart{RoomID: roomID, UserID: conn.Identity().UserID, Kind: kind})
}

func (s *PresenceService) LiveStop(ctx context.Context, conn ws.Conn, roomID string) error {
	if err := checkRoom(roomID); err != nil {
		return err
	}
	return s.rooms.Ask(ctx, &actors.LiveStop{RoomID: roomID, UserID: conn.Identity().UserID})
}

// Signal 转发 offer/answer/ice，目标不在房间时静默丢弃。
func (s *PresenceService) Signal(ctx context.Context, conn ws.Conn, msgType, roomID string, target int64, payload json.RawMessage) error {
	if !protocol.IsSignal(msgType) {
		return errx.ErrInvalidParam.WithData("type", msgType)
	}
	if err := checkRoom(roomID); err != nil {
		return err
	}
	return s.rooms.Ask(ctx, &actors.Signal{
		RoomID:  roomID,
		Type:    msgType,
		From:    conn.Identity().UserID,
		Target:  target,
		Payload: payload,
	})
}

func (s *PresenceService) Members(ctx context.Context, roomID string) (*actors.MembersReply, error) {
	if err := checkRoom(roomID); err != nil {
		return nil, err
	}
	return s.rooms.Members(ctx, roomID)
}

func (s *PresenceService) Rooms(ctx context.Context) ([]string, error) {
	return s.rooms.Rooms(ctx)
}

func (s *PresenceService) Online() int {
	return s.sess.Online()
}

func checkRoom(roomID string) error {
	if _, err := protocol.ParseRoom(roomID); err != nil {
		return domain.ErrBadRoom.WithData("room_id", roomID).WithCause(err)
	}
	return nil
}
