// Package chat 在会话上收发房间聊天和输入状态。
package chat

import (
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"LandVerse/internal/client/conn"
	"LandVerse/internal/protocol"
	"LandVerse/modules/kit/errx"
	"LandVerse/modules/kit/logx"
)

var (
	ErrEmptyMessage = errx.NewBiz("CHAT_EMPTY", "消息不能为空")
	ErrTooLong      = errx.NewBiz("CHAT_TOO_LONG", "消息过长")
	ErrSendFailed   = errx.NewBiz("CHAT_SEND_FAILED", "消息发送失败，请检查网络后重试")
)

type Config struct {
	HistorySize int
	TypingTTL   time.Duration
	MaxContent  int
}

func (c Config) withDefaults() Config {
	if c.HistorySize <= 0 {
		c.HistorySize = 100
	}
	if c.TypingTTL <= 0 {
		c.TypingTTL = 5 * time.Second
	}
	if c.MaxContent <= 0 {
		c.MaxContent = 500
	}
	return c
}

type Service struct {
	client conn.Client
	cfg    Config
	log    logx.Logger
	now    func() time.Time

	mu        sync.Mutex
	history   map[string][]protocol.ChatPayload
	seen      map[string]struct{}
	typing    map[string]map[int64]time.Time
	selfTyped map[string]bool
	listeners []func(protocol.ChatPayload)
	subs      []conn.Subscription
}

func NewService(client conn.Client, cfg Config, log logx.Logger) *Service {
	s := &Service{
		client:    client,
		cfg:       cfg.withDefaults(),
		log:       logx.OrNop(log),
		now:       time.Now,
		history:   make(map[string][]protocol.ChatPayload),
		seen:      make(map[string]struct{}),
		typing:    make(map[string]map[int64]time.Time),
		selfTyped: make(map[string]bool),
	}
	s.subs = []conn.Subscription{
		client.On(protocol.TypeMessage, s.onMessage),
		client.On(protocol.TypeTyping, s.onTyping),
		client.On(protocol.TypeLeftRoom, s.onLeft),
	}
	return s
}

func (s *Service) Close() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, sub := range subs {
		s.client.Unsubscribe(sub)
	}
}

// OnMessage 注册新消息回调，在会话读协程里调用。
func (s *Service) OnMessage(fn func(protocol.ChatPayload)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Send 发送一条聊天。失败返回可直接展示给用户的错误（errx.MsgOf）。
func (s *Service) Send(roomID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > s.cfg.MaxContent {
		return ErrTooLong.WithData("max", s.cfg.MaxContent)
	}
	self := s.client.Self()
	msg := protocol.ChatPayload{
		RoomID:    roomID,
		SenderID:  self.UserID,
		Sender:    self.Username,
		Content:   content,
		Timestamp: s.now().UnixMilli(),
	}
	if err := s.client.Send(protocol.TypeMessage, msg); err != nil {
		return ErrSendFailed.WithData("room_id", roomID).WithCause(err)
	}
	s.mu.Lock()
	typed := s.selfTyped[roomID]
	s.mu.Unlock()
	if typed {
		_ = s.SetTyping(roomID, false)
	}
	return nil
}

// SetTyping 只在状态变化时发送。
func (s *Service) SetTyping(roomID string, typing bool) error {
	s.mu.Lock()
	if s.selfTyped[roomID] == typing {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	self := s.client.Self()
	err := s.client.Send(protocol.TypeTyping, protocol.TypingPayload{RoomID: roomID, UserID: self.UserID, IsTyping: typing})
	if err != nil {
		return err
	}
	s.mu.Lock()
	if typing {
		s.selfTyped[roomID] = true
	} else {
		delete(s.selfTyped, roomID)
	}
	s.mu.Unlock()
	return nil
}

// History 返回房间最近的消息，旧的在前。
func (s *Service) History(roomID string) []protocol.ChatPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.ChatPayload(nil), s.history[roomID]...)
}

// Typing 返回房间里正在输入且未过期的其他用户。
func (s *Service) Typing(roomID string) []int64 {
	now := s.now()
	self := s.client.Self().UserID
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int64
	for uid, at := range s.typing[roomID] {
		if uid == self {
			continue
		}
		if now.Sub(at) > s.cfg.TypingTTL {
			delete(s.typing[roomID], uid)
			continue
		}
		out = append(out, uid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Service) onMessage(env protocol.Envelope) {
	var msg protocol.ChatPayload
	if err := env.Bind(&msg); err != nil {
		s.log.Warn("bad chat message", zap.Error(err))
		return
	}
	s.mu.Lock()
	if msg.ID != "" {
		if _, dup := s.seen[msg.ID]; dup {
			s.mu.Unlock()
			return
		}
		s.seen[msg.ID] = struct{}{}
	}
	h := append(s.history[msg.RoomID], msg)
	if over := len(h) - s.cfg.HistorySize; over > 0 {
		for _, old := range h[:over] {
			delete(s.seen, old.ID)
		}
		h = append([]protocol.ChatPayload(nil), h[over:]...)
	}
	s.history[msg.RoomID] = h
	if m := s.typing[msg.RoomID]; m != nil {
		delete(m, msg.SenderID)
	}
	listeners := append(([]func(protocol.ChatPayload))(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(msg)
	}
}

func (s *Service) onTyping(env protocol.Envelope) {
	var p protocol.TypingPayload
	if err := env.Bind(&p); err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.typing[p.RoomID]
	if !p.IsTyping {
		delete(m, p.UserID)
		return
	}
	if m == nil {
		m = make(map[int64]time.Time)
		s.typing[p.RoomID] = m
	}
	m[p.UserID] = s.now()
}

func (s *Service) onLeft(env protocol.Envelope) {
	var p protocol.RoomPayload
	if err := env.Bind(&p); err != nil {
		return
	}
	s.mu.Lock()
	delete(s.typing, p.RoomID)
	delete(s.selfTyped, p.RoomID)
	s.mu.Unlock()
}
