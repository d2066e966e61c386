// Package conn 是客户端唯一的 ws 会话：按 type 分发入站消息、断线重连、心跳。
package conn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"LandVerse/internal/protocol"
	"LandVerse/modules/kit/errx"
	"LandVerse/modules/kit/logx"
)

var (
	ErrNotOpen          = errx.NewBiz("CONN_NOT_OPEN", "连接未建立")
	ErrAlreadyConnected = errx.NewBiz("CONN_ALREADY_CONNECTED", "连接已存在")
	ErrNoCredential     = errx.NewBiz("CONN_NO_CREDENTIAL", "缺少登录凭证")
	ErrUnauthorized     = errx.NewBiz("CONN_UNAUTHORIZED", "凭证被拒绝")
	ErrHandshake        = errx.NewSys("CONN_HANDSHAKE", "握手失败")
	ErrAborted          = errx.NewBiz("CONN_ABORTED", "连接过程中被断开")
)

type State int

const (
	Disconnected State = iota
	Connecting
	Open
	Closing
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	default:
		return "disconnected"
	}
}

// Identity 是本地用户身份，信令和位置上报都要用。
type Identity struct {
	UserID   int64
	Username string
}

// Credential 是建立会话所需的凭证。
type Credential struct {
	Token string
	Identity
}

type Config struct {
	URL              string
	Sealed           bool
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	Heartbeat        time.Duration
	BackoffMin       time.Duration
	BackoffMax       time.Duration
}

func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadTimeout:      60 * time.Second,
		Heartbeat:        15 * time.Second,
		BackoffMin:       200 * time.Millisecond,
		BackoffMax:       5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig(c.URL)
	d.Sealed = c.Sealed
	if c.HandshakeTimeout > 0 {
		d.HandshakeTimeout = c.HandshakeTimeout
	}
	if c.WriteTimeout > 0 {
		d.WriteTimeout = c.WriteTimeout
	}
	if c.ReadTimeout > 0 {
		d.ReadTimeout = c.ReadTimeout
	}
	if c.Heartbeat > 0 {
		d.Heartbeat = c.Heartbeat
	}
	if c.BackoffMin > 0 {
		d.BackoffMin = c.BackoffMin
	}
	if c.BackoffMax > 0 {
		d.BackoffMax = c.BackoffMax
	}
	if d.BackoffMax < d.BackoffMin {
		d.BackoffMax = d.BackoffMin
	}
	return d
}

// Session 持有一条 ws 连接和订阅表。重连换新连接，订阅表保持不变；房间不会自动重进。
type Session struct {
	cfg    Config
	dialer Dialer
	log    logx.Logger

	mu       sync.Mutex
	state    State
	cred     *Credential
	self     Identity
	tr       Transport
	codec    frameCodec
	active   bool
	stop     chan struct{}
	done     chan struct{}
	handlers map[string][]handlerEntry
	nextID   uint64

	writeMu sync.Mutex
}

func NewSession(cfg Config, dialer Dialer, log logx.Logger) *Session {
	if dialer == nil {
		dialer = WSDialer{Dialer: websocket.Dialer{HandshakeTimeout: 5 * time.Second}}
	}
	return &Session{
		cfg:      cfg.withDefaults(),
		dialer:   dialer,
		log:      logx.OrNop(log),
		handlers: make(map[string][]handlerEntry),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Self() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

// Done 在后台循环退出后关闭；从未连接过时返回 nil。
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Connect 同步完成第一次拨号，成功后后台负责读消息和断线重连。
func (s *Session) Connect(ctx context.Context, cred Credential) error {
	if cred.Token == "" {
		return ErrNoCredential
	}

	s.mu.Lock()
	if s.active || s.state != Disconnected {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	c := cred
	s.cred = &c
	s.self = cred.Identity
	s.state = Connecting
	stop := make(chan struct{})
	s.stop = stop
	s.mu.Unlock()

	tr, cd, err := s.dial(ctx, cred)
	if err != nil {
		s.mu.Lock()
		s.state = Disconnected
		s.cred = nil
		s.stop = nil
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if s.cred == nil {
		s.state = Disconnected
		s.mu.Unlock()
		_ = tr.Close()
		return ErrAborted
	}
	s.tr = tr
	s.codec = cd
	s.state = Open
	s.active = true
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	s.log.Info("session connected", zap.String("url", s.cfg.URL), zap.Int64("user_id", cred.UserID))
	go s.run(tr, stop, done)
	return nil
}

// Disconnect 放弃凭证并关闭连接，之后不再重连。disconnected 事件由后台循环发出。
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.cred = nil
	tr := s.tr
	if s.state == Open {
		s.state = Closing
	}
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if tr != nil {
		s.writeMu.Lock()
		_ = tr.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		_ = tr.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		_ = tr.Close()
	}
}

// Send 只在 open 状态下发送，其他状态直接返回 ErrNotOpen，不排队。
func (s *Session) Send(eventType string, payload any) error {
	data, err := protocol.Encode(eventType, payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != Open || s.tr == nil {
		s.mu.Unlock()
		return ErrNotOpen.WithData("type", eventType)
	}
	tr, cd := s.tr, s.codec
	s.mu.Unlock()

	mt, frame, err := cd.encode(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = tr.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := tr.WriteMessage(mt, frame); err != nil {
		return fmt.Errorf("write %s: %w", eventType, err)
	}
	return nil
}

func (s *Session) dial(ctx context.Context, cred Credential) (Transport, frameCodec, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cred.Token)
	tr, err := s.dialer.Dial(ctx, s.cfg.URL, header)
	if err != nil {
		return nil, frameCodec{}, err
	}
	if !s.cfg.Sealed {
		return tr, frameCodec{}, nil
	}
	cd, err := readHandshake(tr, s.cfg.HandshakeTimeout)
	if err != nil {
		_ = tr.Close()
		return nil, frameCodec{}, err
	}
	return tr, cd, nil
}

func (s *Session) run(tr Transport, stop <-chan struct{}, done chan struct{}) {
	defer close(done)
	defer func() {
		s.mu.Lock()
		s.active = false
		s.mu.Unlock()
	}()

	s.dispatch(protocol.Envelope{Type: protocol.EventConnected})
	backoff := s.cfg.BackoffMin
	for {
		hbStop := make(chan struct{})
		go s.heartbeat(hbStop)
		err := s.readLoop(tr)
		close(hbStop)
		_ = tr.Close()

		s.mu.Lock()
		if s.tr == tr {
			s.tr = nil
		}
		s.codec = frameCodec{}
		s.state = Disconnected
		keep := s.cred != nil
		s.mu.Unlock()

		s.log.Info("session disconnected", zap.Bool("reconnect", keep), zap.Error(err))
		s.dispatch(protocol.Envelope{Type: protocol.EventDisconnected})
		if !keep {
			return
		}

		next, ok := s.redial(stop, &backoff)
		if !ok {
			return
		}
		tr = next
		backoff = s.cfg.BackoffMin
		s.dispatch(protocol.Envelope{Type: protocol.EventReconnected})
	}
}

// redial 按指数退避重拨，直到成功、凭证被放弃或被拒绝。
func (s *Session) redial(stop <-chan struct{}, backoff *time.Duration) (Transport, bool) {
	for {
		select {
		case <-stop:
			return nil, false
		case <-time.After(*backoff):
		}
		*backoff = min(*backoff*2, s.cfg.BackoffMax)

		s.mu.Lock()
		if s.cred == nil {
			s.mu.Unlock()
			return nil, false
		}
		cred := *s.cred
		s.state = Connecting
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HandshakeTimeout)
		tr, cd, err := s.dial(ctx, cred)
		cancel()

		s.mu.Lock()
		if err != nil {
			s.state = Disconnected
			if errors.Is(err, ErrUnauthorized) {
				s.cred = nil
				s.mu.Unlock()
				logx.ReportErrorWithLoggerContext(context.Background(), s.log, "session redial", err)
				return nil, false
			}
			s.mu.Unlock()
			s.log.Debug("session redial failed", zap.Duration("next_backoff", *backoff), zap.Error(err))
			continue
		}
		if s.cred == nil {
			s.state = Disconnected
			s.mu.Unlock()
			_ = tr.Close()
			return nil, false
		}
		s.tr = tr
		s.codec = cd
		s.state = Open
		s.mu.Unlock()
		s.log.Info("session reconnected", zap.String("url", s.cfg.URL))
		return tr, true
	}
}

func (s *Session) readLoop(tr Transport) error {
	for {
		_ = tr.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		mt, data, err := tr.ReadMessage()
		if err != nil {
			return err
		}

		s.mu.Lock()
		cd := s.codec
		s.mu.Unlock()

		plain, err := cd.decode(mt, data)
		if err != nil {
			s.log.Warn("drop undecodable frame", zap.Error(err))
			continue
		}
		env, err := protocol.Decode(plain)
		if err != nil {
			s.log.Warn("drop malformed envelope", zap.Error(err))
			continue
		}

		switch env.Type {
		case protocol.TypeHeartbeat:
			continue
		case protocol.TypeSessionKicked:
			// 同一用户在别处登录，重连只会互相踢
			s.mu.Lock()
			s.cred = nil
			s.mu.Unlock()
		}
		s.dispatch(env)
	}
}

func (s *Session) heartbeat(stop <-chan struct{}) {
	t := time.NewTicker(s.cfg.Heartbeat)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-t.C:
			if err := s.Send(protocol.TypeHeartbeat, protocol.HeartbeatPayload{CTime: now.UnixMilli()}); err != nil {
				s.log.Debug("heartbeat send failed", zap.Error(err))
			}
		}
	}
}
