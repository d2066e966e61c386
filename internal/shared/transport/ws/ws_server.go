package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"LandVerse/internal/protocol"
	"LandVerse/internal/shared/security"
	"LandVerse/internal/shared/utils"
	"LandVerse/modules/kit/errx"
	"LandVerse/modules/kit/logx"
)

type Options struct {
	// Sealed 为 true 时先下发握手密钥，之后所有帧都是 AES-CBC + gzip 的二进制帧。
	Sealed       bool
	OutBuffer    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxMessage   int64
}

func (o Options) withDefaults() Options {
	if o.OutBuffer <= 0 {
		o.OutBuffer = 256
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.MaxMessage <= 0 {
		o.MaxMessage = 64 << 10
	}
	return o
}

type outFrame struct {
	msgType    int
	data       []byte
	closeAfter bool
}

// WsServer 负责一条连接的读写两个协程。
type WsServer struct {
	id       string
	ident    Identity
	conn     *websocket.Conn
	router   *Router
	opts     Options
	outChan  chan outFrame
	property map[string]any
	sync.RWMutex
	done      chan struct{}
	closeOnce sync.Once
	kickOnce  sync.Once
	log       logx.Logger
}

func NewWsServer(wsConn *websocket.Conn, ident Identity, opts Options, l logx.Logger) *WsServer {
	opts = opts.withDefaults()
	id := uuid.NewString()
	return &WsServer{
		id:       id,
		ident:    ident,
		conn:     wsConn,
		opts:     opts,
		outChan:  make(chan outFrame, opts.OutBuffer),
		property: make(map[string]any),
		done:     make(chan struct{}),
		log:      logx.Named(logx.OrNop(l), "ws"),
	}
}

var _ Conn = (*WsServer)(nil)

func (s *WsServer) Router(router *Router) {
	s.router = router
}

func (s *WsServer) ID() string {
	return s.id
}

func (s *WsServer) Identity() Identity {
	return s.ident
}

func (s *WsServer) SetProperty(key string, value any) {
	s.Lock()
	defer s.Unlock()
	s.property[key] = value
}

func (s *WsServer) GetProperty(key string) any {
	s.RLock()
	defer s.RUnlock()
	return s.property[key]
}

func (s *WsServer) RemoveProperty(key string) {
	s.Lock()
	defer s.Unlock()
	delete(s.property, key)
}

func (s *WsServer) Addr() string {
	return s.conn.RemoteAddr().String()
}

func (s *WsServer) Push(msgType string, payload any) error {
	f, err := s.frame(msgType, payload)
	if err != nil {
		s.log.Error("ws_server encode msg", zap.String("type", msgType), zap.Error(err))
		return err
	}
	return s.enqueue(f)
}

func (s *WsServer) Kick(msgType string, payload any) {
	s.kickOnce.Do(func() {
		f, err := s.frame(msgType, payload)
		if err != nil {
			s.Close()
			return
		}
		f.closeAfter = true
		if err := s.enqueue(f); err != nil {
			s.Close()
		}
	})
}

func (s *WsServer) enqueue(f outFrame) error {
	select {
	case <-s.done:
		return ErrConnClosed
	default:
	}
	select {
	case s.outChan <- f:
		return nil
	case <-s.done:
		return ErrConnClosed
	default:
		s.log.Warn("ws_server 发送队列已满，断开连接", zap.String("conn_id", s.id), zap.Int64("uid", s.ident.UserID))
		s.Close()
		return ErrSlowConsumer
	}
}

func (s *WsServer) frame(msgType string, payload any) (outFrame, error) {
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		return outFrame{}, err
	}
	key, _ := s.GetProperty(SecretKey).(string)
	if key == "" {
		return outFrame{msgType: websocket.TextMessage, data: data}, nil
	}
	sealed, err := security.Seal(data, []byte(key))
	if err != nil {
		return outFrame{}, fmt.Errorf("seal %s: %w", msgType, err)
	}
	// 压缩后的密文是二进制字节流，必须走 BinaryMessage，不能走 TextMessage
	return outFrame{msgType: websocket.BinaryMessage, data: sealed}, nil
}

// Run 先完成握手，再启动读写协程。
func (s *WsServer) Run() error {
	if err := s.handshake(); err != nil {
		s.Close()
		return err
	}
	s.start()
	return nil
}

func (s *WsServer) start() {
	go s.readMsgLoop()
	go s.writeMsgLoop()
}

func (s *WsServer) readMsgLoop() {
	defer func() {
		if err := recover(); err != nil {
			s.log.Error("ws readMsgLoop panic", zap.String("err", fmt.Sprintf("%v", err)))
		}
		s.Close()
	}()

	s.conn.SetReadLimit(s.opts.MaxMessage)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("ws_server read msg", zap.String("conn_id", s.id), zap.Error(err))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))

		plain, err := s.open(mt, data)
		if err != nil {
			s.log.Warn("ws_server 解密失败", zap.String("conn_id", s.id), zap.Error(err))
			continue
		}
		env, err := protocol.Decode(plain)
		if err != nil {
			_ = s.Push(protocol.TypeError, protocol.ErrorPayload{Code: string(errx.CodeInvalidParam), Msg: "报文格式错误"})
			continue
		}

		if env.Type == protocol.TypeHeartbeat {
			// 回复客户端心跳
			h := decodeHeartbeat(env.Payload)
			h.STime = time.Now().UnixMilli()
			_ = s.Push(protocol.TypeHeartbeat, h)
			continue
		}
		if s.router != nil {
			s.router.Dispatch(s, env)
		}
	}
}

func (s *WsServer) open(mt int, data []byte) ([]byte, error) {
	key, _ := s.GetProperty(SecretKey).(string)
	if key == "" {
		return data, nil
	}
	if mt != websocket.BinaryMessage {
		return nil, errors.New("sealed connection got a text frame")
	}
	return security.Open(data, []byte(key))
}

func decodeHeartbeat(raw json.RawMessage) protocol.HeartbeatPayload {
	var h protocol.HeartbeatPayload
	if len(raw) == 0 {
		return h
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return h
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &h,
	})
	if err != nil {
		return h
	}
	_ = dec.Decode(m)
	return h
}

func (s *WsServer) writeMsgLoop() {
	for {
		select {
		case f := <-s.outChan:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := s.conn.WriteMessage(f.msgType, f.data); err != nil {
				s.log.Warn("ws_server write", zap.String("conn_id", s.id), zap.Error(err))
				s.Close()
				return
			}
			if f.closeAfter {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.opts.WriteTimeout))
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *WsServer) Close() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
		close(s.done)
	})
}

func (s *WsServer) Done() <-chan struct{} {
	return s.done
}

// handshake 在读写协程启动前同步写出，此时没有并发写。
func (s *WsServer) handshake() error {
	if !s.opts.Sealed {
		return nil
	}
	secretKey := utils.RandSeq(16)
	data, err := protocol.Encode(protocol.TypeHandshake, protocol.HandshakePayload{Key: secretKey})
	if err != nil {
		return err
	}
	zipData, err := security.Zip(data)
	if err != nil {
		return err
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, zipData); err != nil {
		return fmt.Errorf("write handshake: %w", err)
	}
	s.SetProperty(SecretKey, secretKey)
	return nil
}
