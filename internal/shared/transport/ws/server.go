package ws

import (
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"LandVerse/modules/kit/logx"
)

// Authenticator 在升级前校验请求凭证。
type Authenticator func(r *http.Request) (Identity, error)

// Hooks 在连接建立后、关闭后被调用。OnConnect 在读协程启动前执行。
type Hooks struct {
	OnConnect func(conn Conn)
	OnClose   func(conn Conn)
}

type Server struct {
	router   *Router
	auth     Authenticator
	hooks    Hooks
	opts     Options
	upgrader websocket.Upgrader
	log      logx.Logger
}

// NewServer allowOrigin 为空时允许所有来源。
func NewServer(r *Router, auth Authenticator, hooks Hooks, opts Options, allowOrigin []string, l logx.Logger) *Server {
	s := &Server{
		router: r,
		auth:   auth,
		hooks:  hooks,
		opts:   opts,
		log:    logx.OrNop(l),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(req *http.Request) bool {
			if len(allowOrigin) == 0 {
				return true
			}
			return slices.Contains(allowOrigin, req.Header.Get("Origin"))
		},
	}
	return s
}

func (s *Server) ServeHTTP(resp http.ResponseWriter, req *http.Request) {
	var ident Identity
	if s.auth != nil {
		id, err := s.auth(req)
		if err != nil {
			s.log.Warn("websocket 鉴权失败", zap.String("addr", req.RemoteAddr), zap.Error(err))
			http.Error(resp, "unauthorized", http.StatusUnauthorized)
			return
		}
		ident = id
	}

	wsConn, err := s.upgrader.Upgrade(resp, req, nil)
	if err != nil {
		s.log.Error("websocket upgrade error", zap.Error(err))
		return
	}

	conn := NewWsServer(wsConn, ident, s.opts, s.log)
	conn.Router(s.router)
	if err := conn.handshake(); err != nil {
		s.log.Error("websocket handshake error", zap.Error(err))
		conn.Close()
		return
	}
	s.log.Info("websocket 连接建立", zap.String("conn_id", conn.ID()), zap.Int64("uid", ident.UserID))

	if s.hooks.OnConnect != nil {
		s.hooks.OnConnect(conn)
	}
	conn.start()
	if s.hooks.OnClose != nil {
		go func() {
			<-conn.Done()
			s.hooks.OnClose(conn)
		}()
	}
}
