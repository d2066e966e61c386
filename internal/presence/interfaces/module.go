package interfaces

import (
	"time"

	"github.com/gin-gonic/gin"

	presenceactor "LandVerse/internal/presence/actor"
	"LandVerse/internal/presence/app"
	httphandler "LandVerse/internal/presence/interfaces/handler/http"
	wshandler "LandVerse/internal/presence/interfaces/handler/ws"
	"LandVerse/internal/shared/session"
	"LandVerse/internal/shared/transport/ws"
	"LandVerse/modules/kit/logx"
)

type Options struct {
	AskTimeout time.Duration
	Service    app.Config
	DevToken   bool
}

// Module 装配房间 actor、presence 服务和两类入口。
type Module struct {
	runtime *presenceactor.Runtime
	svc     *app.PresenceService
	ws      *wshandler.WsHandler
	http    *httphandler.HttpHandler
}

func New(opts Options, sess session.Manager, l logx.Logger) *Module {
	rt := presenceactor.NewRuntime(opts.AskTimeout)
	svc := app.NewPresenceService(rt, sess, opts.Service, l)
	return &Module{
		runtime: rt,
		svc:     svc,
		ws:      wshandler.NewWsHandler(svc),
		http:    httphandler.NewHttpHandler(svc, opts.DevToken, l),
	}
}

func (m *Module) Register(r *ws.Router) {
	m.ws.RegisterRoutes(r)
}

func (m *Module) RegisterHTTP(group *gin.RouterGroup) {
	m.http.RegisterRoutes(group)
}

// Hooks 接到 ws.Server 上，连接建立和断开时维护会话与房间。
func (m *Module) Hooks() ws.Hooks {
	return ws.Hooks{
		OnConnect: m.svc.OnConnect,
		OnClose:   m.svc.OnClose,
	}
}

func (m *Module) Service() *app.PresenceService {
	return m.svc
}

func (m *Module) Shutdown() {
	m.runtime.Shutdown()
}
