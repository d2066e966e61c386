package interfaces

import (
	"github.com/gin-gonic/gin"
	gogrpc "google.golang.org/grpc"

	rpc "LandVerse/internal/shared/transport/grpc"
	"LandVerse/internal/world/app"
	"LandVerse/internal/world/app/port"
	"LandVerse/internal/world/gen"
	grpchandler "LandVerse/internal/world/interfaces/handler/grpc"
	httphandler "LandVerse/internal/world/interfaces/handler/http"
	"LandVerse/modules/kit/logx"
)

type Options struct {
	Seed    int64
	Catalog *gen.Catalog
	Service app.Config
}

// Module 装配区块生成、地块查询和地块事件入口。
type Module struct {
	svc    *app.WorldService
	http   *httphandler.HttpHandler
	events *grpchandler.LandEvents
}

// New cache 可以为 nil，notifier 一般是 session.Manager。
func New(opts Options, repo port.LandRepository, cache port.ChunkCache, notifier port.Notifier, l logx.Logger) *Module {
	g := gen.NewGenerator(opts.Seed, opts.Catalog)
	svc := app.NewWorldService(opts.Service, g, repo, cache, notifier, l)
	return &Module{
		svc:    svc,
		http:   httphandler.NewHttpHandler(svc, l),
		events: grpchandler.NewLandEvents(svc, l),
	}
}

func (m *Module) RegisterHTTP(group *gin.RouterGroup) {
	m.http.RegisterRoutes(group)
}

func (m *Module) RegisterGRPC(s gogrpc.ServiceRegistrar) {
	rpc.RegisterLandEventsServer(s, m.events)
}

func (m *Module) Service() *app.WorldService {
	return m.svc
}
