package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	nethttp "net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	presenceapp "LandVerse/internal/presence/app"
	presence "LandVerse/internal/presence/interfaces"
	"LandVerse/internal/presence/interfaces/handler"
	"LandVerse/internal/protocol"
	"LandVerse/internal/shared/logs"
	"LandVerse/internal/shared/serverconfig"
	"LandVerse/internal/shared/session"
	rpc "LandVerse/internal/shared/transport/grpc"
	transporthttp "LandVerse/internal/shared/transport/http"
	"LandVerse/internal/shared/transport/ws"
	worldapp "LandVerse/internal/world/app"
	"LandVerse/internal/world/gen"
	"LandVerse/internal/world/infra/cache"
	"LandVerse/internal/world/infra/persistence"
	world "LandVerse/internal/world/interfaces"
	"LandVerse/modules/kit/logx"
)

func addr(host string, port int) string {
	if host == "" {
		host = "0.0.0.0"
	}
	return fmt.Sprintf("%s:%d", host, port)
}

func main() {
	cfgPath := flag.String("config", "", "配置文件路径，默认向上查找 configs/conf.yml")
	flag.Parse()

	// .env 不存在时忽略
	_ = godotenv.Load(".env")
	serverconfig.Load(*cfgPath, func(c serverconfig.Config) {
		logs.SetLevel(c.Log.Level)
	})
	conf := serverconfig.Snapshot()
	if err := logs.Init("landverse", conf.Log); err != nil {
		panic(err)
	}
	defer logs.Sync()
	if !conf.Dev {
		gin.SetMode(gin.ReleaseMode)
	}

	baseLogger := logx.NewZapLogger(logs.Logger())
	sessMgr := session.NewSessMgr()

	// 地块存储和区块缓存
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := persistence.Open(ctx, conf, logs.Logger())
	if err != nil {
		logs.Fatal("open land repository failed", zap.String("driver", conf.Storage.Driver), zap.Error(err))
	}
	defer func() {
		if err := closeRepo(); err != nil {
			logs.Warn("close land repository", zap.Error(err))
		}
	}()
	chunkCache, err := cache.NewChunkCache(conf.World.CacheMaxCost, conf.World.CacheTTL())
	if err != nil {
		logs.Fatal("create chunk cache failed", zap.Error(err))
	}
	defer chunkCache.Close()

	catalog := gen.DefaultCatalog()
	if conf.World.BiomeCatalog != "" {
		if catalog, err = gen.LoadCatalog(conf.World.BiomeCatalog); err != nil {
			logs.Fatal("load biome catalog failed", zap.String("path", conf.World.BiomeCatalog), zap.Error(err))
		}
	}

	worldModule := world.New(world.Options{
		Seed:    conf.World.Seed,
		Catalog: catalog,
		Service: worldapp.Config{ChunkSizes: conf.World.ChunkSizes, MaxBatch: conf.World.MaxBatch},
	}, repo, chunkCache, sessMgr, baseLogger)

	presenceModule := presence.New(presence.Options{
		AskTimeout: time.Duration(conf.PresenceServer.AskTimeoutMS) * time.Millisecond,
		Service:    presenceapp.DefaultConfig(),
		DevToken:   conf.Dev,
	}, sessMgr, baseLogger)
	defer presenceModule.Shutdown()

	// websocket 入口
	wsRouter := ws.NewRouter(baseLogger)
	wsRouter.Use(protocol.MustValidator())
	presenceModule.Register(wsRouter)
	wsServer := ws.NewServer(wsRouter, handler.JWTAuthenticator, presenceModule.Hooks(),
		ws.Options{Sealed: conf.PresenceServer.NeedSecret}, conf.PresenceServer.AllowOrigin, baseLogger)

	httpServer := transporthttp.NewHttpServer(addr(conf.PresenceServer.Host, conf.PresenceServer.Port),
		nil, conf.PresenceServer.AllowOrigin, baseLogger)
	worldModule.RegisterHTTP(httpServer.Group())
	presenceModule.RegisterHTTP(httpServer.Group())
	httpServer.Engine().GET("/ws", gin.WrapH(wsServer))

	// 地块事件 grpc 入口
	grpcAddr := addr(conf.LandEvents.Host, conf.LandEvents.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logs.Fatal("listen land events failed", zap.String("addr", grpcAddr), zap.Error(err))
	}
	grpcServer := rpc.NewServer(baseLogger)
	worldModule.RegisterGRPC(grpcServer)

	errCh := make(chan error, 2)
	go func() {
		logs.Info("http server start", zap.String("addr", addr(conf.PresenceServer.Host, conf.PresenceServer.Port)))
		if err := httpServer.Start(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			errCh <- fmt.Errorf("http server start failed: %w", err)
		}
	}()
	go func() {
		logs.Info("land events server start", zap.String("addr", grpcAddr))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("land events server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logs.Info("收到退出信号，准备优雅退出")
	case err := <-errCh:
		logs.Error("服务异常退出", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
}
