// worldbot 是无头客户端：连上服务、进入一块地的房间、随机走动，可选开播。
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"LandVerse/internal/client/chat"
	"LandVerse/internal/client/chunkstore"
	"LandVerse/internal/client/conn"
	"LandVerse/internal/client/landapi"
	"LandVerse/internal/client/live"
	"LandVerse/internal/client/live/pionpeer"
	"LandVerse/internal/client/presence"
	"LandVerse/internal/client/world"
	"LandVerse/internal/protocol"
	"LandVerse/internal/shared/logs"
	"LandVerse/internal/shared/serverconfig"
	"LandVerse/modules/kit/logx"
)

type options struct {
	api      string
	token    string
	uid      int64
	name     string
	x, y     int
	steps    int
	interval time.Duration
	live     string
	sealed   bool
	say      string
	stun     string
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.api, "api", "http://127.0.0.1:8088", "服务地址")
	flag.StringVar(&o.token, "token", "", "bearer token，为空时向开发接口申请")
	flag.Int64Var(&o.uid, "uid", 1000, "用户 id")
	flag.StringVar(&o.name, "name", "worldbot", "用户名")
	flag.IntVar(&o.x, "x", 0, "起始地块 x")
	flag.IntVar(&o.y, "y", 0, "起始地块 y")
	flag.IntVar(&o.steps, "steps", 0, "走动步数，0 表示一直走")
	flag.DurationVar(&o.interval, "interval", 500*time.Millisecond, "每步间隔")
	flag.StringVar(&o.live, "live", "", "开播类型 audio / video，为空只观看")
	flag.BoolVar(&o.sealed, "sealed", false, "服务端开启了加密握手")
	flag.StringVar(&o.say, "say", "hello", "进房后发一条消息，为空不发")
	flag.StringVar(&o.stun, "stun", "stun:stun.l.google.com:19302", "ICE 服务器，逗号分隔")
	flag.Parse()
	return o
}

func wsURL(api string) string {
	switch {
	case strings.HasPrefix(api, "https://"):
		return "wss://" + strings.TrimPrefix(api, "https://") + "/ws"
	case strings.HasPrefix(api, "http://"):
		return "ws://" + strings.TrimPrefix(api, "http://") + "/ws"
	}
	return api + "/ws"
}

func main() {
	o := parseFlags()
	if err := logs.Init("worldbot", serverconfig.LogConfig{Level: "info"}); err != nil {
		panic(err)
	}
	defer logs.Sync()
	log := logx.NewZapLogger(logs.Logger())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, log); err != nil {
		logs.Error("worldbot 退出", zap.Error(err))
	}
}

func run(ctx context.Context, o options, log logx.Logger) error {
	api, err := landapi.New(o.api, landapi.WithLogger(log))
	if err != nil {
		return err
	}
	token := o.token
	if token == "" {
		if token, err = api.DevToken(ctx, o.uid, o.name); err != nil {
			return fmt.Errorf("dev token: %w", err)
		}
	}
	api.SetToken(token)

	cfg := conn.DefaultConfig(wsURL(o.api))
	cfg.Sealed = o.sealed
	sess := conn.NewSession(cfg, nil, log)
	if err := sess.Connect(ctx, conn.Credential{Token: token, Identity: conn.Identity{UserID: o.uid, Username: o.name}}); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer sess.Disconnect()

	store := chunkstore.New(chunkstore.Config{MaxCached: 256}, api, log)
	defer store.Close()
	ctl := world.NewController(world.DefaultConfig(), store, api, sess, log)
	defer ctl.Close()
	ctl.Resize(1280, 720)
	ctl.JumpTo(float64(o.x)+0.5, float64(o.y)+0.5)

	tracker := presence.NewTracker(sess, presence.DefaultConfig(), log)
	defer tracker.Close()
	chats := chat.NewService(sess, chat.Config{}, log)
	defer chats.Close()
	chats.OnMessage(func(m protocol.ChatPayload) {
		logs.Info("chat", zap.String("room", m.RoomID), zap.String("from", m.Sender), zap.String("content", m.Content))
	})

	var iceServers []string
	for _, s := range strings.Split(o.stun, ",") {
		if s = strings.TrimSpace(s); s != "" {
			iceServers = append(iceServers, s)
		}
	}
	peers, err := pionpeer.NewFactory(iceServers...)
	if err != nil {
		return fmt.Errorf("webrtc: %w", err)
	}
	relay := live.NewRelay(sess, pionpeer.SampleProvider{StreamID: o.name}, peers,
		live.NotifierFunc(func(msg string) { logs.Warn("live", zap.String("msg", msg)) }), log)
	defer relay.Close()

	room := protocol.LandRoom(o.x, o.y)
	if err := tracker.JoinRoom(room); err != nil {
		return fmt.Errorf("join %s: %w", room, err)
	}
	if sel, err := ctl.Select(ctx, o.x, o.y); err == nil && sel.Owner != nil {
		logs.Info("所在地块", zap.String("room", room), zap.String("owner", sel.Owner.OwnerUsername))
	}
	if o.say != "" {
		if err := chats.Send(room, o.say); err != nil {
			logs.Warn("chat send", zap.Error(err))
		}
	}
	if o.live != "" {
		if err := relay.GoLive(ctx, room, protocol.MediaKind(o.live)); err != nil {
			return fmt.Errorf("go live: %w", err)
		}
	} else if err := relay.Watch(room); err != nil {
		logs.Warn("watch", zap.Error(err))
	}

	return wander(ctx, o, ctl, tracker)
}

// wander 在起始地块附近随机走动，位置通过 tracker 节流上报。
func wander(ctx context.Context, o options, ctl *world.Controller, tracker *presence.Tracker) error {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	x, y := o.x, o.y
	for step := 0; o.steps == 0 || step < o.steps; step++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		x += rand.IntN(3) - 1
		y += rand.IntN(3) - 1
		if err := tracker.UpdateLocalPosition(x, y); err != nil {
			logs.Warn("update position", zap.Error(err))
		}
		tracker.Tick()
		ctl.JumpTo(float64(x)+0.5, float64(y)+0.5)
		if step%20 == 0 {
			st := ctl.VisibleChunks()
			logs.Info("wander", zap.Int("x", x), zap.Int("y", y), zap.Int("visible_chunks", len(st)), zap.Int("avatars", len(tracker.Avatars())))
		}
	}
	return nil
}
