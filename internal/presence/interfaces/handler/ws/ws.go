package ws

import (
	"context"

	"LandVerse/internal/presence/app"
	"LandVerse/internal/protocol"
	"LandVerse/internal/shared/transport"
	"LandVerse/internal/shared/transport/ws"
	"LandVerse/modules/kit/errx"
)

type WsHandler struct {
	svc *app.PresenceService
}

func NewWsHandler(svc *app.PresenceService) *WsHandler {
	return &WsHandler{svc: svc}
}

func (h *WsHandler) RegisterRoutes(r *ws.Router) {
	r.Handle(protocol.TypeJoinRoom, h.joinRoom)
	r.Handle(protocol.TypeLeaveRoom, h.leaveRoom)
	r.Handle(protocol.TypeLocation, h.location)
	r.Handle(protocol.TypeMessage, h.message)
	r.Handle(protocol.TypeTyping, h.typing)
	r.Handle(protocol.TypeLiveStatus, h.liveStatus)
	r.Handle(protocol.TypeLiveStart, h.liveStart)
	r.Handle(protocol.TypeLiveStop, h.liveStop)
	r.Handle(protocol.TypeLiveOffer, h.signal)
	r.Handle(protocol.TypeLiveAnswer, h.signal)
	r.Handle(protocol.TypeLiveICE, h.signal)
}

func bind(req *ws.Request, dst any) error {
	if err := req.Bind(dst); err != nil {
		return errx.ErrInvalidParam.WithMsg("参数有误").WithCause(err)
	}
	return nil
}

func (h *WsHandler) joinRoom(ctx context.Context, req *ws.Request) error {
	var p protocol.RoomPayload
	if err := bind(req, &p); err != nil {
		return err
	}
	transport.SetRoom(ctx, p.RoomID)
	return h.svc.Join(ctx, req.Conn, p.RoomID)
}

func (h *WsHandler) leaveRoom(ctx context.Context, req *ws.Request) error {
	var p protocol.RoomPayload
	if err := bind(req, &p); err != nil {
		return err
	}
	transport.SetRoom(ctx, p.RoomID)
	return h.svc.Leave(ctx, req.Conn, p.RoomID)
}

func (h *WsHandler) location(ctx context.Context, req *ws.Request) error {
	var p protocol.LocationPayload
	if err := bind(req, &p); err != nil {
		return err
	}
	transport.SetRoom(ctx, p.RoomID)
	return h.svc.Move(ctx, req.Conn, p.RoomID, p.X, p.Y)
}

func (h *WsHandler) message(ctx context.Context, req *ws.Request) error {
	var p protocol.ChatPayload
	if err := bind(req, &p); err != nil {
		return err
	}
	transport.SetRoom(ctx, p.RoomID)
	return h.svc.Chat(ctx, req.Conn, p.RoomID, p.Content)
}

func (h *WsHandler) typing(ctx context.Context, req *ws.Request) error {
	var p protocol.TypingPayload
	if err := bind(req, &p); err != nil {
		return err
	}
	transport.SetRoom(ctx, p.RoomID)
	return h.svc.Typing(ctx, req.Conn, p.RoomID, p.IsTyping)
}

func (h *WsHandler) liveStatus(ctx context.Context, req *ws.Request) error {
	var p protocol.RoomPayload
	if err := bind(req, &p); err != nil {
		return err
	}
	transport.SetRoom(ctx, p.RoomID)
	return h.svc.LiveStatus(ctx, req.Conn, p.RoomID)
}

func (h *WsHandler) liveStart(ctx context.Context, req *ws.Request) error {
	var p protocol.LiveStartPayload
	if err := bind(req, &p); err != nil {
		return err
	}
	transport.SetRoom(ctx, p.RoomID)
	return h.svc.LiveStart(ctx, req.Conn, p.RoomID, p.MediaType)
}

func (h *WsHandler) liveStop(ctx context.Context, req *ws.Request) error {
	var p protocol.RoomPayload
	if err := bind(req, &p); err != nil {
		return err
	}
	transport.SetRoom(ctx, p.RoomID)
	return h.svc.LiveStop(ctx, req.Conn, p.RoomID)
}

// signal 三种信令共用一个处理器，按 type 原样转发。
func (h *WsHandler) signal(ctx context.Context, req *ws.Request) error {
	var p protocol.SignalPayload
	if err := bind(req, &p); err != nil {
		return err
	}
	transport.SetRoom(ctx, p.RoomID)
	return h.svc.Signal(ctx, req.Conn, req.Env.Type, p.RoomID, p.TargetUserID, p.Payload)
}
