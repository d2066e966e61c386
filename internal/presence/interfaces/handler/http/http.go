package http

import (
	"strings"

	"github.com/gin-gonic/gin"

	"LandVerse/internal/presence/app"
	"LandVerse/internal/protocol"
	"LandVerse/internal/shared/security"
	transporthttp "LandVerse/internal/shared/transport/http"
	"LandVerse/modules/kit/errx"
	"LandVerse/modules/kit/logx"
)

type HttpHandler struct {
	svc *app.PresenceService
	// devToken 只在开发环境打开
	devToken bool
	log      logx.Logger
}

func NewHttpHandler(svc *app.PresenceService, devToken bool, l logx.Logger) *HttpHandler {
	return &HttpHandler{svc: svc, devToken: devToken, log: logx.OrNop(l)}
}

func (h *HttpHandler) RegisterRoutes(group *gin.RouterGroup) {
	api := group.Group("/api")
	api.GET("/rooms", h.rooms)
	api.GET("/rooms/:room_id/members", h.members)
	if h.devToken {
		api.POST("/dev/token", h.issueDevToken)
	}
}

type roomsResp struct {
	Rooms  []string `json:"rooms"`
	Online int      `json:"online"`
}

type membersResp struct {
	RoomID  string              `json:"room_id"`
	Members []protocol.Member   `json:"members"`
	Live    []protocol.LivePeer `json:"live"`
}

type devTokenReq struct {
	UserID   int64  `json:"user_id" binding:"required,min=1"`
	Username string `json:"username" binding:"required"`
}

type devTokenResp struct {
	Token string `json:"token"`
}

func (h *HttpHandler) rooms(c *gin.Context) {
	rooms, err := h.svc.Rooms(c.Request.Context())
	if err != nil {
		transporthttp.Fail(c, h.log, err)
		return
	}
	transporthttp.OK(c, roomsResp{Rooms: rooms, Online: h.svc.Online()})
}

func (h *HttpHandler) members(c *gin.Context) {
	roomID := c.Param("room_id")
	reply, err := h.svc.Members(c.Request.Context(), roomID)
	if err != nil {
		transporthttp.Fail(c, h.log, err)
		return
	}
	resp := membersResp{RoomID: roomID, Members: reply.Members, Live: reply.Broadcaster}
	if resp.Members == nil {
		resp.Members = []protocol.Member{}
	}
	if resp.Live == nil {
		resp.Live = []protocol.LivePeer{}
	}
	transporthttp.OK(c, resp)
}

func (h *HttpHandler) issueDevToken(c *gin.Context) {
	var req devTokenReq
	if err := c.ShouldBindJSON(&req); err != nil {
		transporthttp.Fail(c, h.log, errx.ErrInvalidParam.WithMsg("参数有误").WithCause(err))
		return
	}
	token, err := security.Award(req.UserID, strings.TrimSpace(req.Username))
	if err != nil {
		transporthttp.Fail(c, h.log, errx.ErrInternal.WithData("uid", req.UserID).WithCause(err))
		return
	}
	transporthttp.OK(c, devTokenResp{Token: token})
}
