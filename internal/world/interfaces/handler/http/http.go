package http

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"LandVerse/internal/protocol"
	transporthttp "LandVerse/internal/shared/transport/http"
	"LandVerse/internal/world/app"
	"LandVerse/modules/kit/errx"
	"LandVerse/modules/kit/logx"
)

type HttpHandler struct {
	svc *app.WorldService
	log logx.Logger
}

func NewHttpHandler(svc *app.WorldService, l logx.Logger) *HttpHandler {
	return &HttpHandler{svc: svc, log: logx.OrNop(l)}
}

func (h *HttpHandler) RegisterRoutes(group *gin.RouterGroup) {
	api := group.Group("/api")
	api.GET("/chunk", h.chunk)
	api.POST("/chunks/batch", h.batch)
	api.GET("/land", h.land)
	api.GET("/owners/:owner_id/lands", h.ownerLands)
}

// 坐标可以是 0，用指针区分缺省
type chunkQuery struct {
	CX   *int `form:"cx" binding:"required"`
	CY   *int `form:"cy" binding:"required"`
	Size int  `form:"size"`
}

type landQuery struct {
	X *int `form:"x" binding:"required"`
	Y *int `form:"y" binding:"required"`
}

type batchReq struct {
	Coords    []protocol.ChunkCoord `json:"coords" binding:"required"`
	ChunkSize int                   `json:"chunk_size"`
}

func badParam(err error) error {
	return errx.ErrInvalidParam.WithMsg("参数有误").WithCause(err)
}

func (h *HttpHandler) chunk(c *gin.Context) {
	var q chunkQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		transporthttp.Fail(c, h.log, badParam(err))
		return
	}
	if q.Size == 0 {
		q.Size = protocol.DefaultChunkSize
	}
	ch, err := h.svc.Chunk(c.Request.Context(), protocol.ChunkCoord{CX: *q.CX, CY: *q.CY}, q.Size)
	if err != nil {
		transporthttp.Fail(c, h.log, err)
		return
	}
	transporthttp.OK(c, ch)
}

func (h *HttpHandler) batch(c *gin.Context) {
	var req batchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		transporthttp.Fail(c, h.log, badParam(err))
		return
	}
	if req.ChunkSize == 0 {
		req.ChunkSize = protocol.DefaultChunkSize
	}
	chunks, err := h.svc.Batch(c.Request.Context(), req.Coords, req.ChunkSize)
	if err != nil {
		transporthttp.Fail(c, h.log, err)
		return
	}
	transporthttp.OK(c, protocol.ChunkBatchResponse{Chunks: chunks})
}

func (h *HttpHandler) land(c *gin.Context) {
	var q landQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		transporthttp.Fail(c, h.log, badParam(err))
		return
	}
	owner, err := h.svc.LandOwner(c.Request.Context(), *q.X, *q.Y)
	if err != nil {
		transporthttp.Fail(c, h.log, err)
		return
	}
	transporthttp.OK(c, owner)
}

func (h *HttpHandler) ownerLands(c *gin.Context) {
	ownerID, err := strconv.ParseInt(c.Param("owner_id"), 10, 64)
	if err != nil || ownerID <= 0 {
		transporthttp.Fail(c, h.log, errx.ErrInvalidParam.WithMsg("owner_id 非法").WithData("owner_id", c.Param("owner_id")))
		return
	}
	res, err := h.svc.OwnerLands(c.Request.Context(), ownerID)
	if err != nil {
		transporthttp.Fail(c, h.log, err)
		return
	}
	transporthttp.OK(c, res)
}
