package http

import (
	nethttp "net/http"

	"github.com/gin-gonic/gin"

	"LandVerse/internal/shared/transport"
	"LandVerse/modules/kit/errx"
	"LandVerse/modules/kit/logx"
)

// ErrorBody 是所有失败响应的格式。
type ErrorBody struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func OK(c *gin.Context, data any) {
	c.JSON(nethttp.StatusOK, data)
}

// Fail 打一次错误日志，按业务码选 HTTP 状态，系统错误只回兜底文案。
func Fail(c *gin.Context, l logx.Logger, err error) {
	ctx := c.Request.Context()
	logx.ReportErrorWithLoggerContext(ctx, logx.OrNop(l), c.Request.Method+" "+c.FullPath(), err)

	code := errx.CodeOf(err)
	if code == "" {
		code = errx.CodeInternal
	}
	c.AbortWithStatusJSON(StatusOf(err), ErrorBody{Code: string(code), Msg: errx.MsgOf(err)})
}

func StatusOf(err error) int {
	switch transport.CodeFromError(err) {
	case transport.OK:
		return nethttp.StatusOK
	case transport.InvalidParam:
		return nethttp.StatusBadRequest
	case transport.Unauthenticated:
		return nethttp.StatusUnauthorized
	case transport.NotFound:
		return nethttp.StatusNotFound
	case transport.NotMember:
		return nethttp.StatusForbidden
	case transport.RateLimited:
		return nethttp.StatusTooManyRequests
	case transport.Unavailable:
		return nethttp.StatusServiceUnavailable
	default:
		return nethttp.StatusInternalServerError
	}
}
