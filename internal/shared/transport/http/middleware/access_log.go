package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"LandVerse/internal/shared/transport"
	"LandVerse/modules/kit/errx"
	"LandVerse/modules/kit/logx"
)

type bodyCaptureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyCaptureWriter) Write(data []byte) (int, error) {
	if w.Status() >= http.StatusBadRequest {
		_, _ = w.body.Write(data)
	}
	return w.ResponseWriter.Write(data)
}

func (w *bodyCaptureWriter) WriteString(s string) (int, error) {
	if w.Status() >= http.StatusBadRequest {
		_, _ = w.body.WriteString(s)
	}
	return w.ResponseWriter.WriteString(s)
}

// AccessLog 统一写访问日志。失败响应从响应体的 `code` 字段提取业务码。
func AccessLog(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		action := c.Request.Method + " " + route

		ctx := transport.NewContextWithParent(c.Request.Context(), action)
		c.Request = c.Request.WithContext(ctx)

		bw := &bodyCaptureWriter{ResponseWriter: c.Writer}
		c.Writer = bw

		c.Next()

		status := c.Writer.Status()
		switch {
		case status < http.StatusBadRequest:
			transport.SetBizCode(ctx, transport.BizCode(transport.OK))
		default:
			if code, ok := parseErrCode(bw.body.Bytes()); ok {
				transport.SetBizCode(ctx, transport.BizCodeOf(code))
				transport.SetErrorReason(ctx, string(code))
			} else {
				transport.SetBizCode(ctx, transport.BizCode(transport.SystemError))
			}
		}

		transport.WriteAccessLog(ctx, log)
	}
}

// parseErrCode 解析错误响应体 {"code":"LAND_UNCLAIMED","msg":"..."}。
func parseErrCode(body []byte) (errx.Code, bool) {
	if len(body) == 0 {
		return "", false
	}
	var payload struct {
		Code *string `json:"code"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", false
	}
	if payload.Code == nil || *payload.Code == "" {
		return "", false
	}
	return errx.Code(*payload.Code), true
}
