// Package domain 放 presence 服务的业务错误码。
package domain

import (
	"LandVerse/internal/shared/transport"
	"LandVerse/modules/kit/errx"
)

type Code = errx.Code

const (
	CodeNotMember      Code = "ROOM_NOT_MEMBER"
	CodeBadRoom        Code = "ROOM_INVALID"
	CodeBadMediaKind   Code = "LIVE_BAD_MEDIA_KIND"
	CodeEmptyMessage   Code = "CHAT_EMPTY"
	CodeMessageTooLong Code = "CHAT_TOO_LONG"
)

// 哨兵错误：禁止直接修改其 data/cause（通过 WithData/WithCause 派生新对象）。
var (
	ErrNotMember      = errx.NewBiz(CodeNotMember, "你不在该房间")
	ErrBadRoom        = errx.NewBiz(CodeBadRoom, "房间号非法")
	ErrBadMediaKind   = errx.NewBiz(CodeBadMediaKind, "不支持的媒体类型")
	ErrEmptyMessage   = errx.NewBiz(CodeEmptyMessage, "消息不能为空")
	ErrMessageTooLong = errx.NewBiz(CodeMessageTooLong, "消息过长")
)

// MaxChatContent 是单条聊天的字符上限。
const MaxChatContent = 500

func init() {
	transport.RegisterCode(CodeNotMember, transport.NotMember)
	transport.RegisterCode(CodeBadRoom, transport.InvalidParam)
	transport.RegisterCode(CodeBadMediaKind, transport.InvalidParam)
	transport.RegisterCode(CodeEmptyMessage, transport.InvalidParam)
	transport.RegisterCode(CodeMessageTooLong, transport.InvalidParam)
}
