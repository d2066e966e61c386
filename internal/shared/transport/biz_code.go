package transport

import "LandVerse/modules/kit/errx"

// BizCode 表示业务码的强类型封装，用于在日志上下文中减少误传风险。
type BizCode int

// 访问日志里的业务码，和 errx.Code 一一对应。
const (
	OK              = 0
	InvalidParam    = 1
	Unauthenticated = 2
	NotFound        = 3
	NotMember       = 4
	RateLimited     = 5
	SessionReplaced = 6
	Unavailable     = 7
	SystemError     = 500
)

var codeTable = map[errx.Code]int{
	errx.CodeInvalidParam:    InvalidParam,
	errx.CodeUnauthenticated: Unauthenticated,
	errx.CodeRateLimited:     RateLimited,
	errx.CodeUnavailable:     Unavailable,
	errx.CodeTimeout:         Unavailable,
}

// RegisterCode 让业务包登记自己的错误码，未登记的按 SystemError 记。
func RegisterCode(code errx.Code, biz int) {
	codeTable[code] = biz
}

// CodeFromError 把错误映射成访问日志业务码。
func CodeFromError(err error) BizCode {
	if err == nil {
		return BizCode(OK)
	}
	if biz, ok := codeTable[errx.CodeOf(err)]; ok {
		return BizCode(biz)
	}
	return BizCode(SystemError)
}

// BizCodeOf 按错误码查业务码，HTTP 访问日志从响应体里取到的是字符串码。
func BizCodeOf(code errx.Code) BizCode {
	if code == "" {
		return BizCode(OK)
	}
	if biz, ok := codeTable[code]; ok {
		return BizCode(biz)
	}
	return BizCode(SystemError)
}
