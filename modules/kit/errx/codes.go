package errx

// 跨服务统一的系统类错误码。业务域错误码由各业务包自行定义，不放在 kit 里。
const (
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeUnavailable  Code = "SERVICE_UNAVAILABLE"
	CodeTimeout      Code = "TIMEOUT"
	CodeRateLimited  Code = "RATE_LIMITED"
	CodeInvalidParam Code = "INVALID_PARAM"
	// CodeUnauthenticated 表示凭证缺失或失效（ws 升级、http bearer）。
	CodeUnauthenticated Code = "UNAUTHENTICATED"
)

// 哨兵错误，派生请用 WithData/WithCause。
var (
	ErrInternal        = NewSys(CodeInternal, "服务器内部错误")
	ErrUnavailable     = NewSys(CodeUnavailable, "服务不可用")
	ErrTimeout         = NewSys(CodeTimeout, "请求超时")
	ErrRateLimited     = NewSys(CodeRateLimited, "请求过于频繁")
	ErrInvalidParam    = NewBiz(CodeInvalidParam, "请求参数错误")
	ErrUnauthenticated = NewBiz(CodeUnauthenticated, "未登录或凭证已失效")
)
