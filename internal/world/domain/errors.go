package domain

import (
	"LandVerse/internal/shared/transport"
	"LandVerse/modules/kit/errx"
)

type Code = errx.Code

const (
	CodeLandUnclaimed     Code = "LAND_UNCLAIMED"
	CodeOwnerNotFound     Code = "OWNER_NOT_FOUND"
	CodeBadChunkSize      Code = "CHUNK_SIZE_INVALID"
	CodeBatchTooLarge     Code = "CHUNK_BATCH_TOO_LARGE"
	CodeBadLandPatch      Code = "LAND_PATCH_INVALID"
	CodeRepositoryFailure Code = "LAND_REPOSITORY_FAILURE"
)

// 哨兵错误：禁止直接修改其 data/cause（通过 WithData/WithCause 派生新对象）。
var (
	ErrLandUnclaimed = errx.NewBiz(CodeLandUnclaimed, "该地块无人认领")
	ErrOwnerNotFound = errx.NewBiz(CodeOwnerNotFound, "地主不存在")
	ErrBadChunkSize  = errx.NewBiz(CodeBadChunkSize, "不支持的区块大小")
	ErrBatchTooLarge = errx.NewBiz(CodeBatchTooLarge, "一次请求的区块过多")
	ErrBadLandPatch  = errx.NewBiz(CodeBadLandPatch, "地块更新内容非法")
	// ErrRepository 包装存储层的技术错误，cause 里是驱动原始错误。
	ErrRepository = errx.NewSys(CodeRepositoryFailure, "地块存储不可用")
)

func init() {
	transport.RegisterCode(CodeLandUnclaimed, transport.NotFound)
	transport.RegisterCode(CodeOwnerNotFound, transport.NotFound)
	transport.RegisterCode(CodeBadChunkSize, transport.InvalidParam)
	transport.RegisterCode(CodeBatchTooLarge, transport.InvalidParam)
	transport.RegisterCode(CodeBadLandPatch, transport.InvalidParam)
	transport.RegisterCode(CodeRepositoryFailure, transport.Unavailable)
}
