package port

import (
	"context"

	"LandVerse/internal/protocol"
	"LandVerse/internal/world/domain"
)

// LandRepository 只保存已认领的地块。实现方在找不到记录时返回 domain.ErrLandUnclaimed。
type LandRepository interface {
	InBounds(ctx context.Context, b domain.Bounds) ([]domain.LandRecord, error)
	ByCoords(ctx context.Context, x, y int) (domain.LandRecord, error)
	ByOwner(ctx context.Context, ownerID int64) ([]domain.LandRecord, error)
	// Save 按坐标 upsert。
	Save(ctx context.Context, r domain.LandRecord) error
	Delete(ctx context.Context, x, y int) error
}

// ChunkCache 缓存叠加好的区块。缓存里的区块是只读的。
type ChunkCache interface {
	Get(key string) (*protocol.Chunk, bool)
	Set(key string, c *protocol.Chunk)
	Del(key string)
}

// Notifier 把地块变化推给在线连接，session.Manager 实现它。
type Notifier interface {
	Broadcast(msgType string, payload any, except int64)
}
