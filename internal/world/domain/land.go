// Package domain 是世界服务的地块模型：生成的地形之上叠加已认领地块的记录。
package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"LandVerse/internal/protocol"
)

// LandRecord 是一块已认领地块的持久化状态。没有记录的坐标是无主地，完全由生成器决定。
type LandRecord struct {
	X             int
	Y             int
	LandID        string
	OwnerID       int64
	OwnerUsername string
	Fenced        bool
	GuestAccess   bool
	Biome         string
	BasePrice     decimal.Decimal
	UpdatedAt     time.Time
}

// Overlay 把记录盖到生成的地块上。
func (r LandRecord) Overlay(l *protocol.Land) {
	landID, ownerID, owner := r.LandID, r.OwnerID, r.OwnerUsername
	l.LandID = &landID
	l.OwnerID = &ownerID
	l.OwnerUsername = &owner
	l.Fenced = r.Fenced
	l.GuestAccess = r.GuestAccess
	if r.Biome != "" {
		l.Biome = r.Biome
	}
	if !r.BasePrice.IsZero() {
		l.BasePrice = r.BasePrice
	}
}

// RecordFromLand 从打完补丁的地块得到记录，未认领时 ok=false。
func RecordFromLand(l protocol.Land, now time.Time) (LandRecord, bool) {
	if l.LandID == nil || *l.LandID == "" {
		return LandRecord{}, false
	}
	r := LandRecord{
		X:           l.X,
		Y:           l.Y,
		LandID:      *l.LandID,
		Fenced:      l.Fenced,
		GuestAccess: l.GuestAccess,
		Biome:       l.Biome,
		BasePrice:   l.BasePrice,
		UpdatedAt:   now,
	}
	if l.OwnerID != nil {
		r.OwnerID = *l.OwnerID
	}
	if l.OwnerUsername != nil {
		r.OwnerUsername = *l.OwnerUsername
	}
	return r, true
}

func (r LandRecord) Owner() protocol.LandOwner {
	return protocol.LandOwner{OwnerID: r.OwnerID, OwnerUsername: r.OwnerUsername, LandID: r.LandID}
}

// Bounds 是闭区间的地块坐标范围。
type Bounds struct {
	MinX, MinY int
	MaxX, MaxY int
}

// ChunkBounds 返回区块覆盖的地块范围。
func ChunkBounds(c protocol.ChunkCoord, size int) Bounds {
	ox, oy := c.CX*size, c.CY*size
	return Bounds{MinX: ox, MinY: oy, MaxX: ox + size - 1, MaxY: oy + size - 1}
}

func (b Bounds) Contains(x, y int) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}
