package protocol

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultChunkSize 是每个区块每边的地块数。
const DefaultChunkSize = 32

// ChunkCoord 是区块坐标。
type ChunkCoord struct {
	CX int `json:"cx"`
	CY int `json:"cy"`
}

// ID 返回 "{cx}_{cy}"。
func (c ChunkCoord) ID() string {
	return ChunkID(c.CX, c.CY)
}

func ChunkID(cx, cy int) string {
	return fmt.Sprintf("%d_%d", cx, cy)
}

// FloorDiv 向负无穷取整的整除，负坐标也落在正确的区块里。
func FloorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// ChunkOf 返回地块 (x, y) 所在的区块。
func ChunkOf(x, y, size int) ChunkCoord {
	return ChunkCoord{CX: FloorDiv(x, size), CY: FloorDiv(y, size)}
}

// Land 是一个地块。LandID 为空表示未被认领。
type Land struct {
	X             int             `json:"x"`
	Y             int             `json:"y"`
	Biome         string          `json:"biome"`
	OwnerID       *int64          `json:"owner_id"`
	OwnerUsername *string         `json:"owner_username"`
	LandID        *string         `json:"land_id"`
	Fenced        bool            `json:"fenced"`
	GuestAccess   bool            `json:"guest_access"`
	BasePrice     decimal.Decimal `json:"base_price"`
}

func (l Land) Claimed() bool {
	return l.LandID != nil
}

// Chunk 按行存放 size*size 个地块：y 外层、x 内层，起点是 (cx*size, cy*size)。
type Chunk struct {
	ChunkID string `json:"chunk_id"`
	ChunkX  int    `json:"chunk_x"`
	ChunkY  int    `json:"chunk_y"`
	Lands   []Land `json:"lands"`
}

func (c *Chunk) Coord() ChunkCoord {
	return ChunkCoord{CX: c.ChunkX, CY: c.ChunkY}
}

// Index 返回地块 (x, y) 在 Lands 中的下标，不在本区块时 ok=false。
func (c *Chunk) Index(x, y, size int) (int, bool) {
	ox, oy := c.ChunkX*size, c.ChunkY*size
	lx, ly := x-ox, y-oy
	if lx < 0 || ly < 0 || lx >= size || ly >= size {
		return 0, false
	}
	idx := ly*size + lx
	if idx >= len(c.Lands) {
		return 0, false
	}
	return idx, true
}

// Validate 校验区块形状，外部数据进入缓存前必须调用。
func (c *Chunk) Validate(size int) error {
	if c == nil {
		return fmt.Errorf("chunk is nil")
	}
	if size <= 0 {
		return fmt.Errorf("chunk size %d must be positive", size)
	}
	if c.ChunkID != ChunkID(c.ChunkX, c.ChunkY) {
		return fmt.Errorf("chunk_id %q does not match (%d,%d)", c.ChunkID, c.ChunkX, c.ChunkY)
	}
	if len(c.Lands) != size*size {
		return fmt.Errorf("chunk %s has %d lands, want %d", c.ChunkID, len(c.Lands), size*size)
	}
	ox, oy := c.ChunkX*size, c.ChunkY*size
	first, last := c.Lands[0], c.Lands[len(c.Lands)-1]
	if first.X != ox || first.Y != oy || last.X != ox+size-1 || last.Y != oy+size-1 {
		return fmt.Errorf("chunk %s lands are not row-major from (%d,%d)", c.ChunkID, ox, oy)
	}
	return nil
}

// LandOwner 是地块归属查询的返回。
type LandOwner struct {
	OwnerID       int64  `json:"owner_id"`
	OwnerUsername string `json:"owner_username"`
	LandID        string `json:"land_id"`
}

type OwnedLand struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	LandID string `json:"land_id"`
}

type OwnerLands struct {
	OwnerUsername string      `json:"owner_username"`
	Lands         []OwnedLand `json:"lands"`
}

type ChunkBatchRequest struct {
	Coords    []ChunkCoord `json:"coords"`
	ChunkSize int          `json:"chunk_size"`
}

type ChunkBatchResponse struct {
	Chunks []*Chunk `json:"chunks"`
}
