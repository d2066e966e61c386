// Package gen 按种子确定性地生成无限网格上的地块。
package gen

import (
	"strconv"

	"github.com/shopspring/decimal"

	"LandVerse/internal/protocol"
)

// Generator 对同一 (seed, x, y) 永远给出同一个地块，和区块大小无关。
type Generator struct {
	seed    string
	catalog *Catalog
}

func NewGenerator(seed int64, catalog *Catalog) *Generator {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Generator{seed: strconv.FormatInt(seed, 10), catalog: catalog}
}

func (g *Generator) Catalog() *Catalog {
	return g.catalog
}

// Land 生成一块无主地。
func (g *Generator) Land(x, y int) protocol.Land {
	rng := mulberry32(hashLandSeed(x, y, g.seed))
	b := g.catalog.Pick(rng())
	// 基准价在群系价格上下浮动 20%
	factor := decimal.NewFromFloat(0.8 + 0.4*rng()).Round(4)
	return protocol.Land{
		X:         x,
		Y:         y,
		Biome:     b.Name,
		BasePrice: b.Price().Mul(factor).Round(2),
	}
}

// Chunk 生成区块内全部地块，按行排列。
func (g *Generator) Chunk(c protocol.ChunkCoord, size int) *protocol.Chunk {
	ch := &protocol.Chunk{
		ChunkID: c.ID(),
		ChunkX:  c.CX,
		ChunkY:  c.CY,
		Lands:   make([]protocol.Land, 0, size*size),
	}
	ox, oy := c.CX*size, c.CY*size
	for ly := 0; ly < size; ly++ {
		for lx := 0; lx < size; lx++ {
			ch.Lands = append(ch.Lands, g.Land(ox+lx, oy+ly))
		}
	}
	return ch
}

// hashLandSeed 是 FNV-1a，输入 "seed:x:y"。
func hashLandSeed(x, y int, seed string) uint32 {
	hash := uint32(2166136261)
	payload := seed + ":" + strconv.Itoa(x) + ":" + strconv.Itoa(y)
	for i := 0; i < len(payload); i++ {
		hash ^= uint32(payload[i])
		hash *= 16777619
	}
	return hash
}

func mulberry32(seed uint32) func() float64 {
	state := seed
	return func() float64 {
		state += 0x6d2b79f5
		t := imul32(state^(state>>15), 1|state)
		t ^= t + imul32(t^(t>>7), 61|t)
		return float64(t^(t>>14)) / 4294967296.0
	}
}

func imul32(a, b uint32) uint32 {
	return uint32(int32(a) * int32(b))
}
