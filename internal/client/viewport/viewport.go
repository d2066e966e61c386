// Package viewport 把相机和视口换算成可见区块，全是纯函数。
package viewport

import (
	"math"

	"LandVerse/internal/protocol"
)

const (
	DefaultLandPixelSize = 32
	DefaultMinZoom       = 0.1
	DefaultMaxZoom       = 4.0
)

// Camera 以世界坐标（地块单位）描述视野中心。
type Camera struct {
	X    float64
	Y    float64
	Zoom float64
}

// Viewport 是屏幕像素尺寸。
type Viewport struct {
	Width  int
	Height int
}

type Config struct {
	ChunkSize     int
	LandPixelSize float64
	MinZoom       float64
	MaxZoom       float64
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:     protocol.DefaultChunkSize,
		LandPixelSize: DefaultLandPixelSize,
		MinZoom:       DefaultMinZoom,
		MaxZoom:       DefaultMaxZoom,
	}
}

// Normalize 补齐非法配置，保证 MinZoom > 0 且 MinZoom <= MaxZoom。
func (c Config) Normalize() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = protocol.DefaultChunkSize
	}
	if c.LandPixelSize <= 0 {
		c.LandPixelSize = DefaultLandPixelSize
	}
	if c.MinZoom <= 0 {
		c.MinZoom = DefaultMinZoom
	}
	if c.MaxZoom < c.MinZoom {
		c.MaxZoom = c.MinZoom
	}
	return c
}

// ClampZoom 把 zoom 限制在 [MinZoom, MaxZoom]，NaN 按 MinZoom 处理。
func (c Config) ClampZoom(z float64) float64 {
	c = c.Normalize()
	if math.IsNaN(z) || z < c.MinZoom {
		return c.MinZoom
	}
	if z > c.MaxZoom {
		return c.MaxZoom
	}
	return z
}

// HalfExtents 返回视口在地块单位下的半宽/半高：pixels / (zoom * landPixelSize)。
func HalfExtents(cam Camera, vp Viewport, cfg Config) (hx, hy float64) {
	cfg = cfg.Normalize()
	zoom := cfg.ClampZoom(cam.Zoom)
	scale := zoom * cfg.LandPixelSize
	return float64(vp.Width) / scale, float64(vp.Height) / scale
}

// Range 是闭区间的区块范围。
type Range struct {
	MinCX, MinCY int
	MaxCX, MaxCY int
}

func (r Range) Contains(c protocol.ChunkCoord) bool {
	return c.CX >= r.MinCX && c.CX <= r.MaxCX && c.CY >= r.MinCY && c.CY <= r.MaxCY
}

// VisibleRange 计算可见区块范围，视口任一边 <= 0 时 ok=false。
func VisibleRange(cam Camera, vp Viewport, cfg Config) (Range, bool) {
	if vp.Width <= 0 || vp.Height <= 0 {
		return Range{}, false
	}
	cfg = cfg.Normalize()
	hx, hy := HalfExtents(cam, vp, cfg)

	minLX := int(math.Floor(cam.X - hx))
	maxLX := int(math.Floor(cam.X + hx))
	minLY := int(math.Floor(cam.Y - hy))
	maxLY := int(math.Floor(cam.Y + hy))

	return Range{
		MinCX: protocol.FloorDiv(minLX, cfg.ChunkSize),
		MinCY: protocol.FloorDiv(minLY, cfg.ChunkSize),
		MaxCX: protocol.FloorDiv(maxLX, cfg.ChunkSize),
		MaxCY: protocol.FloorDiv(maxLY, cfg.ChunkSize),
	}, true
}

// ComputeVisibleChunks 返回与视口相交的区块，按 y 外层、x 内层排序。
func ComputeVisibleChunks(cam Camera, vp Viewport, cfg Config) []protocol.ChunkCoord {
	r, ok := VisibleRange(cam, vp, cfg)
	if !ok {
		return []protocol.ChunkCoord{}
	}
	out := make([]protocol.ChunkCoord, 0, (r.MaxCX-r.MinCX+1)*(r.MaxCY-r.MinCY+1))
	for cy := r.MinCY; cy <= r.MaxCY; cy++ {
		for cx := r.MinCX; cx <= r.MaxCX; cx++ {
			out = append(out, protocol.ChunkCoord{CX: cx, CY: cy})
		}
	}
	return out
}

// ScreenToLand 把屏幕像素坐标（左上角为原点）换算成地块坐标。
func ScreenToLand(cam Camera, vp Viewport, cfg Config, px, py float64) (int, int) {
	cfg = cfg.Normalize()
	scale := cfg.ClampZoom(cam.Zoom) * cfg.LandPixelSize
	wx := cam.X + (px-float64(vp.Width)/2)/scale
	wy := cam.Y + (py-float64(vp.Height)/2)/scale
	return int(math.Floor(wx)), int(math.Floor(wy))
}

// LandToChunk 返回地块所在的区块坐标。
func LandToChunk(x, y int, cfg Config) protocol.ChunkCoord {
	return protocol.ChunkOf(x, y, cfg.Normalize().ChunkSize)
}

// ChunkOrigin 返回区块左上角地块坐标。
func ChunkOrigin(c protocol.ChunkCoord, cfg Config) (int, int) {
	size := cfg.Normalize().ChunkSize
	return c.CX * size, c.CY * size
}
