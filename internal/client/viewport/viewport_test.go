package viewport

import (
	"math"
	"reflect"
	"testing"

	"LandVerse/internal/protocol"
)

func TestComputeVisibleChunks_原点场景包含00且稳定(t *testing.T) {
	cam := Camera{X: 0, Y: 0, Zoom: 0.5}
	vp := Viewport{Width: 800, Height: 600}
	cfg := DefaultConfig()

	first := ComputeVisibleChunks(cam, vp, cfg)
	second := ComputeVisibleChunks(cam, vp, cfg)

	found := false
	for _, c := range first {
		if c == (protocol.ChunkCoord{CX: 0, CY: 0}) {
			found = true
		}
	}
	if !found {
		t.Fatalf("期望包含区块 (0,0), got=%v", first)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("期望相同输入得到相同有序列表\nfirst=%v\nsecond=%v", first, second)
	}
}

func TestComputeVisibleChunks_行优先顺序(t *testing.T) {
	// half extent = 800/(0.5*32)=50, 600/(0.5*32)=37.5
	// x: [-50,50] -> chunk [-2,1]; y: [-37.5,37.5] -> floor -> [-38,37] -> chunk [-2,1]
	got := ComputeVisibleChunks(Camera{Zoom: 0.5}, Viewport{Width: 800, Height: 600}, DefaultConfig())
	if len(got) != 16 {
		t.Fatalf("期望 4x4=16 个区块, got=%d %v", len(got), got)
	}
	if got[0] != (protocol.ChunkCoord{CX: -2, CY: -2}) || got[1] != (protocol.ChunkCoord{CX: -1, CY: -2}) {
		t.Fatalf("期望 x 在内层递增, got=%v", got[:2])
	}
	if got[4] != (protocol.ChunkCoord{CX: -2, CY: -1}) {
		t.Fatalf("期望第二行从 (-2,-1) 开始, got=%v", got[4])
	}
	for i := 1; i < len(got); i++ {
		prev, cur := got[i-1], got[i]
		if cur.CY < prev.CY || (cur.CY == prev.CY && cur.CX <= prev.CX) {
			t.Fatalf("期望严格行优先, 第 %d 个破坏顺序: %v -> %v", i, prev, cur)
		}
	}
}

func TestComputeVisibleChunks_零尺寸返回空集(t *testing.T) {
	for _, vp := range []Viewport{{0, 600}, {800, 0}, {-1, -1}} {
		got := ComputeVisibleChunks(Camera{Zoom: 1}, vp, DefaultConfig())
		if got == nil || len(got) != 0 {
			t.Fatalf("期望空切片而不是 nil/报错, vp=%v got=%v", vp, got)
		}
	}
}

func TestClampZoom_非正zoom被夹到下限(t *testing.T) {
	cfg := Config{MinZoom: 0, MaxZoom: 2}
	for _, z := range []float64{0, -3, math.NaN()} {
		if got := cfg.ClampZoom(z); got != DefaultMinZoom {
			t.Fatalf("期望 zoom=%v 被夹到 %v, got=%v", z, DefaultMinZoom, got)
		}
	}
	if got := cfg.ClampZoom(9); got != 2 {
		t.Fatalf("期望上限 2, got=%v", got)
	}
	// zoom=0 不应导致无限大的区块范围
	got := ComputeVisibleChunks(Camera{Zoom: 0}, Viewport{Width: 320, Height: 320}, cfg)
	if len(got) == 0 || len(got) > 100 {
		t.Fatalf("期望有限的可见区块, got=%d", len(got))
	}
}

func TestScreenToLand_中心点落在相机所在地块(t *testing.T) {
	cam := Camera{X: 10.5, Y: -3.2, Zoom: 1}
	vp := Viewport{Width: 640, Height: 480}
	x, y := ScreenToLand(cam, vp, DefaultConfig(), 320, 240)
	if x != 10 || y != -4 {
		t.Fatalf("期望 (10,-4), got=(%d,%d)", x, y)
	}
}

func TestLandToChunk_负坐标向下取整(t *testing.T) {
	cfg := DefaultConfig()
	got := LandToChunk(-1, 32, cfg)
	if got != (protocol.ChunkCoord{CX: -1, CY: 1}) {
		t.Fatalf("unexpected chunk %+v", got)
	}
	x, y := ChunkOrigin(got, cfg)
	if x != -32 || y != 32 {
		t.Fatalf("unexpected origin (%d,%d)", x, y)
	}
}
