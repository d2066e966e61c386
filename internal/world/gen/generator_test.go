package gen

import (
	"testing"

	"LandVerse/internal/protocol"
)

func TestGenerator_同种子结果确定(t *testing.T) {
	a := NewGenerator(7, nil)
	b := NewGenerator(7, nil)
	for _, p := range [][2]int{{0, 0}, {-5, 9}, {1000, -1000}} {
		la, lb := a.Land(p[0], p[1]), b.Land(p[0], p[1])
		if la.Biome != lb.Biome || !la.BasePrice.Equal(lb.BasePrice) {
			t.Fatalf("(%d,%d) 两次生成不一致: %+v vs %+v", p[0], p[1], la, lb)
		}
		if la.Claimed() {
			t.Fatalf("生成的地块应当无主")
		}
	}
}

func TestGenerator_不同种子产生不同地形(t *testing.T) {
	a := NewGenerator(1, nil).Chunk(protocol.ChunkCoord{}, 16)
	b := NewGenerator(2, nil).Chunk(protocol.ChunkCoord{}, 16)
	diff := 0
	for i := range a.Lands {
		if a.Lands[i].Biome != b.Lands[i].Biome {
			diff++
		}
	}
	if diff == 0 {
		t.Fatalf("不同种子生成了完全相同的区块")
	}
}

func TestGenerator_区块大小不影响地块(t *testing.T) {
	g := NewGenerator(42, nil)
	small := g.Chunk(protocol.ChunkCoord{CX: -1, CY: -1}, 8)
	big := g.Chunk(protocol.ChunkCoord{CX: -1, CY: -1}, 16)
	if err := small.Validate(8); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := big.Validate(16); err != nil {
		t.Fatalf("validate: %v", err)
	}
	// (-8,-8) 在两种切法里都存在
	i, _ := small.Index(-8, -8, 8)
	j, _ := big.Index(-8, -8, 16)
	if small.Lands[i].Biome != big.Lands[j].Biome {
		t.Fatalf("同一地块在不同区块大小下不一致")
	}
}

func TestCatalog_权重选取与校验(t *testing.T) {
	c := DefaultCatalog()
	if got := c.Pick(0).Name; got != c.Biomes[0].Name {
		t.Fatalf("r=0 应选第一个群系, got=%s", got)
	}
	if got := c.Pick(0.999999).Name; got != c.Biomes[len(c.Biomes)-1].Name {
		t.Fatalf("r→1 应选最后一个群系, got=%s", got)
	}
	if _, err := ParseCatalog([]byte("biomes:\n  - name: a\n    weight: 0\n    base_price: \"1\"\n")); err == nil {
		t.Fatalf("权重为 0 应报错")
	}
	if _, err := ParseCatalog([]byte("biomes:\n  - name: a\n    weight: 1\n    base_price: abc\n")); err == nil {
		t.Fatalf("非法价格应报错")
	}
}
