// Package repotest 是 port.LandRepository 各实现共用的行为测试。
package repotest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"LandVerse/internal/world/app/port"
	"LandVerse/internal/world/domain"
)

func record(x, y int, owner int64) domain.LandRecord {
	return domain.LandRecord{
		X:             x,
		Y:             y,
		LandID:        fmt.Sprintf("L-%d-%d", x, y),
		OwnerID:       owner,
		OwnerUsername: "owner",
		Biome:         "forest",
		BasePrice:     decimal.RequireFromString("120.50"),
		UpdatedAt:     time.UnixMilli(1_700_000_000_000),
	}
}

// Run 对 newRepo 返回的空仓库跑一遍完整的读写语义。
func Run(t *testing.T, newRepo func(t *testing.T) port.LandRepository) {
	t.Helper()
	ctx := context.Background()

	t.Run("找不到返回ErrLandUnclaimed", func(t *testing.T) {
		r := newRepo(t)
		if _, err := r.ByCoords(ctx, 1, 2); !errors.Is(err, domain.ErrLandUnclaimed) {
			t.Fatalf("期望 ErrLandUnclaimed, got=%v", err)
		}
	})

	t.Run("保存后按坐标读回", func(t *testing.T) {
		r := newRepo(t)
		want := record(-3, 7, 42)
		want.Fenced = true
		if err := r.Save(ctx, want); err != nil {
			t.Fatalf("Save: %v", err)
		}
		got, err := r.ByCoords(ctx, -3, 7)
		if err != nil {
			t.Fatalf("ByCoords: %v", err)
		}
		if got.LandID != want.LandID || got.OwnerID != 42 || !got.Fenced || got.Biome != "forest" {
			t.Fatalf("unexpected record %+v", got)
		}
		if !got.BasePrice.Equal(want.BasePrice) {
			t.Fatalf("价格不一致 want=%s got=%s", want.BasePrice, got.BasePrice)
		}
		if !got.UpdatedAt.Equal(want.UpdatedAt) {
			t.Fatalf("时间不一致 want=%v got=%v", want.UpdatedAt, got.UpdatedAt)
		}
	})

	t.Run("同坐标再保存是覆盖", func(t *testing.T) {
		r := newRepo(t)
		rec := record(0, 0, 1)
		if err := r.Save(ctx, rec); err != nil {
			t.Fatalf("Save: %v", err)
		}
		rec.OwnerID = 2
		rec.GuestAccess = true
		if err := r.Save(ctx, rec); err != nil {
			t.Fatalf("Save: %v", err)
		}
		got, err := r.ByCoords(ctx, 0, 0)
		if err != nil {
			t.Fatalf("ByCoords: %v", err)
		}
		if got.OwnerID != 2 || !got.GuestAccess {
			t.Fatalf("未覆盖 %+v", got)
		}
		lands, err := r.ByOwner(ctx, 1)
		if err != nil {
			t.Fatalf("ByOwner: %v", err)
		}
		if len(lands) != 0 {
			t.Fatalf("旧地主不应再有地块, got=%d", len(lands))
		}
	})

	t.Run("范围查询是闭区间", func(t *testing.T) {
		r := newRepo(t)
		for _, c := range [][2]int{{0, 0}, {31, 31}, {32, 0}, {-1, 5}} {
			if err := r.Save(ctx, record(c[0], c[1], 9)); err != nil {
				t.Fatalf("Save: %v", err)
			}
		}
		got, err := r.InBounds(ctx, domain.Bounds{MinX: 0, MinY: 0, MaxX: 31, MaxY: 31})
		if err != nil {
			t.Fatalf("InBounds: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("期望 2 条, got=%+v", got)
		}
	})

	t.Run("按地主查询", func(t *testing.T) {
		r := newRepo(t)
		_ = r.Save(ctx, record(5, 5, 7))
		_ = r.Save(ctx, record(1, 1, 7))
		_ = r.Save(ctx, record(2, 2, 8))
		got, err := r.ByOwner(ctx, 7)
		if err != nil {
			t.Fatalf("ByOwner: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("期望 2 条, got=%d", len(got))
		}
		if got, _ := r.ByOwner(ctx, 100); len(got) != 0 {
			t.Fatalf("不存在的地主应返回空, got=%d", len(got))
		}
	})

	t.Run("删除", func(t *testing.T) {
		r := newRepo(t)
		_ = r.Save(ctx, record(4, 4, 1))
		if err := r.Delete(ctx, 4, 4); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := r.ByCoords(ctx, 4, 4); !errors.Is(err, domain.ErrLandUnclaimed) {
			t.Fatalf("删除后应找不到, got=%v", err)
		}
		if err := r.Delete(ctx, 4, 4); err != nil {
			t.Fatalf("重复删除不应报错: %v", err)
		}
	})
}
