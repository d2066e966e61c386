package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"LandVerse/internal/world/app/port"
	"LandVerse/internal/world/domain"
	"LandVerse/internal/world/infra/persistence/repotest"
	"LandVerse/internal/world/infra/persistence/sqlite"
)

func open(t *testing.T, path string) *sqlite.LandRepository {
	t.Helper()
	r, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestLandRepository(t *testing.T) {
	repotest.Run(t, func(t *testing.T) port.LandRepository {
		return open(t, filepath.Join(t.TempDir(), "land.db"))
	})
}

func TestLandRepository_重新打开后数据仍在(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "land.db")
	r, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rec := domain.LandRecord{X: 3, Y: 3, LandID: "L-3-3", OwnerID: 5, UpdatedAt: time.Now()}
	if err := r.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	_ = r.Close()

	got, err := open(t, path).ByCoords(context.Background(), 3, 3)
	if err != nil {
		t.Fatalf("ByCoords: %v", err)
	}
	if got.LandID != "L-3-3" || got.OwnerID != 5 {
		t.Fatalf("unexpected record %+v", got)
	}
}
