package memory

import (
	"context"
	"sync"

	"LandVerse/internal/world/app/port"
	"LandVerse/internal/world/domain"
)

type coord struct{ x, y int }

// LandRepository 是进程内实现，开发和测试用，重启后数据丢失。
type LandRepository struct {
	mu    sync.RWMutex
	lands map[coord]domain.LandRecord
}

var _ port.LandRepository = (*LandRepository)(nil)

func NewLandRepository() *LandRepository {
	return &LandRepository{lands: make(map[coord]domain.LandRecord)}
}

func (r *LandRepository) InBounds(_ context.Context, b domain.Bounds) ([]domain.LandRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.LandRecord
	for c, rec := range r.lands {
		if b.Contains(c.x, c.y) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *LandRepository) ByCoords(_ context.Context, x, y int) (domain.LandRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.lands[coord{x, y}]
	if !ok {
		return domain.LandRecord{}, domain.ErrLandUnclaimed
	}
	return rec, nil
}

func (r *LandRepository) ByOwner(_ context.Context, ownerID int64) ([]domain.LandRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.LandRecord
	for _, rec := range r.lands {
		if rec.OwnerID == ownerID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *LandRepository) Save(_ context.Context, rec domain.LandRecord) error {
	r.mu.Lock()
	r.lands[coord{rec.X, rec.Y}] = rec
	r.mu.Unlock()
	return nil
}

func (r *LandRepository) Delete(_ context.Context, x, y int) error {
	r.mu.Lock()
	delete(r.lands, coord{x, y})
	r.mu.Unlock()
	return nil
}
