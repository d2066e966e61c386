package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"LandVerse/internal/world/app/port"
	"LandVerse/internal/world/domain"
	"LandVerse/internal/world/infra/persistence/model"
)

type LandRepository struct {
	db *gorm.DB
}

var _ port.LandRepository = (*LandRepository)(nil)

func NewLandRepository(db *gorm.DB) *LandRepository {
	return &LandRepository{db: db}
}

// Migrate 建表，只在启动时调用一次。
func (r *LandRepository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&model.Land{})
}

func (r *LandRepository) InBounds(ctx context.Context, b domain.Bounds) ([]domain.LandRecord, error) {
	var rows []model.Land
	err := r.db.WithContext(ctx).
		Where("x BETWEEN ? AND ? AND y BETWEEN ? AND ?", b.MinX, b.MaxX, b.MinY, b.MaxY).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toRecords(rows), nil
}

func (r *LandRepository) ByCoords(ctx context.Context, x, y int) (domain.LandRecord, error) {
	var m model.Land
	err := r.db.WithContext(ctx).Where("x = ? AND y = ?", x, y).First(&m).Error
	switch {
	case err == nil:
		return model.LandToRecord(&m), nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.LandRecord{}, domain.ErrLandUnclaimed
	default:
		return domain.LandRecord{}, err
	}
}

func (r *LandRepository) ByOwner(ctx context.Context, ownerID int64) ([]domain.LandRecord, error) {
	var rows []model.Land
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("y, x").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toRecords(rows), nil
}

// Save 按 (x, y) 唯一索引 upsert。
func (r *LandRepository) Save(ctx context.Context, rec domain.LandRecord) error {
	m := model.RecordToLand(rec)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "x"}, {Name: "y"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"land_id", "owner_id", "owner_username", "fenced", "guest_access", "biome", "base_price", "updated_at",
		}),
	}).Create(m).Error
}

func (r *LandRepository) Delete(ctx context.Context, x, y int) error {
	return r.db.WithContext(ctx).Where("x = ? AND y = ?", x, y).Delete(&model.Land{}).Error
}

func toRecords(rows []model.Land) []domain.LandRecord {
	out := make([]domain.LandRecord, 0, len(rows))
	for i := range rows {
		out = append(out, model.LandToRecord(&rows[i]))
	}
	return out
}
