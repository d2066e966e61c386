package model

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"LandVerse/internal/world/domain"
)

// Land 是已认领地块的表结构
type Land struct {
	ID            uint64          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	X             int             `gorm:"column:x;not null;uniqueIndex:uk_land_xy,priority:1" json:"x"`
	Y             int             `gorm:"column:y;not null;uniqueIndex:uk_land_xy,priority:2" json:"y"`
	LandID        string          `gorm:"column:land_id;type:varchar(64);not null" json:"land_id"`
	OwnerID       int64           `gorm:"column:owner_id;not null;index:idx_land_owner" json:"owner_id"`
	OwnerUsername string          `gorm:"column:owner_username;type:varchar(100);not null;default:''" json:"owner_username"`
	Fenced        bool            `gorm:"column:fenced;not null;default:false" json:"fenced"`
	GuestAccess   bool            `gorm:"column:guest_access;not null;default:false" json:"guest_access"`
	Biome         string          `gorm:"column:biome;type:varchar(32);not null;default:''" json:"biome"`
	BasePrice     decimal.Decimal `gorm:"column:base_price;type:decimal(12,2);not null" json:"base_price"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (m *Land) TableName() string {
	return "land"
}

func LandToRecord(m *Land) domain.LandRecord {
	return domain.LandRecord{
		X:             m.X,
		Y:             m.Y,
		LandID:        m.LandID,
		OwnerID:       m.OwnerID,
		OwnerUsername: m.OwnerUsername,
		Fenced:        m.Fenced,
		GuestAccess:   m.GuestAccess,
		Biome:         m.Biome,
		BasePrice:     m.BasePrice,
		UpdatedAt:     m.UpdatedAt,
	}
}

func RecordToLand(r domain.LandRecord) *Land {
	return &Land{
		X:             r.X,
		Y:             r.Y,
		LandID:        r.LandID,
		OwnerID:       r.OwnerID,
		OwnerUsername: r.OwnerUsername,
		Fenced:        r.Fenced,
		GuestAccess:   r.GuestAccess,
		Biome:         r.Biome,
		BasePrice:     r.BasePrice,
		UpdatedAt:     r.UpdatedAt,
	}
}

// LandDoc 是 mongodb 里的文档，_id 为 "x:y"。价格存成字符串避免浮点误差。
type LandDoc struct {
	ID            string    `bson:"_id"`
	X             int       `bson:"x"`
	Y             int       `bson:"y"`
	LandID        string    `bson:"land_id"`
	OwnerID       int64     `bson:"owner_id"`
	OwnerUsername string    `bson:"owner_username"`
	Fenced        bool      `bson:"fenced"`
	GuestAccess   bool      `bson:"guest_access"`
	Biome         string    `bson:"biome"`
	BasePrice     string    `bson:"base_price"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func DocID(x, y int) string {
	return strconv.Itoa(x) + ":" + strconv.Itoa(y)
}

func RecordToDoc(r domain.LandRecord) LandDoc {
	return LandDoc{
		ID:            DocID(r.X, r.Y),
		X:             r.X,
		Y:             r.Y,
		LandID:        r.LandID,
		OwnerID:       r.OwnerID,
		OwnerUsername: r.OwnerUsername,
		Fenced:        r.Fenced,
		GuestAccess:   r.GuestAccess,
		Biome:         r.Biome,
		BasePrice:     r.BasePrice.StringFixed(2),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

func DocToRecord(d LandDoc) (domain.LandRecord, error) {
	price := decimal.Zero
	if d.BasePrice != "" {
		p, err := decimal.NewFromString(d.BasePrice)
		if err != nil {
			return domain.LandRecord{}, err
		}
		price = p
	}
	return domain.LandRecord{
		X:             d.X,
		Y:             d.Y,
		LandID:        d.LandID,
		OwnerID:       d.OwnerID,
		OwnerUsername: d.OwnerUsername,
		Fenced:        d.Fenced,
		GuestAccess:   d.GuestAccess,
		Biome:         d.Biome,
		BasePrice:     price,
		UpdatedAt:     d.UpdatedAt,
	}, nil
}
