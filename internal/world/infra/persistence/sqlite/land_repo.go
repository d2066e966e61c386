// Package sqlite 是单机部署用的地块存储，纯 Go 驱动，不需要 cgo。
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"LandVerse/internal/world/app/port"
	"LandVerse/internal/world/domain"
)

type LandRepository struct {
	db *sql.DB
}

var _ port.LandRepository = (*LandRepository)(nil)

// Open 打开（必要时创建）数据库文件并建表。path 为 ":memory:" 时只在进程内。
func Open(path string) (*LandRepository, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// 单写连接，:memory: 下多连接会各自看到一个空库
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &LandRepository{db: db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS land (
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			land_id TEXT NOT NULL,
			owner_id INTEGER NOT NULL,
			owner_username TEXT NOT NULL DEFAULT '',
			fenced INTEGER NOT NULL DEFAULT 0,
			guest_access INTEGER NOT NULL DEFAULT 0,
			biome TEXT NOT NULL DEFAULT '',
			base_price TEXT NOT NULL DEFAULT '0',
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (x, y)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_land_owner ON land(owner_id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (r *LandRepository) Close() error {
	return r.db.Close()
}

const selectCols = `SELECT x, y, land_id, owner_id, owner_username, fenced, guest_access, biome, base_price, updated_at FROM land`

func (r *LandRepository) InBounds(ctx context.Context, b domain.Bounds) ([]domain.LandRecord, error) {
	rows, err := r.db.QueryContext(ctx, selectCols+` WHERE x BETWEEN ? AND ? AND y BETWEEN ? AND ?`,
		b.MinX, b.MaxX, b.MinY, b.MaxY)
	if err != nil {
		return nil, err
	}
	return scanAll(rows)
}

func (r *LandRepository) ByCoords(ctx context.Context, x, y int) (domain.LandRecord, error) {
	row := r.db.QueryRowContext(ctx, selectCols+` WHERE x = ? AND y = ?`, x, y)
	rec, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LandRecord{}, domain.ErrLandUnclaimed
	}
	return rec, err
}

func (r *LandRepository) ByOwner(ctx context.Context, ownerID int64) ([]domain.LandRecord, error) {
	rows, err := r.db.QueryContext(ctx, selectCols+` WHERE owner_id = ? ORDER BY y, x`, ownerID)
	if err != nil {
		return nil, err
	}
	return scanAll(rows)
}

func (r *LandRepository) Save(ctx context.Context, rec domain.LandRecord) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO land
		(x, y, land_id, owner_id, owner_username, fenced, guest_access, biome, base_price, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(x, y) DO UPDATE SET
			land_id = excluded.land_id,
			owner_id = excluded.owner_id,
			owner_username = excluded.owner_username,
			fenced = excluded.fenced,
			guest_access = excluded.guest_access,
			biome = excluded.biome,
			base_price = excluded.base_price,
			updated_at = excluded.updated_at`,
		rec.X, rec.Y, rec.LandID, rec.OwnerID, rec.OwnerUsername,
		rec.Fenced, rec.GuestAccess, rec.Biome, rec.BasePrice.StringFixed(2), rec.UpdatedAt.UnixMilli())
	return err
}

func (r *LandRepository) Delete(ctx context.Context, x, y int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM land WHERE x = ? AND y = ?`, x, y)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (domain.LandRecord, error) {
	var (
		rec     domain.LandRecord
		price   string
		updated int64
	)
	if err := s.Scan(&rec.X, &rec.Y, &rec.LandID, &rec.OwnerID, &rec.OwnerUsername,
		&rec.Fenced, &rec.GuestAccess, &rec.Biome, &price, &updated); err != nil {
		return domain.LandRecord{}, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return domain.LandRecord{}, fmt.Errorf("land (%d,%d) base_price %q: %w", rec.X, rec.Y, price, err)
	}
	rec.BasePrice = p
	rec.UpdatedAt = time.UnixMilli(updated)
	return rec, nil
}

func scanAll(rows *sql.Rows) ([]domain.LandRecord, error) {
	defer rows.Close()
	var out []domain.LandRecord
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
