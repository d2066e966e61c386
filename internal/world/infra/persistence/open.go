// Package persistence 按配置选择地块存储实现。
package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"LandVerse/internal/shared/infrastructure/db"
	"LandVerse/internal/shared/infrastructure/mongo"
	"LandVerse/internal/shared/serverconfig"
	"LandVerse/internal/world/app/port"
	"LandVerse/internal/world/infra/persistence/memory"
	"LandVerse/internal/world/infra/persistence/mongodb"
	"LandVerse/internal/world/infra/persistence/mysql"
	"LandVerse/internal/world/infra/persistence/sqlite"
)

const (
	DriverMemory = "memory"
	DriverMySQL  = "mysql"
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"
)

// Open 返回仓库和对应的关闭函数。
func Open(ctx context.Context, cfg serverconfig.Config, l *zap.Logger) (port.LandRepository, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Storage.Driver {
	case DriverMemory, "":
		return memory.NewLandRepository(), noop, nil
	case DriverMySQL:
		gdb, err := db.Open(cfg.MySQL)
		if err != nil {
			return nil, nil, fmt.Errorf("open mysql: %w", err)
		}
		repo := mysql.NewLandRepository(gdb)
		if err := repo.Migrate(ctx); err != nil {
			return nil, nil, fmt.Errorf("migrate land table: %w", err)
		}
		closeFn := func() error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		}
		return repo, closeFn, nil
	case DriverMongo:
		client, database, err := mongo.Open(cfg.MongoDB, l)
		if err != nil {
			return nil, nil, fmt.Errorf("open mongodb: %w", err)
		}
		repo := mongodb.NewLandRepository(database)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, fmt.Errorf("ensure land indexes: %w", err)
		}
		return repo, func() error { return client.Disconnect(context.Background()) }, nil
	case DriverSQLite:
		repo, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return repo, repo.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
