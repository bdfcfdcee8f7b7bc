package database

import (
	"fmt"
	"strings"

	"github.com/BaSui01/factflow/config"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	cgosqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Dialector 根据驱动名选择 GORM 方言。
// sqlite 使用纯 Go 实现，sqlite3 使用 cgo 驱动。
func Dialector(dbCfg config.DatabaseConfig) (gorm.Dialector, error) {
	dsn := dbCfg.DSN()
	switch dbCfg.Driver {
	case "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	case "sqlite3":
		return cgosqlite.Open(dbCfg.Name), nil
	case "":
		return nil, fmt.Errorf("database driver not configured")
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: postgres, mysql, sqlite, sqlite3)", dbCfg.Driver)
	}
}

// Open 根据配置打开数据库连接
func Open(dbCfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dialector, err := Dialector(dbCfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	logger.Info("database connected", zap.String("driver", dbCfg.Driver), zap.String("name", dbCfg.Name))
	return db, nil
}

// PoolConfigFrom 从数据库配置派生连接池配置
func PoolConfigFrom(dbCfg config.DatabaseConfig) PoolConfig {
	pc := DefaultPoolConfig()
	if dbCfg.MaxOpenConns > 0 {
		pc.MaxOpenConns = dbCfg.MaxOpenConns
	}
	if dbCfg.MaxIdleConns > 0 {
		pc.MaxIdleConns = dbCfg.MaxIdleConns
	}
	// 内存 sqlite 每个连接各自一个库
	if IsSQLite(dbCfg.Driver) && strings.Contains(dbCfg.Name, ":memory:") {
		pc.MaxOpenConns = 1
	}
	if pc.MaxIdleConns > pc.MaxOpenConns {
		pc.MaxIdleConns = pc.MaxOpenConns
	}
	if dbCfg.ConnMaxLifetime > 0 {
		pc.ConnMaxLifetime = dbCfg.ConnMaxLifetime
	}
	return pc
}

// IsSQLite reports whether driver selects one of the sqlite dialects.
func IsSQLite(driver string) bool {
	return driver == "sqlite" || driver == "sqlite3"
}
