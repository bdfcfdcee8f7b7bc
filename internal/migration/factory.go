package migration

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/factflow/config"
)

// NewMigratorFromConfig creates a migrator for the configured database.
func NewMigratorFromConfig(cfg *config.Config, logger *zap.Logger) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	return NewMigratorFromDatabaseConfig(cfg.Database, logger)
}

// NewMigratorFromDatabaseConfig creates a migrator from database settings.
func NewMigratorFromDatabaseConfig(dbCfg config.DatabaseConfig, logger *zap.Logger) (*DefaultMigrator, error) {
	dbType, url, err := DatabaseURLFromConfig(dbCfg)
	if err != nil {
		return nil, err
	}
	return NewMigrator(&Config{
		DatabaseType: dbType,
		DatabaseURL:  url,
		TableName:    "schema_migrations",
		Logger:       logger,
	})
}

// DatabaseURLFromConfig resolves the database type and golang-migrate URL.
// For sqlite the Name field holds the file path.
func DatabaseURLFromConfig(dbCfg config.DatabaseConfig) (DatabaseType, string, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return "", "", fmt.Errorf("invalid database type: %w", err)
	}

	switch dbType {
	case DatabaseTypePostgres:
		return dbType, BuildDatabaseURL(dbType, dbCfg.Host, dbCfg.Port, dbCfg.Name, dbCfg.User, dbCfg.Password, dbCfg.SSLMode), nil
	case DatabaseTypeMySQL:
		return dbType, BuildDatabaseURL(dbType, dbCfg.Host, dbCfg.Port, dbCfg.Name, dbCfg.User, dbCfg.Password, ""), nil
	default:
		return dbType, BuildDatabaseURL(dbType, "", 0, dbCfg.Name, "", "", ""), nil
	}
}

// NewMigratorFromURL creates a new migrator from a database URL
func NewMigratorFromURL(dbType, dbURL string, logger *zap.Logger) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}
	return NewMigrator(&Config{
		DatabaseType: dt,
		DatabaseURL:  dbURL,
		TableName:    "schema_migrations",
		Logger:       logger,
	})
}
