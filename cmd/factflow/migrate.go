package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/BaSui01/factflow/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

const migrateUsage = `Database Migration Commands

Usage:
  factflow migrate <subcommand> [options]

Subcommands:
  up          Apply all pending migrations
  down        Rollback the last migration
  down-all    Rollback all migrations
  steps <n>   Apply n migrations (negative rolls back)
  goto <v>    Migrate to a specific version
  force <v>   Force set migration version (use with caution)
  version     Show current migration version
  status      Show migration status
  info        Show migration summary

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  factflow migrate up
  factflow migrate up --config /etc/factflow/config.yaml
  factflow migrate status
  factflow migrate goto 1
  factflow migrate up --db-type sqlite --db-url 'file:factflow.db?mode=rwc'`

type migrateFlags struct {
	configPath string
	dbType     string
	dbURL      string
}

// parseMigrateArgs accepts flags before, between or after the positional
// subcommand arguments.
func parseMigrateArgs(args []string, stderr io.Writer) (migrateFlags, []string, error) {
	var f migrateFlags
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.configPath, "config", "", "Path to config file")
	fs.StringVar(&f.dbType, "db-type", "", "Database type (postgres, mysql, sqlite)")
	fs.StringVar(&f.dbURL, "db-url", "", "Database connection URL")

	var positional []string
	rest := args
	for {
		if err := fs.Parse(rest); err != nil {
			return f, nil, err
		}
		rest = fs.Args()
		if len(rest) == 0 {
			break
		}
		positional = append(positional, rest[0])
		rest = rest[1:]
	}
	return f, positional, nil
}

func createMigrator(f migrateFlags, logger *zap.Logger) (*migration.DefaultMigrator, error) {
	if f.dbType != "" && f.dbURL != "" {
		return migration.NewMigratorFromURL(f.dbType, f.dbURL, logger)
	}

	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.dbType != "" {
		cfg.Database.Driver = f.dbType
	}
	return migration.NewMigratorFromDatabaseConfig(cfg.Database, logger)
}

// runMigrate handles the migrate command and its subcommands.
func runMigrate(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	f, positional, err := parseMigrateArgs(args, stderr)
	if err != nil {
		return err
	}
	if len(positional) == 0 || positional[0] == "help" {
		fmt.Fprintln(stdout, migrateUsage)
		if len(positional) == 0 {
			return fmt.Errorf("missing migrate subcommand")
		}
		return nil
	}

	migrator, err := createMigrator(f, zap.NewNop())
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer migrator.Close()

	cli := migration.NewCLI(migrator)
	cli.SetOutput(stdout)
	return cli.Run(ctx, positional)
}
