package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nextmail/mailbridge/consts"
	"github.com/nextmail/mailbridge/db"
	"github.com/nextmail/mailbridge/logger"
)

// Migrations are embedded in the db package and accessed via db.MigrationsFS.

func handleMigrateCommand(ctx context.Context) {
	if len(os.Args) < 3 {
		printMigrateUsage()
		os.Exit(1)
	}

	subcommand := os.Args[2]
	switch subcommand {
	case "up":
		handleMigrateUp(ctx)
	case "down":
		handleMigrateDown(ctx)
	case "version":
		handleMigrateVersion(ctx)
	case "force":
		handleMigrateForce(ctx)
	case "help", "--help", "-h":
		printMigrateUsage()
	default:
		fmt.Printf("Unknown migrate subcommand: %s\n\n", subcommand)
		printMigrateUsage()
		os.Exit(1)
	}
}

func printMigrateUsage() {
	fmt.Printf(`Database Schema Migration Management

This command should be run while the mailbridge daemon is stopped to prevent
schema conflicts. It uses a database lock to ensure safety.

Usage:
  mailbridge-admin migrate <subcommand> [options]

Subcommands:
  up        Apply all pending upwards migrations
  down      Revert migrations
  version   Show the current migration version and dirty state
  force     Force the database to a specific version (for fixing dirty states)

Examples:
  mailbridge-admin migrate up
  mailbridge-admin migrate down --limit 2
  mailbridge-admin migrate down --all
  mailbridge-admin migrate version
  mailbridge-admin migrate force 1
`)
}

func handleMigrateUp(ctx context.Context) {
	fs := flag.NewFlagSet("migrate up", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	fs.Usage = func() {
		fmt.Println("Usage: mailbridge-admin migrate up [--config config.toml]")
		fmt.Println("Applies all pending upwards migrations.")
	}
	fs.Parse(os.Args[3:])

	m, sqlDB, err := getMigrateInstance(ctx, *configPath)
	if err != nil {
		logger.Fatal("failed to initialize migration tool", "error", err)
	}
	defer sqlDB.Close()

	if err := acquireExclusiveLock(ctx, sqlDB); err != nil {
		logger.Fatal("failed to acquire exclusive lock", "error", err)
	}
	// Use a background context for deferred cleanup to ensure it runs even
	// if the primary context is cancelled.
	defer releaseExclusiveLock(context.Background(), sqlDB)

	logger.Info("applying UP migrations")
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Fatal("failed to apply UP migrations", "error", err)
	}
	logger.Info("migrations applied successfully")
	showVersion(m)
}

func handleMigrateDown(ctx context.Context) {
	fs := flag.NewFlagSet("migrate down", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	limit := fs.Int("limit", 1, "Number of migrations to revert")
	all := fs.Bool("all", false, "Revert all migrations")
	fs.Usage = func() {
		fmt.Println("Usage: mailbridge-admin migrate down [--config config.toml] [--limit N | --all]")
		fmt.Println("Reverts migrations. Defaults to reverting one migration.")
	}
	fs.Parse(os.Args[3:])

	m, sqlDB, err := getMigrateInstance(ctx, *configPath)
	if err != nil {
		logger.Fatal("failed to initialize migration tool", "error", err)
	}
	defer sqlDB.Close()

	if err := acquireExclusiveLock(ctx, sqlDB); err != nil {
		logger.Fatal("failed to acquire exclusive lock", "error", err)
	}
	defer releaseExclusiveLock(context.Background(), sqlDB)

	if *all {
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal("failed to revert migrations", "error", err)
		}
	} else {
		if err := m.Steps(-*limit); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal("failed to revert migrations", "error", err)
		}
	}
	logger.Info("migrations reverted successfully")
	showVersion(m)
}

func handleMigrateVersion(ctx context.Context) {
	fs := flag.NewFlagSet("migrate version", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	fs.Parse(os.Args[3:])

	m, sqlDB, err := getMigrateInstance(ctx, *configPath)
	if err != nil {
		logger.Fatal("failed to initialize migration tool", "error", err)
	}
	defer sqlDB.Close()

	showVersion(m)
}

func handleMigrateForce(ctx context.Context) {
	fs := flag.NewFlagSet("migrate force", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	fs.Usage = func() {
		fmt.Println("Usage: mailbridge-admin migrate force <version> [--config config.toml]")
		fmt.Println("Forces the schema version without running migrations.")
	}
	if len(os.Args) < 4 {
		fs.Usage()
		os.Exit(1)
	}
	version, err := strconv.Atoi(os.Args[3])
	if err != nil {
		logger.Fatal("invalid version number", "value", os.Args[3])
	}
	fs.Parse(os.Args[4:])

	m, sqlDB, err := getMigrateInstance(ctx, *configPath)
	if err != nil {
		logger.Fatal("failed to initialize migration tool", "error", err)
	}
	defer sqlDB.Close()

	if err := acquireExclusiveLock(ctx, sqlDB); err != nil {
		logger.Fatal("failed to acquire exclusive lock", "error", err)
	}
	defer releaseExclusiveLock(context.Background(), sqlDB)

	if err := m.Force(version); err != nil {
		logger.Fatal("failed to force migration version", "error", err)
	}
	showVersion(m)
}

func showVersion(m *migrate.Migrate) {
	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("no migrations applied yet")
			return
		}
		logger.Fatal("failed to get migration version", "error", err)
	}
	logger.Info("current schema version", "version", version, "dirty", dirty)
}

func getMigrateInstance(ctx context.Context, configPath string) (*migrate.Migrate, *sql.DB, error) {
	cfg, err := loadAdminConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	dbCfg := cfg.Database.Write
	if dbCfg == nil || len(dbCfg.Hosts) == 0 {
		return nil, nil, errors.New("write database configuration is missing or has no hosts")
	}

	port := dbCfg.Port
	if port == "" {
		port = "5432"
	}
	sslMode := "disable"
	if dbCfg.TLSMode {
		sslMode = "require"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbCfg.User, dbCfg.Password, dbCfg.Hosts[0], port, dbCfg.Name, sslMode)

	sqlDB, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open sql.DB for migrations: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrations, err := fs.Sub(db.MigrationsFS, "migrations")
	if err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("failed to get migrations subdirectory: %w", err)
	}

	sourceDriver, err := iofs.New(migrations, ".")
	if err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("failed to create migration source driver: %w", err)
	}

	dbDriver, err := pgxv5.WithInstance(sqlDB, &pgxv5.Config{})
	if err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("failed to create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "pgx5", dbDriver)
	if err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return m, sqlDB, nil
}

func acquireExclusiveLock(ctx context.Context, sqlDB *sql.DB) error {
	var lockAcquired bool
	// Use a context with a short timeout to avoid waiting forever.
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := sqlDB.QueryRowContext(queryCtx, "SELECT pg_try_advisory_lock($1)", consts.MailbridgeAdvisoryLockID).Scan(&lockAcquired)
	if err != nil {
		return fmt.Errorf("failed to query for advisory lock: %w", err)
	}
	if !lockAcquired {
		return errors.New("another migration is already in progress")
	}
	return nil
}

func releaseExclusiveLock(ctx context.Context, sqlDB *sql.DB) {
	if _, err := sqlDB.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", consts.MailbridgeAdvisoryLockID); err != nil {
		logger.Warn("failed to release advisory lock", "error", err)
	}
}
