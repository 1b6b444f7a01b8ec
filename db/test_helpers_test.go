package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/require"

	"github.com/nextmail/mailbridge/config"
)

// setupTestDatabase connects to the local PostgreSQL instance described by
// config-test.toml and applies the schema. Integration tests are skipped in
// short mode.
func setupTestDatabase(t *testing.T) *Database {
	t.Helper()
	ctx := context.Background()

	configPath, err := findTestConfig()
	require.NoError(t, err, "config-test.toml not found. Please ensure it exists in the project root")

	var cfg config.Config
	_, err = toml.DecodeFile(configPath, &cfg)
	require.NoError(t, err, "Failed to load test config. Please check config-test.toml syntax")
	require.NotNil(t, cfg.Database.Write, "config-test.toml carries no [database.write] section")

	database, err := NewDatabaseFromConfig(ctx, &cfg.Database)
	require.NoError(t, err, "Failed to connect to test database. Please ensure PostgreSQL is running and the %s database exists", cfg.Database.Write.Name)

	return database
}

// findTestConfig walks up the directory tree to find config-test.toml.
func findTestConfig() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		configPath := filepath.Join(dir, "config-test.toml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("config-test.toml not found in current directory or any parent directory")
}

// createTestServer inserts a fresh server config and registers cleanup.
func createTestServer(t *testing.T, database *Database) int64 {
	t.Helper()
	ctx := context.Background()

	cfg, err := database.CreateConfig(ctx)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = database.DeleteConfig(context.Background(), cfg.ID)
	})
	return cfg.ID
}
