package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nextmail/mailbridge/consts"
	"github.com/nextmail/mailbridge/mirror"
)

const (
	maxEndpointLen = 128
	maxUsernameLen = 128
	maxPasswordLen = 256
)

// scanConfig reads one server_configs row.
func scanConfig(row pgx.Row) (*mirror.ServerConfig, error) {
	var cfg mirror.ServerConfig
	var health string
	if err := row.Scan(&cfg.ID, &cfg.Endpoint, &cfg.Username, &cfg.Password, &health, &cfg.Expires); err != nil {
		return nil, err
	}
	h, err := mirror.ParseHealth(health)
	if err != nil {
		return nil, err
	}
	cfg.Health = h
	return &cfg, nil
}

// ListConfigs returns every configured server ordered by id.
func (db *Database) ListConfigs(ctx context.Context) ([]mirror.ServerConfig, error) {
	start := time.Now()
	rows, err := db.GetReadPoolWithContext(ctx).Query(ctx, `
		SELECT cid, endpoint, username, password, health, expires
		FROM server_configs
		ORDER BY cid
	`)
	defer func() { trackQuery("list_configs", start, err) }()
	if err != nil {
		return nil, fmt.Errorf("failed to list server configs: %w", err)
	}
	defer rows.Close()

	var configs []mirror.ServerConfig
	for rows.Next() {
		cfg, scanErr := scanConfig(rows)
		if scanErr != nil {
			err = scanErr
			return nil, fmt.Errorf("failed to scan server config: %w", scanErr)
		}
		configs = append(configs, *cfg)
	}
	if rows.Err() != nil {
		err = rows.Err()
		return nil, fmt.Errorf("failed to list server configs: %w", err)
	}
	return configs, nil
}

// CreateConfig inserts a new server with empty credentials and health set to
// invalid, and returns the stored row.
func (db *Database) CreateConfig(ctx context.Context) (*mirror.ServerConfig, error) {
	start := time.Now()
	cfg, err := scanConfig(db.GetWritePool().QueryRow(ctx, `
		INSERT INTO server_configs (endpoint, username, password, health, expires)
		VALUES ('', '', '', $1, now())
		RETURNING cid, endpoint, username, password, health, expires
	`, string(mirror.HealthInvalid)))
	trackQuery("create_config", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to create server config: %w", err)
	}
	return cfg, nil
}

// FindConfig returns the server with the given id, or consts.ErrDBNotFound.
func (db *Database) FindConfig(ctx context.Context, cid int64) (*mirror.ServerConfig, error) {
	start := time.Now()
	cfg, err := scanConfig(db.GetReadPoolWithContext(ctx).QueryRow(ctx, `
		SELECT cid, endpoint, username, password, health, expires
		FROM server_configs
		WHERE cid = $1
	`, cid))
	trackQuery("find_config", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, consts.ErrDBNotFound
		}
		return nil, fmt.Errorf("failed to find server config %d: %w", cid, err)
	}
	return cfg, nil
}

// validateCredential rejects malformed or oversized credential fields before
// they reach storage. An empty endpoint is legal: freshly created servers
// start unconfigured.
func validateCredential(cfg mirror.ServerConfig) error {
	if cfg.Endpoint != "" && !mirror.ValidEndpoint(cfg.Endpoint) {
		return consts.ErrInvalidEndpoint
	}
	if len(cfg.Endpoint) > maxEndpointLen {
		return fmt.Errorf("%w: endpoint exceeds %d characters", consts.ErrInvalidEndpoint, maxEndpointLen)
	}
	if len(cfg.Username) > maxUsernameLen {
		return fmt.Errorf("username exceeds %d characters", maxUsernameLen)
	}
	if len(cfg.Password) > maxPasswordLen {
		return fmt.Errorf("password exceeds %d characters", maxPasswordLen)
	}
	return nil
}

// UpdateConfig persists rotated credentials and returns the stored row.
// Health is never recomputed here; only explicit health probes touch it.
func (db *Database) UpdateConfig(ctx context.Context, cfg mirror.ServerConfig) (*mirror.ServerConfig, error) {
	if err := validateCredential(cfg); err != nil {
		return nil, err
	}

	start := time.Now()
	stored, err := scanConfig(db.GetWritePool().QueryRow(ctx, `
		UPDATE server_configs
		SET endpoint = $2, username = $3, password = $4
		WHERE cid = $1
		RETURNING cid, endpoint, username, password, health, expires
	`, cfg.ID, cfg.Endpoint, cfg.Username, cfg.Password))
	trackQuery("update_config", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, consts.ErrDBNotFound
		}
		return nil, fmt.Errorf("failed to update server config %d: %w", cfg.ID, err)
	}
	return stored, nil
}

// RefreshConfigHealth persists the result of a health probe together with
// its expiry, and returns the stored row.
func (db *Database) RefreshConfigHealth(ctx context.Context, cid int64, health mirror.Health, expires time.Time) (*mirror.ServerConfig, error) {
	start := time.Now()
	stored, err := scanConfig(db.GetWritePool().QueryRow(ctx, `
		UPDATE server_configs
		SET health = $2, expires = $3
		WHERE cid = $1
		RETURNING cid, endpoint, username, password, health, expires
	`, cid, string(health), expires))
	trackQuery("refresh_config_health", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, consts.ErrDBNotFound
		}
		return nil, fmt.Errorf("failed to refresh health of server config %d: %w", cid, err)
	}
	return stored, nil
}

// DeleteConfig removes a server and every mirror row referencing it in one
// transaction. The schema also cascades, but the explicit child-then-parent
// order keeps the guarantee independent of the storage engine.
func (db *Database) DeleteConfig(ctx context.Context, cid int64) error {
	start := time.Now()
	var err error
	defer func() { trackQuery("delete_config", start, err) }()

	tx, err := db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err = tx.Exec(ctx, `DELETE FROM mirror_emails WHERE cid = $1`, cid); err != nil {
		return fmt.Errorf("failed to delete mirrored emails of server %d: %w", cid, err)
	}
	if _, err = tx.Exec(ctx, `DELETE FROM mirror_accounts WHERE cid = $1`, cid); err != nil {
		return fmt.Errorf("failed to delete mirrored accounts of server %d: %w", cid, err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM server_configs WHERE cid = $1`, cid)
	if err != nil {
		return fmt.Errorf("failed to delete server config %d: %w", cid, err)
	}
	if tag.RowsAffected() == 0 {
		err = consts.ErrDBNotFound
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
