package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nextmail/mailbridge/consts"
	"github.com/nextmail/mailbridge/mirror"
)

// scanAccount reads one mirror_accounts row.
func scanAccount(row pgx.Row) (*mirror.Account, error) {
	var a mirror.Account
	var accountType string
	if err := row.Scan(&a.ServerID, &a.UserID, &accountType, &a.DisplayName, &a.PasswordHash, &a.Quota); err != nil {
		return nil, err
	}
	t, err := mirror.ParseAccountType(accountType)
	if err != nil {
		return nil, err
	}
	a.Type = t
	return &a, nil
}

// ListAccounts returns every account provisioned on the given server.
func (db *Database) ListAccounts(ctx context.Context, cid int64) ([]mirror.Account, error) {
	start := time.Now()
	rows, err := db.GetReadPoolWithContext(ctx).Query(ctx, `
		SELECT cid, uid, type, display_name, password, quota
		FROM mirror_accounts
		WHERE cid = $1
		ORDER BY uid
	`, cid)
	defer func() { trackQuery("list_accounts", start, err) }()
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts of server %d: %w", cid, err)
	}
	defer rows.Close()

	var accounts []mirror.Account
	for rows.Next() {
		account, scanErr := scanAccount(rows)
		if scanErr != nil {
			err = scanErr
			return nil, fmt.Errorf("failed to scan account: %w", scanErr)
		}
		accounts = append(accounts, *account)
	}
	if rows.Err() != nil {
		err = rows.Err()
		return nil, fmt.Errorf("failed to list accounts of server %d: %w", cid, err)
	}
	return accounts, nil
}

// FindAccount returns the account of uid on the given server, or
// consts.ErrDBNotFound.
func (db *Database) FindAccount(ctx context.Context, cid int64, uid string) (*mirror.Account, error) {
	start := time.Now()
	account, err := scanAccount(db.GetReadPoolWithContext(ctx).QueryRow(ctx, `
		SELECT cid, uid, type, display_name, password, quota
		FROM mirror_accounts
		WHERE cid = $1 AND uid = $2
	`, cid, uid))
	trackQuery("find_account", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, consts.ErrDBNotFound
		}
		return nil, fmt.Errorf("failed to find account %s on server %d: %w", uid, cid, err)
	}
	return account, nil
}

// CreateIndividualAccount provisions a directory user onto a server,
// snapshotting the display name and password hash at provisioning time.
// Provisioning the same (server, user) pair twice is a deliberate conflict,
// not an upsert: the second caller gets consts.ErrDBUniqueViolation.
func (db *Database) CreateIndividualAccount(ctx context.Context, cid int64, uid, displayName, passwordHash string) (*mirror.Account, error) {
	start := time.Now()
	account, err := scanAccount(db.GetWritePool().QueryRow(ctx, `
		INSERT INTO mirror_accounts (cid, uid, type, display_name, password, quota)
		VALUES ($1, $2, $3, $4, $5, 0)
		RETURNING cid, uid, type, display_name, password, quota
	`, cid, uid, string(mirror.AccountTypeIndividual), displayName, passwordHash))
	trackQuery("create_account", start, err)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return nil, consts.ErrDBUniqueViolation
		}
		return nil, fmt.Errorf("failed to provision account %s on server %d: %w", uid, cid, err)
	}
	return account, nil
}

// DeleteAccount removes the account and its mirrored emails in one
// transaction, so no observer sees an account without its emails or
// orphaned email rows.
func (db *Database) DeleteAccount(ctx context.Context, cid int64, uid string) error {
	start := time.Now()
	var err error
	defer func() { trackQuery("delete_account", start, err) }()

	tx, err := db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err = tx.Exec(ctx, `DELETE FROM mirror_emails WHERE cid = $1 AND uid = $2`, cid, uid); err != nil {
		return fmt.Errorf("failed to delete mirrored emails of %s on server %d: %w", uid, cid, err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM mirror_accounts WHERE cid = $1 AND uid = $2`, cid, uid)
	if err != nil {
		return fmt.Errorf("failed to delete account %s on server %d: %w", uid, cid, err)
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
