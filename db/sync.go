package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nextmail/mailbridge/mirror"
)

// SyncResult reports what a directory sync transaction touched.
type SyncResult struct {
	AccountsUpdated int64
	EmailsInserted  int64
}

// SyncUser applies a directory-side attribute change to every server the
// user is provisioned on, in a single transaction:
//
//  1. display name, password hash and a quota reset to 0 are written to all
//     the user's mirrored accounts,
//  2. all primary email rows of the user are deleted,
//  3. when the directory's current address is plausible (contains "@") it
//     is inserted as the new primary on every provisioned server.
//
// On any failure nothing is applied; external observers see either the full
// pre-state or the full post-state. This is the consistency backbone: every
// external attribute change funnels through here.
func (db *Database) SyncUser(ctx context.Context, uid, displayName, passwordHash string, email *string) (*SyncResult, error) {
	start := time.Now()
	var err error
	defer func() { trackQuery("sync_user", start, err) }()

	tx, err := db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var result SyncResult

	tag, err := tx.Exec(ctx, `
		UPDATE mirror_accounts
		SET display_name = $2, password = $3, quota = 0
		WHERE uid = $1
	`, uid, displayName, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to update mirrored accounts of %s: %w", uid, err)
	}
	result.AccountsUpdated = tag.RowsAffected()

	if _, err = deleteEmailsByType(ctx, tx, uid, mirror.EmailTypePrimary); err != nil {
		return nil, err
	}

	if email != nil && strings.Contains(*email, "@") {
		result.EmailsInserted, err = insertEmailAllServers(ctx, tx, uid, *email, mirror.EmailTypePrimary)
		if err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &result, nil
}
