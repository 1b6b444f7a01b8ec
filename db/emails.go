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

// scanEmail reads one mirror_emails row.
func scanEmail(row pgx.Row) (*mirror.Email, error) {
	var e mirror.Email
	var emailType string
	if err := row.Scan(&e.ServerID, &e.UserID, &e.Address, &emailType); err != nil {
		return nil, err
	}
	t, err := mirror.ParseEmailType(emailType)
	if err != nil {
		return nil, err
	}
	e.Type = t
	return &e, nil
}

// FindPrimaryEmail returns the primary address of uid on the given server,
// or consts.ErrDBNotFound when the account has none.
func (db *Database) FindPrimaryEmail(ctx context.Context, cid int64, uid string) (*mirror.Email, error) {
	start := time.Now()
	email, err := scanEmail(db.GetReadPoolWithContext(ctx).QueryRow(ctx, `
		SELECT cid, uid, email, type
		FROM mirror_emails
		WHERE cid = $1 AND uid = $2 AND type = $3
	`, cid, uid, string(mirror.EmailTypePrimary)))
	trackQuery("find_primary_email", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, consts.ErrDBNotFound
		}
		return nil, fmt.Errorf("failed to find primary email of %s on server %d: %w", uid, cid, err)
	}
	return email, nil
}

// SetPrimaryEmail replaces the primary address of uid on the given server:
// any existing primary row is deleted and the new one inserted in the same
// transaction, so a concurrent reader sees either the old primary or the
// new one, never zero or two. Replace-not-update keeps a stale duplicate
// primary from ever surviving an address change.
func (db *Database) SetPrimaryEmail(ctx context.Context, cid int64, uid, address string) (*mirror.Email, error) {
	start := time.Now()
	var err error
	defer func() { trackQuery("set_primary_email", start, err) }()

	tx, err := db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err = tx.Exec(ctx, `
		DELETE FROM mirror_emails WHERE cid = $1 AND uid = $2 AND type = $3
	`, cid, uid, string(mirror.EmailTypePrimary)); err != nil {
		return nil, fmt.Errorf("failed to clear primary email of %s on server %d: %w", uid, cid, err)
	}

	email, err := scanEmail(tx.QueryRow(ctx, `
		INSERT INTO mirror_emails (cid, uid, email, type)
		VALUES ($1, $2, $3, $4)
		RETURNING cid, uid, email, type
	`, cid, uid, address, string(mirror.EmailTypePrimary)))
	if err != nil {
		return nil, fmt.Errorf("failed to set primary email of %s on server %d: %w", uid, cid, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return email, nil
}

// execer covers pgxpool.Pool and pgx.Tx, so the cross-server email
// mutations run standalone or inside a larger transaction.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func deleteEmailsByType(ctx context.Context, q execer, uid string, emailType mirror.EmailType) (int64, error) {
	tag, err := q.Exec(ctx, `
		DELETE FROM mirror_emails WHERE uid = $1 AND type = $2
	`, uid, string(emailType))
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s emails of %s: %w", emailType, uid, err)
	}
	return tag.RowsAffected(), nil
}

func insertEmailAllServers(ctx context.Context, q execer, uid, address string, emailType mirror.EmailType) (int64, error) {
	tag, err := q.Exec(ctx, `
		INSERT INTO mirror_emails (cid, uid, email, type)
		SELECT cid, uid, $2, $3 FROM mirror_accounts WHERE uid = $1
	`, uid, address, string(emailType))
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s email for %s: %w", emailType, uid, err)
	}
	return tag.RowsAffected(), nil
}

// DeleteEmailsByType removes every address of the given type for a user
// across all servers the user is provisioned on.
func (db *Database) DeleteEmailsByType(ctx context.Context, uid string, emailType mirror.EmailType) error {
	start := time.Now()
	_, err := deleteEmailsByType(ctx, db.GetWritePool(), uid, emailType)
	trackQuery("delete_emails_by_type", start, err)
	return err
}

// InsertEmailAllServers fans an address out to every server the user is
// provisioned on, consistent with mirror-to-all-configured-servers
// semantics. Returns the number of rows written.
func (db *Database) InsertEmailAllServers(ctx context.Context, uid, address string, emailType mirror.EmailType) (int64, error) {
	start := time.Now()
	n, err := insertEmailAllServers(ctx, db.GetWritePool(), uid, address, emailType)
	trackQuery("insert_email_all_servers", start, err)
	return n, err
}
