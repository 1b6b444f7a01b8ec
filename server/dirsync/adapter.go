// Package dirsync reacts to directory lifecycle events and keeps the mirror
// stores coherent with directory state.
package dirsync

import (
	"context"
	"fmt"

	"github.com/nextmail/mailbridge/db"
	"github.com/nextmail/mailbridge/directory"
	"github.com/nextmail/mailbridge/logger"
	"github.com/nextmail/mailbridge/pkg/metrics"
)

// UserSyncer is the slice of the database the adapter needs.
type UserSyncer interface {
	SyncUser(ctx context.Context, uid, displayName, passwordHash string, email *string) (*db.SyncResult, error)
}

// Adapter applies directory events to the mirror stores. Handling is
// synchronous: events either fully commit or fully roll back, and there is
// no queue or retry between the event source and the store.
type Adapter struct {
	syncer UserSyncer
}

// New creates an event adapter over the given store.
func New(syncer UserSyncer) *Adapter {
	return &Adapter{syncer: syncer}
}

// HandlePasswordUpdated processes a password/profile change for one user.
// The event also fires on plain profile edits, so the full attribute set is
// re-mirrored every time: account info on every provisioned server, then a
// replace of the primary email across all servers.
func (a *Adapter) HandlePasswordUpdated(ctx context.Context, event directory.PasswordUpdatedEvent) error {
	if event.UID == "" {
		metrics.SyncEventsTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("event carries no user id")
	}

	result, err := a.syncer.SyncUser(ctx, event.UID, event.DisplayName, event.PasswordHash, event.Email)
	if err != nil {
		metrics.SyncEventsTotal.WithLabelValues("error").Inc()
		logger.Error("directory sync failed", "uid", event.UID, "error", err)
		return fmt.Errorf("failed to sync user %s: %w", event.UID, err)
	}

	metrics.SyncEventsTotal.WithLabelValues("success").Inc()
	metrics.SyncAccountsUpdated.Add(float64(result.AccountsUpdated))
	logger.Info("directory event applied",
		"uid", event.UID,
		"accounts_updated", result.AccountsUpdated,
		"emails_inserted", result.EmailsInserted)
	return nil
}
