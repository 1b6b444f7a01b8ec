package dirsync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nextmail/mailbridge/db"
	"github.com/nextmail/mailbridge/directory"
)

type mockSyncer struct {
	mock.Mock
}

func (m *mockSyncer) SyncUser(ctx context.Context, uid, displayName, passwordHash string, email *string) (*db.SyncResult, error) {
	args := m.Called(ctx, uid, displayName, passwordHash, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.SyncResult), args.Error(1)
}

func TestHandlePasswordUpdated(t *testing.T) {
	ctx := context.Background()
	email := "alice@example.com"

	t.Run("full event is forwarded to the store", func(t *testing.T) {
		syncer := new(mockSyncer)
		syncer.On("SyncUser", ctx, "alice", "Alice A.", "$2y$10$hash", &email).
			Return(&db.SyncResult{AccountsUpdated: 2, EmailsInserted: 2}, nil)

		adapter := New(syncer)
		err := adapter.HandlePasswordUpdated(ctx, directory.PasswordUpdatedEvent{
			UID:          "alice",
			DisplayName:  "Alice A.",
			PasswordHash: "$2y$10$hash",
			Email:        &email,
		})

		require.NoError(t, err)
		syncer.AssertExpectations(t)
	})

	t.Run("event without uid is rejected before the store", func(t *testing.T) {
		syncer := new(mockSyncer)

		adapter := New(syncer)
		err := adapter.HandlePasswordUpdated(ctx, directory.PasswordUpdatedEvent{
			DisplayName:  "No One",
			PasswordHash: "$2y$10$hash",
		})

		require.Error(t, err)
		syncer.AssertNotCalled(t, "SyncUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("store failure surfaces with the uid", func(t *testing.T) {
		syncer := new(mockSyncer)
		syncer.On("SyncUser", ctx, "bob", "", "", (*string)(nil)).
			Return(nil, errors.New("tx aborted"))

		adapter := New(syncer)
		err := adapter.HandlePasswordUpdated(ctx, directory.PasswordUpdatedEvent{UID: "bob"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "bob")
		syncer.AssertExpectations(t)
	})

	t.Run("nil email clears without inserting", func(t *testing.T) {
		syncer := new(mockSyncer)
		syncer.On("SyncUser", ctx, "carol", "Carol", "$2y$10$hash", (*string)(nil)).
			Return(&db.SyncResult{AccountsUpdated: 1, EmailsInserted: 0}, nil)

		adapter := New(syncer)
		err := adapter.HandlePasswordUpdated(ctx, directory.PasswordUpdatedEvent{
			UID:          "carol",
			DisplayName:  "Carol",
			PasswordHash: "$2y$10$hash",
		})

		require.NoError(t, err)
		syncer.AssertExpectations(t)
	})
}
