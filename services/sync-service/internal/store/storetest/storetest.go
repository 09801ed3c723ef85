// Package storetest opens throwaway SQLite stores for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/mailsync/services/sync-service/internal/db"
	"github.com/stoik/mailsync/services/sync-service/internal/models"
	"github.com/stoik/mailsync/services/sync-service/internal/store"
	"github.com/stretchr/testify/require"
)

// New returns a migrated store backed by a SQLite file in t.TempDir
func New(t testing.TB) *store.Store {
	t.Helper()

	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, filepath.Join(t.TempDir(), "mailsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, db.Migrate(ctx, conn))
	return store.New(conn)
}

// Origin creates an active API origin with the given mutators applied
func Origin(t testing.TB, s *store.Store, opts ...func(*models.Origin)) *models.Origin {
	t.Helper()

	o := &models.Origin{
		OwnerID:     uuid.New(),
		MailboxName: "user-" + uuid.NewString()[:8] + "@example.com",
		AccountID:   "grant-" + uuid.NewString()[:8],
		Provider:    models.ProviderAPI,
		TokenType:   "bearer",
		AccessToken: "token",
	}
	for _, opt := range opts {
		opt(o)
	}
	require.NoError(t, s.CreateOrigin(context.Background(), o))
	return o
}

// Folder inserts a sync-enabled top-level folder for an origin
func Folder(t testing.TB, s *store.Store, originID uuid.UUID, uid, name string, typ models.FolderType) *models.Folder {
	t.Helper()

	f := &models.Folder{
		OriginID:    originID,
		FolderUID:   uid,
		Name:        name,
		FullName:    name,
		Type:        typ,
		SyncEnabled: true,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, s.InsertFolder(context.Background(), f))
	return f
}
