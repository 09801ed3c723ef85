package cleanup

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stoik/mailsync/services/sync-service/internal/models"
	"github.com/stoik/mailsync/services/sync-service/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRemovesOutdatedFoldersAndLinks(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	o := storetest.Origin(t, s)
	now := time.Now().UTC()

	inbox := storetest.Folder(t, s, o.ID, "f-inbox", "INBOX", models.FolderInbox)
	gone := storetest.Folder(t, s, o.ID, "f-gone", "Old", models.FolderOther)
	empty := storetest.Folder(t, s, o.ID, "f-empty", "Empty", models.FolderOther)

	m := &models.Message{OriginID: o.ID, UID: "u1", MessageID: "<1@x>", SentAt: now, ReceivedAt: now, InternalDate: now}
	require.NoError(t, s.InsertMessage(ctx, m))
	for _, f := range []*models.Folder{inbox, gone} {
		require.NoError(t, s.InsertMessageUser(ctx, &models.MessageUser{
			MessageID: m.ID, FolderID: f.ID, OriginID: o.ID, OwnerID: o.OwnerID,
		}))
	}
	require.NoError(t, s.MarkFolderOutdated(ctx, gone.ID, now))
	require.NoError(t, s.MarkFolderOutdated(ctx, empty.ID, now))

	result, err := New(s, slog.New(slog.NewTextHandler(io.Discard, nil))).Run(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, Result{MessageUsers: 1, Folders: 2}, result)

	folders, err := s.ListFolders(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, folders, 1)
	assert.Equal(t, inbox.ID, folders[0].ID)

	users, err := s.ListMessageUsers(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, inbox.ID, users[0].FolderID)

	messages, err := s.ListMessages(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}
