package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/mailsync/services/sync-service/internal/models"
	"github.com/stoik/mailsync/services/sync-service/internal/store"
	"github.com/stoik/mailsync/services/sync-service/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOriginAssignsDefault(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	owner := uuid.New()

	first := storetest.Origin(t, s, func(o *models.Origin) { o.OwnerID = owner })
	second := storetest.Origin(t, s, func(o *models.Origin) { o.OwnerID = owner })

	assert.True(t, first.IsDefault)
	assert.False(t, second.IsDefault)

	got, err := s.GetOrigin(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDefault)
	assert.True(t, got.IsActive)
	assert.Equal(t, models.SyncNew, got.SyncCode)
	assert.Nil(t, got.SyncCodeUpdatedAt)
}

func TestCreateOriginRejectsDuplicateMailbox(t *testing.T) {
	s := storetest.New(t)
	owner := uuid.New()

	storetest.Origin(t, s, func(o *models.Origin) {
		o.OwnerID = owner
		o.MailboxName = "a@example.com"
	})

	err := s.CreateOrigin(context.Background(), &models.Origin{
		OwnerID:     owner,
		MailboxName: "a@example.com",
		AccountID:   "grant-x",
		Provider:    models.ProviderAPI,
	})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestDeactivateOriginMovesDefault(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	owner := uuid.New()

	first := storetest.Origin(t, s, func(o *models.Origin) { o.OwnerID = owner })
	second := storetest.Origin(t, s, func(o *models.Origin) { o.OwnerID = owner })

	require.NoError(t, s.DeactivateOrigin(ctx, first.ID))

	got, err := s.GetOrigin(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.False(t, got.IsDefault)

	got, err = s.GetOrigin(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDefault)
}

func TestGetOriginNotFound(t *testing.T) {
	s := storetest.New(t)
	_, err := s.GetOrigin(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestClaimOriginIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	o := storetest.Origin(t, s)
	now := time.Now().UTC()

	ok, err := s.ClaimOrigin(ctx, o.ID, models.SyncNew, models.SyncInProcess, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ClaimOrigin(ctx, o.ID, models.SyncNew, models.SyncInProcess, now)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetOrigin(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncInProcess, got.SyncCode)
	require.NotNil(t, got.SyncCodeUpdatedAt)
	assert.WithinDuration(t, now, *got.SyncCodeUpdatedAt, time.Second)
}

func TestListSyncCandidatesFiltersRecentAndInactive(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	now := time.Now().UTC()

	never := storetest.Origin(t, s)
	old := storetest.Origin(t, s)
	recent := storetest.Origin(t, s)
	inactive := storetest.Origin(t, s)

	require.NoError(t, s.SetOriginSyncCode(ctx, old.ID, models.SyncSuccess, now.Add(-time.Hour)))
	require.NoError(t, s.SetOriginSyncCode(ctx, recent.ID, models.SyncSuccess, now.Add(-time.Minute)))
	require.NoError(t, s.DeactivateOrigin(ctx, inactive.ID))

	got, err := s.ListSyncCandidates(ctx, now.Add(-5*time.Minute))
	require.NoError(t, err)

	var ids []uuid.UUID
	for _, o := range got {
		ids = append(ids, o.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{never.ID, old.ID}, ids)
}

func TestResetHangedOrigins(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	now := time.Now().UTC()

	hanged := storetest.Origin(t, s)
	running := storetest.Origin(t, s)
	require.NoError(t, s.SetOriginSyncCode(ctx, hanged.ID, models.SyncInProcess, now.Add(-48*time.Hour)))
	require.NoError(t, s.SetOriginSyncCode(ctx, running.ID, models.SyncInProcess, now.Add(-time.Minute)))

	n, err := s.ResetHangedOrigins(ctx, now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := s.GetOrigin(ctx, hanged.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncFailed, got.SyncCode)

	count, err := s.CountOriginsInState(ctx, models.SyncInProcess)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestListFoldersToSyncOrdersNeverSyncedFirst(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	o := storetest.Origin(t, s)

	synced := storetest.Folder(t, s, o.ID, "f-1", "Inbox", models.FolderInbox)
	fresh := storetest.Folder(t, s, o.ID, "f-2", "Sent", models.FolderSent)
	disabled := storetest.Folder(t, s, o.ID, "f-3", "Trash", models.FolderTrash)

	require.NoError(t, s.SaveFolderSyncState(ctx, synced.ID, nil, time.Now().UTC()))
	require.NoError(t, s.DisableFolderSync(ctx, disabled.ID))

	got, err := s.ListFoldersToSync(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, fresh.ID, got[0].ID)
	assert.Equal(t, synced.ID, got[1].ID)
}

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	o := storetest.Origin(t, s)

	err := s.InTx(ctx, func(tx *store.Tx) error {
		f := &models.Folder{OriginID: o.ID, FolderUID: "f-1", Name: "Inbox", FullName: "Inbox", Type: models.FolderInbox}
		require.NoError(t, tx.InsertFolder(ctx, f))
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	folders, err := s.ListFolders(ctx, o.ID)
	require.NoError(t, err)
	assert.Empty(t, folders)
}

func TestMessagesLookups(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	o := storetest.Origin(t, s)
	f := storetest.Folder(t, s, o.ID, "f-1", "Inbox", models.FolderInbox)
	sent := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	m := &models.Message{
		OriginID:     o.ID,
		UID:          "uid-1",
		MessageID:    "<a@example.com>",
		ThreadID:     "t-1",
		Subject:      "Hello",
		FromAddress:  "bob@example.com",
		ToAddresses:  models.AddressList{"alice@example.com"},
		SentAt:       sent,
		ReceivedAt:   sent,
		InternalDate: sent,
	}
	require.NoError(t, s.InsertMessage(ctx, m))
	require.NoError(t, s.InsertMessageUser(ctx, &models.MessageUser{
		MessageID: m.ID, FolderID: f.ID, OriginID: o.ID, OwnerID: o.OwnerID,
	}))
	require.NoError(t, s.InsertMessageContext(ctx, models.MessageContext{MessageID: m.ID, ContextType: "deal", ContextID: "42"}))
	require.NoError(t, s.InsertMessageContext(ctx, models.MessageContext{MessageID: m.ID, ContextType: "deal", ContextID: "42"}))

	uids, err := s.ExistingUIDs(ctx, o.ID, []string{"uid-1", "uid-2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]uuid.UUID{"uid-1": m.ID}, uids)

	byHeader, err := s.MessagesByMessageIDs(ctx, o.ID, []string{"<a@example.com>"}, nil)
	require.NoError(t, err)
	require.Len(t, byHeader, 1)
	assert.Equal(t, models.AddressList{"alice@example.com"}, byHeader[0].ToAddresses)
	assert.True(t, sent.Equal(byHeader[0].SentAt))

	byID, err := s.MessagesByMessageIDs(ctx, o.ID, nil, []uuid.UUID{m.ID})
	require.NoError(t, err)
	assert.Len(t, byID, 1)

	users, err := s.MessageUsersByMessages(ctx, o.ID, []uuid.UUID{m.ID})
	require.NoError(t, err)
	assert.Len(t, users, 1)

	contexts, err := s.ThreadContexts(ctx, o.ID, "t-1", nil)
	require.NoError(t, err)
	assert.Len(t, contexts, 1)

	contexts, err = s.ThreadContexts(ctx, o.ID, "t-other", []string{"<a@example.com>", "<b@example.com>"})
	require.NoError(t, err)
	assert.Len(t, contexts, 1)

	contexts, err = s.ThreadContexts(ctx, o.ID, "t-other", nil)
	require.NoError(t, err)
	assert.Empty(t, contexts)
}
