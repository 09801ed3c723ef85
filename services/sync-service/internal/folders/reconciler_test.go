package folders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stoik/mailsync/internal/models"
	synmodels "github.com/stoik/mailsync/services/sync-service/internal/models"
	"github.com/stoik/mailsync/services/sync-service/internal/store"
	"github.com/stoik/mailsync/services/sync-service/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFolders struct {
	folders []models.RemoteFolder
	err     error
}

func (f *fakeFolders) ListFolders(context.Context) ([]models.RemoteFolder, error) {
	return f.folders, f.err
}

func remote(names ...string) *fakeFolders {
	f := &fakeFolders{}
	for _, name := range names {
		f.folders = append(f.folders, models.RemoteFolder{ID: "id-" + name, Name: name})
	}
	return f
}

func setup(t *testing.T) (*store.Store, *synmodels.Origin, *Reconciler) {
	t.Helper()
	s := storetest.New(t)
	o := storetest.Origin(t, s)
	return s, o, NewReconciler(s, DefaultRoleTable(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func byName(folders []synmodels.Folder) map[string]synmodels.Folder {
	out := make(map[string]synmodels.Folder, len(folders))
	for _, f := range folders {
		out[f.Name] = f
	}
	return out
}

func TestReconcileDropsNestedFolders(t *testing.T) {
	ctx := context.Background()
	s, o, r := setup(t)

	result, err := r.Reconcile(ctx, remote("INBOX", "Sent", "Spam/Promotions", "Spam"), o, false)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Created)

	folders, err := s.ListFolders(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, folders, 3)

	got := byName(folders)
	assert.Equal(t, synmodels.FolderInbox, got["INBOX"].Type)
	assert.Equal(t, synmodels.FolderSent, got["Sent"].Type)
	assert.Equal(t, synmodels.FolderSpam, got["Spam"].Type)
	assert.Equal(t, "id-INBOX", got["INBOX"].FolderUID)
}

func TestReconcileKeepsSlashedFolderWithoutParent(t *testing.T) {
	ctx := context.Background()
	s, o, r := setup(t)

	result, err := r.Reconcile(ctx, remote("INBOX", "Archive/2023", `Clients\Acme`, "Projects", "Projects/2024"), o, false)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Created)

	folders, err := s.ListFolders(ctx, o.ID)
	require.NoError(t, err)
	got := byName(folders)
	require.Len(t, got, 4)
	assert.Contains(t, got, "Archive/2023")
	assert.Contains(t, got, "Clients/Acme")
	assert.Contains(t, got, "Projects")
	assert.NotContains(t, got, "Projects/2024")
	assert.Equal(t, "id-Archive/2023", got["Archive/2023"].FolderUID)
	assert.True(t, got["Archive/2023"].SyncEnabled)
}

func TestReconcileCreatesFoldersOnFirstSync(t *testing.T) {
	ctx := context.Background()
	s, o, r := setup(t)

	_, err := r.Reconcile(ctx, remote("INBOX", "Sent", "Trash", "Projects", "all", "  "), o, false)
	require.NoError(t, err)

	folders, err := s.ListFolders(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, folders, 4)

	got := byName(folders)
	for _, f := range folders {
		assert.Nil(t, f.OutdatedAt, f.Name)
		assert.False(t, f.ParentID.Valid, f.Name)
		assert.Nil(t, f.SyncStartDate, f.Name)
	}
	assert.True(t, got["INBOX"].SyncEnabled)
	assert.True(t, got["Projects"].SyncEnabled)
	assert.False(t, got["Trash"].SyncEnabled)
	assert.Equal(t, synmodels.FolderOther, got["Projects"].Type)
}

func TestReconcileOutdatesMissingFolder(t *testing.T) {
	ctx := context.Background()
	s, o, r := setup(t)

	_, err := r.Reconcile(ctx, remote("INBOX", "Sent", "Projects"), o, false)
	require.NoError(t, err)

	result, err := r.Reconcile(ctx, remote("INBOX", "Sent"), o, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Outdated)

	folders, err := s.ListFolders(ctx, o.ID)
	require.NoError(t, err)
	got := byName(folders)
	require.NotNil(t, got["Projects"].OutdatedAt)
	assert.False(t, got["Projects"].SyncEnabled)
	assert.Nil(t, got["INBOX"].OutdatedAt)
	assert.True(t, got["INBOX"].SyncEnabled)
	assert.Nil(t, got["Sent"].OutdatedAt)
}

func TestReconcileBypassOutdated(t *testing.T) {
	ctx := context.Background()
	s, o, r := setup(t)

	_, err := r.Reconcile(ctx, remote("INBOX", "Projects"), o, false)
	require.NoError(t, err)

	result, err := r.Reconcile(ctx, remote("INBOX"), o, true)
	require.NoError(t, err)
	assert.Zero(t, result.Outdated)

	folders, err := s.ListFolders(ctx, o.ID)
	require.NoError(t, err)
	assert.Nil(t, byName(folders)["Projects"].OutdatedAt)
}

func TestReconcileConverges(t *testing.T) {
	ctx := context.Background()
	s, o, r := setup(t)
	input := remote("INBOX", "Sent", "Junk E-mail", "Drafts", "My_Stuff", "Archive/2023", "Spam/Promotions")

	_, err := r.Reconcile(ctx, input, o, false)
	require.NoError(t, err)
	before, err := s.ListFolders(ctx, o.ID)
	require.NoError(t, err)

	result, err := r.Reconcile(ctx, input, o, false)
	require.NoError(t, err)
	assert.Equal(t, Result{Unchanged: 7}, result)

	after, err := s.ListFolders(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].FolderUID, after[i].FolderUID)
		assert.Equal(t, before[i].OutdatedAt, after[i].OutdatedAt)
	}
}

func TestReconcileMatchesByRoleAndName(t *testing.T) {
	ctx := context.Background()
	s, o, r := setup(t)

	inbox := storetest.Folder(t, s, o.ID, "old-inbox", "Inbox", synmodels.FolderInbox)
	stuff := storetest.Folder(t, s, o.ID, "old-stuff", "my stuff", synmodels.FolderOther)
	drafts := storetest.Folder(t, s, o.ID, "old-drafts", "Draft", synmodels.FolderOther)

	result, err := r.Reconcile(ctx, remote("INBOX", "My_Stuff", "Drafts"), o, false)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Updated)
	assert.Zero(t, result.Created)
	assert.Zero(t, result.Outdated)

	got, err := s.GetFolder(ctx, inbox.ID)
	require.NoError(t, err)
	assert.Equal(t, "id-INBOX", got.FolderUID)
	assert.Equal(t, "INBOX", got.Name)

	got, err = s.GetFolder(ctx, stuff.ID)
	require.NoError(t, err)
	assert.Equal(t, "id-My_Stuff", got.FolderUID)

	got, err = s.GetFolder(ctx, drafts.ID)
	require.NoError(t, err)
	assert.Equal(t, "id-Drafts", got.FolderUID)
}

func TestReconcileKeepsRenamedFolder(t *testing.T) {
	ctx := context.Background()
	s, o, r := setup(t)

	_, err := r.Reconcile(ctx, remote("INBOX", "Projects"), o, false)
	require.NoError(t, err)

	renamed := remote("INBOX")
	renamed.folders = append(renamed.folders, models.RemoteFolder{ID: "id-Projects", Name: "Work"})
	result, err := r.Reconcile(ctx, renamed, o, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Zero(t, result.Outdated)

	folders, err := s.ListFolders(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, folders, 2)
	assert.Equal(t, "Work", byName(folders)["Work"].Name)
}

func TestReconcileMailboxScopedSetsSyncStartDate(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	o := storetest.Origin(t, s, func(o *synmodels.Origin) {
		o.MailboxID = uuid.NullUUID{UUID: uuid.New(), Valid: true}
	})
	r := NewReconciler(s, DefaultRoleTable(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := r.Reconcile(ctx, remote("INBOX"), o, false)
	require.NoError(t, err)

	folders, err := s.ListFolders(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, folders, 1)
	assert.NotNil(t, folders[0].SyncStartDate)
}

func TestReconcileRemoteErrorWritesNothing(t *testing.T) {
	ctx := context.Background()
	s, o, r := setup(t)

	_, err := r.Reconcile(ctx, &fakeFolders{err: errors.New("boom")}, o, false)
	require.Error(t, err)

	folders, err := s.ListFolders(ctx, o.ID)
	require.NoError(t, err)
	assert.Empty(t, folders)
}

func TestClassify(t *testing.T) {
	table := DefaultRoleTable()
	tests := map[string]synmodels.FolderType{
		"INBOX":         synmodels.FolderInbox,
		"Sent Items":    synmodels.FolderSent,
		"Deleted Items": synmodels.FolderTrash,
		"Junk E-mail":   synmodels.FolderSpam,
		"Bulk Folder":   synmodels.FolderSpam,
		"SPAM":          synmodels.FolderSpam,
		"Projects":      synmodels.FolderOther,
	}
	for name, want := range tests {
		assert.Equal(t, want, table.Classify(name), name)
	}
}
