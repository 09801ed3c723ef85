package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/mailsync/services/sync-service/internal/models"
)

const folderColumns = `id, origin_id, folder_uid, name, full_name, type, parent_id,
	sync_enabled, outdated_at, synchronized_at, sync_start_date, created_at`

// GetFolder returns a folder by ID
func (q *Queries) GetFolder(ctx context.Context, id uuid.UUID) (*models.Folder, error) {
	var folder models.Folder
	if err := q.get(ctx, &folder, `SELECT `+folderColumns+` FROM folders WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to get folder %s: %w", id, err)
	}
	return &folder, nil
}

// ListFolders returns all folders of an origin, outdated ones included
func (q *Queries) ListFolders(ctx context.Context, originID uuid.UUID) ([]models.Folder, error) {
	var folders []models.Folder
	err := q.selectAll(ctx, &folders,
		`SELECT `+folderColumns+` FROM folders WHERE origin_id = ? ORDER BY created_at, name`, originID)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	return folders, nil
}

// ListTopLevelFolders returns the non-outdated folders without a parent
func (q *Queries) ListTopLevelFolders(ctx context.Context, originID uuid.UUID) ([]models.Folder, error) {
	var folders []models.Folder
	err := q.selectAll(ctx, &folders, `SELECT `+folderColumns+` FROM folders
		WHERE origin_id = ? AND outdated_at IS NULL AND parent_id IS NULL
		ORDER BY created_at, name`, originID)
	if err != nil {
		return nil, fmt.Errorf("failed to list top-level folders: %w", err)
	}
	return folders, nil
}

// ListFoldersToSync returns the sync-enabled top-level folders, never-synced first
func (q *Queries) ListFoldersToSync(ctx context.Context, originID uuid.UUID) ([]models.Folder, error) {
	var folders []models.Folder
	err := q.selectAll(ctx, &folders, `SELECT `+folderColumns+` FROM folders
		WHERE origin_id = ? AND sync_enabled = ? AND outdated_at IS NULL AND parent_id IS NULL
		ORDER BY sync_start_date ASC NULLS FIRST, created_at, name`,
		originID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders to sync: %w", err)
	}
	return folders, nil
}

// InsertFolder creates a folder, assigning ID and creation time when unset
func (q *Queries) InsertFolder(ctx context.Context, f *models.Folder) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	_, err := q.exec(ctx, `INSERT INTO folders (`+folderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.OriginID, f.FolderUID, f.Name, f.FullName, f.Type, f.ParentID,
		f.SyncEnabled, utc(f.OutdatedAt), utc(f.SynchronizedAt), utc(f.SyncStartDate), f.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert folder %s: %w", f.FullName, err)
	}
	return nil
}

// UpdateFolder writes the remote-derived attributes of a folder
func (q *Queries) UpdateFolder(ctx context.Context, f *models.Folder) error {
	_, err := q.exec(ctx, `UPDATE folders
		SET folder_uid = ?, name = ?, full_name = ?, type = ?, sync_enabled = ?, outdated_at = ?
		WHERE id = ?`,
		f.FolderUID, f.Name, f.FullName, f.Type, f.SyncEnabled, utc(f.OutdatedAt), f.ID)
	if err != nil {
		return fmt.Errorf("failed to update folder %s: %w", f.ID, err)
	}
	return nil
}

// MarkFolderOutdated flags a folder as gone upstream and stops syncing it
func (q *Queries) MarkFolderOutdated(ctx context.Context, id uuid.UUID, now time.Time) error {
	_, err := q.exec(ctx, `UPDATE folders SET outdated_at = ?, sync_enabled = ? WHERE id = ?`,
		now.UTC(), false, id)
	if err != nil {
		return fmt.Errorf("failed to mark folder %s outdated: %w", id, err)
	}
	return nil
}

// DisableFolderSync turns off synchronization of one folder
func (q *Queries) DisableFolderSync(ctx context.Context, id uuid.UUID) error {
	if _, err := q.exec(ctx, `UPDATE folders SET sync_enabled = ? WHERE id = ?`, false, id); err != nil {
		return fmt.Errorf("failed to disable folder %s: %w", id, err)
	}
	return nil
}

// SaveFolderSyncState stores the watermark and the start of the last pass
func (q *Queries) SaveFolderSyncState(ctx context.Context, id uuid.UUID, synchronizedAt *time.Time, syncStartDate time.Time) error {
	_, err := q.exec(ctx, `UPDATE folders SET synchronized_at = ?, sync_start_date = ? WHERE id = ?`,
		utc(synchronizedAt), syncStartDate.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to save sync state of folder %s: %w", id, err)
	}
	return nil
}

// DeleteEmptyOutdatedFolders removes outdated folders no message user points to
func (q *Queries) DeleteEmptyOutdatedFolders(ctx context.Context, originID uuid.UUID) (int64, error) {
	n, err := q.exec(ctx, `DELETE FROM folders
		WHERE origin_id = ? AND outdated_at IS NOT NULL
			AND NOT EXISTS (SELECT 1 FROM message_users mu WHERE mu.folder_id = folders.id)`,
		originID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete outdated folders: %w", err)
	}
	return n, nil
}
