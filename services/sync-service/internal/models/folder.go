package models

import (
	"time"

	"github.com/google/uuid"
)

// FolderType is the role of a folder within its mailbox
type FolderType string

const (
	FolderInbox FolderType = "inbox"
	FolderSent  FolderType = "sent"
	FolderTrash FolderType = "trash"
	FolderSpam  FolderType = "spam"
	FolderOther FolderType = "other"
)

// Folder maps to one remote top-level folder of an origin.
// ParentID is kept for schema compatibility; only folders without a parent
// are ever scheduled.
type Folder struct {
	ID             uuid.UUID     `db:"id"`
	OriginID       uuid.UUID     `db:"origin_id"`
	FolderUID      string        `db:"folder_uid"`
	Name           string        `db:"name"`
	FullName       string        `db:"full_name"`
	Type           FolderType    `db:"type"`
	ParentID       uuid.NullUUID `db:"parent_id"`
	SyncEnabled    bool          `db:"sync_enabled"`
	OutdatedAt     *time.Time    `db:"outdated_at"`
	SynchronizedAt *time.Time    `db:"synchronized_at"`
	SyncStartDate  *time.Time    `db:"sync_start_date"`
	CreatedAt      time.Time     `db:"created_at"`
}

func (f *Folder) IsOutdated() bool {
	return f.OutdatedAt != nil
}
