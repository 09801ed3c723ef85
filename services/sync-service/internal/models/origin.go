package models

import (
	"time"

	"github.com/google/uuid"
)

// SyncCode is the synchronization state of an origin
type SyncCode int

const (
	SyncNew             SyncCode = 0
	SyncFailed          SyncCode = 1
	SyncInProcess       SyncCode = 2
	SyncSuccess         SyncCode = 3
	SyncCustomException SyncCode = 4
	SyncManual          SyncCode = 5
)

func (c SyncCode) String() string {
	switch c {
	case SyncNew:
		return "new"
	case SyncFailed:
		return "failed"
	case SyncInProcess:
		return "in_process"
	case SyncSuccess:
		return "success"
	case SyncCustomException:
		return "custom_exception"
	case SyncManual:
		return "manual_sync"
	default:
		return "unknown"
	}
}

// Provider names stored on an origin
const (
	ProviderAPI  = "nylas"
	ProviderIMAP = "imap"
)

// Origin is one connection to a remote mailbox account
type Origin struct {
	ID                uuid.UUID     `db:"id"`
	OwnerID           uuid.UUID     `db:"owner_id"`
	OrganizationID    uuid.NullUUID `db:"organization_id"`
	MailboxName       string        `db:"mailbox_name"`
	AccountID         string        `db:"account_id"` // grant id, or host:port for IMAP
	Provider          string        `db:"provider"`
	TokenType         string        `db:"token_type"`
	AccessToken       string        `db:"access_token"`
	MailboxID         uuid.NullUUID `db:"mailbox_id"` // set for shared mailboxes
	IsDefault         bool          `db:"is_default"`
	IsActive          bool          `db:"is_active"`
	SyncCode          SyncCode      `db:"sync_code"`
	SyncCodeUpdatedAt *time.Time    `db:"sync_code_updated_at"`
	CreatedAt         time.Time     `db:"created_at"`
}

// MailboxScoped reports whether the origin belongs to a shared mailbox
func (o *Origin) MailboxScoped() bool {
	return o.MailboxID.Valid
}
