package provider

import (
	"context"
	"time"

	"github.com/stoik/mailsync/internal/models"
	synmodels "github.com/stoik/mailsync/services/sync-service/internal/models"
)

// GrantAPI binds a client to the remote account of one origin
type GrantAPI interface {
	// SetActiveAccount must be called before any other operation.
	// A client serves one origin at a time and is not safe for concurrent use.
	SetActiveAccount(origin *synmodels.Origin) error
}

// FolderAPI lists the folders of the active account
type FolderAPI interface {
	// ListFolders returns the top-level folders, following pagination
	ListFolders(ctx context.Context) ([]models.RemoteFolder, error)
}

// MessageAPI reads and updates messages of the active account
type MessageAPI interface {
	// ListMessages returns one page of messages, newest first
	ListMessages(ctx context.Context, q MessageQuery) (MessagePage, error)

	GetMessageByID(ctx context.Context, uid string) (*models.RemoteMessage, error)

	UpdateReadStatus(ctx context.Context, uid string, read bool) error
}

// Client is the remote mailbox used by the sync engine
type Client interface {
	GrantAPI
	FolderAPI
	MessageAPI
}

// MessageQuery selects one page of messages.
// Zero values mean no filter; Limit <= 0 lets the provider choose.
type MessageQuery struct {
	FolderID      string
	ReceivedAfter time.Time
	// ReceivedBefore is exclusive; it pins a listing to a fixed set of messages
	ReceivedBefore time.Time
	Limit          int
	Offset         int
	Subject        string
	From           string
	To             string
}

// MessagePage is one page of a message listing
type MessagePage struct {
	Messages []models.RemoteMessage
	HasMore  bool
}
