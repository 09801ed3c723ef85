package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AddressList is a list of formatted addresses stored as a JSON array
type AddressList []string

func (l AddressList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *AddressList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into AddressList", src)
	}
	return json.Unmarshal(raw, (*[]string)(l))
}

// Message is the deduplicated, persisted copy of a remote message
type Message struct {
	ID             uuid.UUID   `db:"id"`
	OriginID       uuid.UUID   `db:"origin_id"`
	UID            string      `db:"uid"`
	MessageID      string      `db:"message_id"`
	ThreadID       string      `db:"thread_id"`
	Subject        string      `db:"subject"`
	FromAddress    string      `db:"from_address"`
	ToAddresses    AddressList `db:"to_addresses"`
	CcAddresses    AddressList `db:"cc_addresses"`
	BccAddresses   AddressList `db:"bcc_addresses"`
	SentAt         time.Time   `db:"sent_at"`
	ReceivedAt     time.Time   `db:"received_at"`
	InternalDate   time.Time   `db:"internal_date"`
	Importance     Importance  `db:"importance"`
	HasAttachments bool        `db:"has_attachments"`
	BodyContent    string      `db:"body_content"`
	BodyIsText     bool        `db:"body_is_text"`
	BodyText       string      `db:"body_text"`
	CreatedAt      time.Time   `db:"created_at"`
}

// MessageUser links a message to one folder and owner within one origin
type MessageUser struct {
	ID        uuid.UUID `db:"id"`
	MessageID uuid.UUID `db:"message_id"`
	FolderID  uuid.UUID `db:"folder_id"`
	OriginID  uuid.UUID `db:"origin_id"`
	OwnerID   uuid.UUID `db:"owner_id"`
	Seen      bool      `db:"seen"`
	CreatedAt time.Time `db:"created_at"`
}

// Attachment is a persisted message attachment
type Attachment struct {
	ID               uuid.UUID `db:"id"`
	MessageID        uuid.UUID `db:"message_id"`
	Filename         string    `db:"filename"`
	Size             int64     `db:"size"`
	ContentType      string    `db:"content_type"`
	TransferEncoding string    `db:"transfer_encoding"`
	ContentID        string    `db:"content_id"`
	Content          []byte    `db:"content"`
}

// MessageContext associates a message with an external activity/context
type MessageContext struct {
	MessageID   uuid.UUID `db:"message_id"`
	ContextType string    `db:"context_type"`
	ContextID   string    `db:"context_id"`
}
