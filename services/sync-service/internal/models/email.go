package models

import "time"

// Importance of a message: -1 low, 0 normal, 1 high
type Importance int

const (
	ImportanceLow    Importance = -1
	ImportanceNormal Importance = 0
	ImportanceHigh   Importance = 1
)

// EmailBody is the decoded body of a message
type EmailBody struct {
	Content string
	IsText  bool
	Text    string // plain-text rendering of Content
}

// EmailAttachment is an attachment retained by the converter
type EmailAttachment struct {
	RemoteID         string
	Filename         string
	Size             int64
	ContentType      string
	TransferEncoding string
	ContentID        string
	Content          []byte
}

// EmailRecord is the provider-agnostic form of one remote message.
// It is built by the converter and consumed immediately by the sync processor.
type EmailRecord struct {
	UID           string
	MessageID     string
	ThreadID      string
	Subject       string
	From          []string
	To            []string
	Cc            []string
	Bcc           []string
	SentAt        time.Time
	ReceivedAt    time.Time
	InternalDate  time.Time
	Importance    Importance
	Unread        bool
	HasAttachment bool
	Body          EmailBody
	Attachments   []EmailAttachment
	// References holds the message-id headers this message replies to
	References []string
}

// Sender returns the first from address, or "" when there is none
func (r *EmailRecord) Sender() string {
	if len(r.From) == 0 {
		return ""
	}
	return r.From[0]
}
