package models

import "time"

// Participant is a named address as returned by the provider API
type Participant struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// Header is one raw message header. Names are not normalized.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// RemoteAttachment is the attachment metadata of a provider message.
// Content is only present when the provider inlines it (base64 in JSON).
type RemoteAttachment struct {
	ID          string  `json:"id"`
	Filename    *string `json:"filename"`
	ContentType string  `json:"content_type"`
	Size        int64   `json:"size"`
	ContentID   string  `json:"content_id,omitempty"`
	IsInline    bool    `json:"is_inline"`
	Content     []byte  `json:"content,omitempty"`
}

// RemoteMessage represents a message from the provider API
type RemoteMessage struct {
	ID          string             `json:"id"`
	GrantID     string             `json:"grant_id"`
	ThreadID    string             `json:"thread_id"`
	Subject     string             `json:"subject"`
	From        []Participant      `json:"from"`
	To          []Participant      `json:"to"`
	Cc          []Participant      `json:"cc"`
	Bcc         []Participant      `json:"bcc"`
	ReplyTo     []Participant      `json:"reply_to,omitempty"`
	Date        int64              `json:"date"` // unix seconds
	Unread      bool               `json:"unread"`
	Starred     bool               `json:"starred"`
	Folders     []string           `json:"folders"`
	Snippet     string             `json:"snippet"`
	Body        string             `json:"body,omitempty"`
	Attachments []RemoteAttachment `json:"attachments,omitempty"`
	Headers     []Header           `json:"headers,omitempty"`
}

// DateTime returns the provider date as a UTC time.
func (m RemoteMessage) DateTime() time.Time {
	return time.Unix(m.Date, 0).UTC()
}

// InFolder reports whether the message is filed under the given folder id.
func (m RemoteMessage) InFolder(folderID string) bool {
	for _, f := range m.Folders {
		if f == folderID {
			return true
		}
	}
	return false
}
