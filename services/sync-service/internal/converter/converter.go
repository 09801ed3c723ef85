// Package converter maps raw provider messages to provider-agnostic email records.
package converter

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"github.com/stoik/mailsync/internal/models"
	synmodels "github.com/stoik/mailsync/services/sync-service/internal/models"
)

// MaxSubjectLength is the RFC 2822 line length bound applied to subjects
const MaxSubjectLength = 998

// ErrMultiValuedSubject is returned for messages carrying several Subject headers
var ErrMultiValuedSubject = errors.New("multi-valued subject header is not supported")

// ConversionError rejects one malformed message
type ConversionError struct {
	UID    string
	Reason string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert message %s: %s", e.UID, e.Reason)
}

// Convert builds an EmailRecord from a provider message.
// In strict mode a message without sender or Message-Id header is rejected
// with a *ConversionError. Single-message lookups pass strict=false and get
// the provider id as message-id when the header is missing.
func Convert(m *models.RemoteMessage, strict bool) (*synmodels.EmailRecord, error) {
	header := rawHeader(m.Headers)

	subject, err := subject(m, header)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", m.ID, err)
	}

	from := addresses(m.From)
	messageID := strings.TrimSpace(header.Get("Message-Id"))

	if strict {
		if len(from) == 0 {
			return nil, &ConversionError{UID: m.ID, Reason: "empty from"}
		}
		if messageID == "" {
			return nil, &ConversionError{UID: m.ID, Reason: "no message-id"}
		}
	}
	// Lenient lookups address the message by its provider id instead
	if messageID == "" {
		messageID = m.ID
	}

	date := m.DateTime()
	record := &synmodels.EmailRecord{
		UID:           m.ID,
		MessageID:     messageID,
		ThreadID:      m.ThreadID,
		Subject:       subject,
		From:          from,
		To:            addresses(m.To),
		Cc:            addresses(m.Cc),
		Bcc:           addresses(m.Bcc),
		SentAt:        date,
		ReceivedAt:    date,
		InternalDate:  date,
		Importance:    importance(header),
		Unread:        m.Unread,
		HasAttachment: len(m.Attachments) > 0,
		Body:          body(m.Body),
		Attachments:   attachments(m.Attachments),
		References:    references(header),
	}
	return record, nil
}

func rawHeader(headers []models.Header) mail.Header {
	var h textproto.Header
	for i := len(headers) - 1; i >= 0; i-- {
		h.Add(headers[i].Name, headers[i].Value)
	}
	return mail.Header{Header: message.Header{Header: h}}
}

func subject(m *models.RemoteMessage, header mail.Header) (string, error) {
	values := 0
	fields := header.FieldsByKey("Subject")
	for fields.Next() {
		values++
	}

	s := m.Subject
	switch {
	case values > 1:
		return "", ErrMultiValuedSubject
	case values == 1:
		decoded, err := header.Subject()
		if err != nil {
			decoded = header.Get("Subject")
		}
		s = decoded
	}
	return truncate(s, MaxSubjectLength), nil
}

// references collects In-Reply-To and References in the stored
// "<id>" form, without duplicates
func references(header mail.Header) []string {
	var out []string
	seen := make(map[string]bool)
	for _, key := range []string{"In-Reply-To", "References"} {
		ids, _ := header.MsgIDList(key)
		for _, id := range ids {
			id = "<" + id + ">"
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func importance(header mail.Header) synmodels.Importance {
	switch strings.ToLower(strings.TrimSpace(header.Get("Importance"))) {
	case "high":
		return synmodels.ImportanceHigh
	case "low":
		return synmodels.ImportanceLow
	default:
		return synmodels.ImportanceNormal
	}
}

func addresses(participants []models.Participant) []string {
	out := make([]string, 0, len(participants))
	for _, p := range participants {
		if strings.TrimSpace(p.Email) == "" {
			continue
		}
		if p.Name == "" {
			out = append(out, p.Email)
			continue
		}
		addr := mail.Address{Name: p.Name, Address: p.Email}
		out = append(out, addr.String())
	}
	return out
}

func attachments(remote []models.RemoteAttachment) []synmodels.EmailAttachment {
	out := make([]synmodels.EmailAttachment, 0, len(remote))
	for _, a := range remote {
		if a.Filename == nil {
			continue
		}

		contentID := strings.Trim(strings.TrimSpace(a.ContentID), "<>")
		if contentID == "" {
			contentID = a.ID
		}
		encoding := ""
		if len(a.Content) > 0 {
			encoding = "base64"
		}

		out = append(out, synmodels.EmailAttachment{
			RemoteID:         a.ID,
			Filename:         *a.Filename,
			Size:             a.Size,
			ContentType:      a.ContentType,
			TransferEncoding: encoding,
			ContentID:        contentID,
			Content:          a.Content,
		})
	}
	return out
}
