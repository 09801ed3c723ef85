package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"github.com/stoik/mailsync/services/sync-service/internal/converter"
	"github.com/stoik/mailsync/services/sync-service/internal/models"
	"github.com/stoik/mailsync/services/sync-service/internal/provider"
)

// ErrUnresolvedUID is returned when a legacy uid cannot be mapped to a current one
var ErrUnresolvedUID = errors.New("legacy message uid could not be resolved")

// legacyCandidates bounds the listing used to re-resolve a legacy uid
const legacyCandidates = 5

// LoadBody fetches the full remote copy of a stored message and stores its
// body. Messages stored under a legacy uid are looked up again first.
func (p *Processor) LoadBody(ctx context.Context, messageID uuid.UUID) (*models.Message, error) {
	m, err := p.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	client, release, err := p.client(ctx, m.OriginID)
	if err != nil {
		return nil, err
	}
	defer release()

	uid, err := p.currentUID(ctx, client, m)
	if err != nil {
		return nil, err
	}

	remote, err := client.GetMessageByID(ctx, uid)
	if err != nil {
		return nil, err
	}
	rec, err := converter.Convert(remote, false)
	if err != nil {
		return nil, err
	}

	m.UID = uid
	m.BodyContent = rec.Body.Content
	m.BodyIsText = rec.Body.IsText
	m.BodyText = rec.Body.Text
	m.HasAttachments = rec.HasAttachment
	if err := p.store.UpdateMessageBody(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// SetSeen pushes the read flag of a message user upstream, then stores it
func (p *Processor) SetSeen(ctx context.Context, messageUserID uuid.UUID, seen bool) error {
	mu, err := p.store.GetMessageUser(ctx, messageUserID)
	if err != nil {
		return err
	}
	m, err := p.store.GetMessage(ctx, mu.MessageID)
	if err != nil {
		return err
	}

	client, release, err := p.client(ctx, m.OriginID)
	if err != nil {
		return err
	}
	defer release()

	uid, err := p.currentUID(ctx, client, m)
	if err != nil {
		return err
	}
	if uid != m.UID {
		if err := p.store.UpdateMessageUID(ctx, m.ID, uid); err != nil {
			return err
		}
	}

	if err := client.UpdateReadStatus(ctx, uid, seen); err != nil {
		return err
	}
	return p.store.SetMessageUserSeen(ctx, mu.ID, seen)
}

func (p *Processor) client(ctx context.Context, originID uuid.UUID) (provider.Client, func(), error) {
	origin, err := p.store.GetOrigin(ctx, originID)
	if err != nil {
		return nil, nil, err
	}
	client, err := p.clients.ForOrigin(origin)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if err := provider.Release(client); err != nil {
			p.logger.Warn("failed to release client", "origin", originID, "error", err)
		}
	}
	return client, release, nil
}

// currentUID returns the uid to address a stored message with. A legacy uid
// is resolved by listing a few messages with the same subject and
// participants and matching the message-id header exactly.
func (p *Processor) currentUID(ctx context.Context, client provider.MessageAPI, m *models.Message) (string, error) {
	if provider.GuessAPIVersion(m.UID) != provider.APIVersionLegacy {
		return m.UID, nil
	}

	q := provider.MessageQuery{
		Subject: m.Subject,
		From:    plainAddress(m.FromAddress),
		Limit:   legacyCandidates,
	}
	if len(m.ToAddresses) > 0 {
		q.To = plainAddress(m.ToAddresses[0])
	}

	page, err := client.ListMessages(ctx, q)
	if err != nil {
		return "", err
	}
	for i := range page.Messages {
		rec, err := converter.Convert(&page.Messages[i], false)
		if err != nil {
			continue
		}
		if rec.MessageID == m.MessageID {
			p.logger.Info("resolved legacy uid", "message", m.ID, "legacy_uid", m.UID, "uid", rec.UID)
			return rec.UID, nil
		}
	}
	return "", fmt.Errorf("message %s: %w", m.ID, ErrUnresolvedUID)
}

// plainAddress strips the display name from a stored address
func plainAddress(s string) string {
	if a, err := mail.ParseAddress(s); err == nil {
		return a.Address
	}
	return s
}
