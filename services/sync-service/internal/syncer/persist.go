package syncer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/mailsync/services/sync-service/internal/iterator"
	"github.com/stoik/mailsync/services/sync-service/internal/models"
	"github.com/stoik/mailsync/services/sync-service/internal/store"
)

// known is what the store already holds for the records of one batch
type known struct {
	byUID       map[string]uuid.UUID
	byMessageID map[string]*models.Message
	byID        map[uuid.UUID]*models.Message
	users       map[uuid.UUID][]models.MessageUser
}

func (k *known) lookup(rec *models.EmailRecord) *models.Message {
	if id, ok := k.byUID[rec.UID]; ok {
		if m, ok := k.byID[id]; ok {
			return m
		}
	}
	return k.byMessageID[rec.MessageID]
}

func (k *known) add(m *models.Message) {
	k.byID[m.ID] = m
	k.byMessageID[m.MessageID] = m
	k.byUID[m.UID] = m.ID
}

func (p *Processor) load(ctx context.Context, originID uuid.UUID, records []iterator.Record) (*known, error) {
	uids := make([]string, 0, len(records))
	messageIDs := make([]string, 0, len(records))
	for _, r := range records {
		uids = append(uids, r.Email.UID)
		messageIDs = append(messageIDs, r.Email.MessageID)
	}

	byUID, err := p.store.ExistingUIDs(ctx, originID, uids)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(byUID))
	for _, id := range byUID {
		ids = append(ids, id)
	}

	messages, err := p.store.MessagesByMessageIDs(ctx, originID, messageIDs, ids)
	if err != nil {
		return nil, err
	}

	k := &known{
		byUID:       byUID,
		byMessageID: make(map[string]*models.Message, len(messages)),
		byID:        make(map[uuid.UUID]*models.Message, len(messages)),
		users:       make(map[uuid.UUID][]models.MessageUser),
	}
	pks := make([]uuid.UUID, 0, len(messages))
	for i := range messages {
		m := &messages[i]
		k.byID[m.ID] = m
		// the oldest stored copy wins when a message-id was stored twice
		if _, ok := k.byMessageID[m.MessageID]; !ok {
			k.byMessageID[m.MessageID] = m
		}
		pks = append(pks, m.ID)
	}

	users, err := p.store.MessageUsersByMessages(ctx, originID, pks)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		k.users[u.MessageID] = append(k.users[u.MessageID], u)
	}
	return k, nil
}

// persist stores one batch of records in a single transaction and returns
// the newest sent date seen in it.
//
// A record whose message is already linked to the origin is skipped unless
// forced. A message stored without any link gets one. Everything else is
// created along with its attachments and the contexts of its thread.
func (p *Processor) persist(ctx context.Context, origin *models.Origin, folder *models.Folder, cutoff *time.Time, records []iterator.Record, force bool) (Stats, time.Time, error) {
	var (
		stats  Stats
		newest time.Time
	)
	for _, r := range records {
		if r.Email.SentAt.After(newest) {
			newest = r.Email.SentAt
		}
	}

	k, err := p.load(ctx, origin.ID, records)
	if err != nil {
		return stats, newest, err
	}

	logger := p.logger.With("origin", origin.ID, "folder", folder.Name)
	err = p.store.InTx(ctx, func(tx *store.Tx) error {
		for _, r := range records {
			rec := r.Email
			if cutoff != nil && rec.SentAt.Before(*cutoff) {
				stats.BeforeCutoff++
				continue
			}

			m := k.lookup(rec)
			if m == nil {
				created, mu, err := p.create(ctx, tx, origin, folder, rec)
				if err != nil {
					return err
				}
				k.add(created)
				k.users[created.ID] = []models.MessageUser{*mu}
				stats.Created++
				continue
			}

			users := k.users[m.ID]
			if len(users) > 0 && !force {
				stats.Duplicates++
				continue
			}

			if m.UID != rec.UID {
				if err := tx.UpdateMessageUID(ctx, m.ID, rec.UID); err != nil {
					return err
				}
				m.UID = rec.UID
				k.byUID[rec.UID] = m.ID
			}

			if len(users) == 0 {
				mu, err := p.link(ctx, tx, origin, folder, m.ID, rec)
				if err != nil {
					return err
				}
				k.users[m.ID] = append(users, *mu)
				stats.Linked++
				continue
			}

			logger.Info("forced re-sync of message", "message_id", rec.MessageID, "uid", rec.UID)
			if err := p.refresh(ctx, tx, origin, folder, k, m.ID, rec); err != nil {
				return err
			}
			stats.Forced++
		}
		return nil
	})
	if err != nil {
		return Stats{}, time.Time{}, err
	}
	return stats, newest, nil
}

func (p *Processor) create(ctx context.Context, tx *store.Tx, origin *models.Origin, folder *models.Folder, rec *models.EmailRecord) (*models.Message, *models.MessageUser, error) {
	m := &models.Message{
		OriginID:       origin.ID,
		UID:            rec.UID,
		MessageID:      rec.MessageID,
		ThreadID:       rec.ThreadID,
		Subject:        rec.Subject,
		FromAddress:    rec.Sender(),
		ToAddresses:    models.AddressList(rec.To),
		CcAddresses:    models.AddressList(rec.Cc),
		BccAddresses:   models.AddressList(rec.Bcc),
		SentAt:         rec.SentAt,
		ReceivedAt:     rec.ReceivedAt,
		InternalDate:   rec.InternalDate,
		Importance:     rec.Importance,
		HasAttachments: rec.HasAttachment,
		BodyContent:    rec.Body.Content,
		BodyIsText:     rec.Body.IsText,
		BodyText:       rec.Body.Text,
		CreatedAt:      p.now(),
	}
	if err := tx.InsertMessage(ctx, m); err != nil {
		return nil, nil, err
	}

	for _, a := range rec.Attachments {
		err := tx.InsertAttachment(ctx, &models.Attachment{
			MessageID:        m.ID,
			Filename:         a.Filename,
			Size:             a.Size,
			ContentType:      a.ContentType,
			TransferEncoding: a.TransferEncoding,
			ContentID:        a.ContentID,
			Content:          a.Content,
		})
		if err != nil {
			return nil, nil, err
		}
	}

	mu, err := p.link(ctx, tx, origin, folder, m.ID, rec)
	if err != nil {
		return nil, nil, err
	}

	// Earlier messages of the thread pass their contexts on
	contexts, err := tx.ThreadContexts(ctx, origin.ID, rec.ThreadID, rec.References)
	if err != nil {
		return nil, nil, err
	}
	for _, c := range contexts {
		if c.MessageID == m.ID {
			continue
		}
		c.MessageID = m.ID
		if err := tx.InsertMessageContext(ctx, c); err != nil {
			return nil, nil, err
		}
	}
	return m, mu, nil
}

func (p *Processor) link(ctx context.Context, tx *store.Tx, origin *models.Origin, folder *models.Folder, messageID uuid.UUID, rec *models.EmailRecord) (*models.MessageUser, error) {
	mu := &models.MessageUser{
		MessageID: messageID,
		FolderID:  folder.ID,
		OriginID:  origin.ID,
		OwnerID:   origin.OwnerID,
		Seen:      !rec.Unread,
		CreatedAt: p.now(),
	}
	if err := tx.InsertMessageUser(ctx, mu); err != nil {
		return nil, err
	}
	return mu, nil
}

// refresh brings the link of a message in this folder up to date,
// creating it when the message is only linked elsewhere
func (p *Processor) refresh(ctx context.Context, tx *store.Tx, origin *models.Origin, folder *models.Folder, k *known, messageID uuid.UUID, rec *models.EmailRecord) error {
	for _, u := range k.users[messageID] {
		if u.FolderID == folder.ID {
			return tx.SetMessageUserSeen(ctx, u.ID, !rec.Unread)
		}
	}

	mu, err := p.link(ctx, tx, origin, folder, messageID, rec)
	if err != nil {
		return err
	}
	k.users[messageID] = append(k.users[messageID], *mu)
	return nil
}
