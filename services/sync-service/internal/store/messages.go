package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/mailsync/services/sync-service/internal/models"
)

const messageColumns = `id, origin_id, uid, message_id, thread_id, subject, from_address,
	to_addresses, cc_addresses, bcc_addresses, sent_at, received_at, internal_date,
	importance, has_attachments, body_content, body_is_text, body_text, created_at`

const messageUserColumns = `id, message_id, folder_id, origin_id, owner_id, seen, created_at`

// ExistingUIDs maps the given remote uids to the IDs of stored messages
func (q *Queries) ExistingUIDs(ctx context.Context, originID uuid.UUID, uids []string) (map[string]uuid.UUID, error) {
	found := make(map[string]uuid.UUID)
	if len(uids) == 0 {
		return found, nil
	}

	var rows []struct {
		ID  uuid.UUID `db:"id"`
		UID string    `db:"uid"`
	}
	err := q.selectIn(ctx, &rows,
		`SELECT id, uid FROM messages WHERE origin_id = ? AND uid IN (?)`, originID, uids)
	if err != nil {
		return nil, fmt.Errorf("failed to look up uids: %w", err)
	}
	for _, r := range rows {
		found[r.UID] = r.ID
	}
	return found, nil
}

// MessagesByMessageIDs returns the stored messages of an origin that carry
// one of the message-id headers or one of the primary keys.
func (q *Queries) MessagesByMessageIDs(ctx context.Context, originID uuid.UUID, messageIDs []string, ids []uuid.UUID) ([]models.Message, error) {
	var (
		clauses []string
		args    = []any{originID}
	)
	if len(messageIDs) > 0 {
		clauses = append(clauses, "message_id IN (?)")
		args = append(args, messageIDs)
	}
	if len(ids) > 0 {
		clauses = append(clauses, "id IN (?)")
		args = append(args, uuidStrings(ids))
	}
	if len(clauses) == 0 {
		return nil, nil
	}

	var messages []models.Message
	err := q.selectIn(ctx, &messages, `SELECT `+messageColumns+` FROM messages
		WHERE origin_id = ? AND (`+strings.Join(clauses, " OR ")+`)
		ORDER BY created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to look up messages: %w", err)
	}
	return messages, nil
}

// MessageUsersByMessages returns the message users of the given messages within an origin
func (q *Queries) MessageUsersByMessages(ctx context.Context, originID uuid.UUID, messageIDs []uuid.UUID) ([]models.MessageUser, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var users []models.MessageUser
	err := q.selectIn(ctx, &users, `SELECT `+messageUserColumns+` FROM message_users
		WHERE origin_id = ? AND message_id IN (?)`, originID, uuidStrings(messageIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to look up message users: %w", err)
	}
	return users, nil
}

// ListMessages returns the stored messages of an origin
func (q *Queries) ListMessages(ctx context.Context, originID uuid.UUID) ([]models.Message, error) {
	var messages []models.Message
	err := q.selectAll(ctx, &messages, `SELECT `+messageColumns+` FROM messages
		WHERE origin_id = ? ORDER BY sent_at, created_at`, originID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// ListMessageUsers returns the message users of an origin
func (q *Queries) ListMessageUsers(ctx context.Context, originID uuid.UUID) ([]models.MessageUser, error) {
	var users []models.MessageUser
	err := q.selectAll(ctx, &users, `SELECT `+messageUserColumns+` FROM message_users
		WHERE origin_id = ? ORDER BY created_at`, originID)
	if err != nil {
		return nil, fmt.Errorf("failed to list message users: %w", err)
	}
	return users, nil
}

// GetMessage returns a message by ID
func (q *Queries) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var m models.Message
	if err := q.get(ctx, &m, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return &m, nil
}

// GetMessageUser returns a message user by ID
func (q *Queries) GetMessageUser(ctx context.Context, id uuid.UUID) (*models.MessageUser, error) {
	var mu models.MessageUser
	if err := q.get(ctx, &mu, `SELECT `+messageUserColumns+` FROM message_users WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to get message user %s: %w", id, err)
	}
	return &mu, nil
}

// InsertMessage stores a new message
func (q *Queries) InsertMessage(ctx context.Context, m *models.Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := q.exec(ctx, `INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.OriginID, m.UID, m.MessageID, m.ThreadID, m.Subject, m.FromAddress,
		m.ToAddresses, m.CcAddresses, m.BccAddresses,
		m.SentAt.UTC(), m.ReceivedAt.UTC(), m.InternalDate.UTC(),
		m.Importance, m.HasAttachments, m.BodyContent, m.BodyIsText, m.BodyText, m.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert message %s: %w", m.UID, err)
	}
	return nil
}

// InsertMessageUser links a message to a folder
func (q *Queries) InsertMessageUser(ctx context.Context, mu *models.MessageUser) error {
	if mu.ID == uuid.Nil {
		mu.ID = uuid.New()
	}
	if mu.CreatedAt.IsZero() {
		mu.CreatedAt = time.Now().UTC()
	}
	_, err := q.exec(ctx, `INSERT INTO message_users (`+messageUserColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		mu.ID, mu.MessageID, mu.FolderID, mu.OriginID, mu.OwnerID, mu.Seen, mu.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert message user: %w", err)
	}
	return nil
}

// InsertAttachment stores one attachment of a message
func (q *Queries) InsertAttachment(ctx context.Context, a *models.Attachment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := q.exec(ctx, `INSERT INTO attachments
		(id, message_id, filename, size, content_type, transfer_encoding, content_id, content)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.MessageID, a.Filename, a.Size, a.ContentType, a.TransferEncoding, a.ContentID, a.Content)
	if err != nil {
		return fmt.Errorf("failed to insert attachment %s: %w", a.Filename, err)
	}
	return nil
}

// ListAttachments returns the attachments of a message
func (q *Queries) ListAttachments(ctx context.Context, messageID uuid.UUID) ([]models.Attachment, error) {
	var attachments []models.Attachment
	err := q.selectAll(ctx, &attachments, `SELECT id, message_id, filename, size, content_type,
		transfer_encoding, content_id, content FROM attachments WHERE message_id = ? ORDER BY filename`, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	return attachments, nil
}

// UpdateMessageUID points a stored message at a new remote uid
func (q *Queries) UpdateMessageUID(ctx context.Context, id uuid.UUID, uid string) error {
	if _, err := q.exec(ctx, `UPDATE messages SET uid = ? WHERE id = ?`, uid, id); err != nil {
		return fmt.Errorf("failed to update uid of message %s: %w", id, err)
	}
	return nil
}

// UpdateMessageBody stores a freshly loaded body
func (q *Queries) UpdateMessageBody(ctx context.Context, m *models.Message) error {
	_, err := q.exec(ctx, `UPDATE messages
		SET uid = ?, body_content = ?, body_is_text = ?, body_text = ?, has_attachments = ?
		WHERE id = ?`,
		m.UID, m.BodyContent, m.BodyIsText, m.BodyText, m.HasAttachments, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update body of message %s: %w", m.ID, err)
	}
	return nil
}

// SetMessageUserSeen stores the read flag of a message user
func (q *Queries) SetMessageUserSeen(ctx context.Context, id uuid.UUID, seen bool) error {
	if _, err := q.exec(ctx, `UPDATE message_users SET seen = ? WHERE id = ?`, seen, id); err != nil {
		return fmt.Errorf("failed to update message user %s: %w", id, err)
	}
	return nil
}

// ThreadContexts returns the contexts attached to stored messages of a thread
// and to the stored messages whose message-id header is in references
func (q *Queries) ThreadContexts(ctx context.Context, originID uuid.UUID, threadID string, references []string) ([]models.MessageContext, error) {
	var (
		clauses []string
		args    = []any{originID}
	)
	if threadID != "" {
		clauses = append(clauses, "m.thread_id = ?")
		args = append(args, threadID)
	}
	if len(references) > 0 {
		clauses = append(clauses, "m.message_id IN (?)")
		args = append(args, references)
	}
	if len(clauses) == 0 {
		return nil, nil
	}

	var contexts []models.MessageContext
	err := q.selectIn(ctx, &contexts, `SELECT DISTINCT mc.message_id, mc.context_type, mc.context_id
		FROM message_contexts mc
		JOIN messages m ON m.id = mc.message_id
		WHERE m.origin_id = ? AND (`+strings.Join(clauses, " OR ")+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list thread contexts: %w", err)
	}
	return contexts, nil
}

// ListMessageContexts returns the contexts of one message
func (q *Queries) ListMessageContexts(ctx context.Context, messageID uuid.UUID) ([]models.MessageContext, error) {
	var contexts []models.MessageContext
	err := q.selectAll(ctx, &contexts, `SELECT message_id, context_type, context_id
		FROM message_contexts WHERE message_id = ? ORDER BY context_type, context_id`, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list message contexts: %w", err)
	}
	return contexts, nil
}

// InsertMessageContext attaches a context to a message; duplicates are ignored
func (q *Queries) InsertMessageContext(ctx context.Context, c models.MessageContext) error {
	_, err := q.exec(ctx, `INSERT INTO message_contexts (message_id, context_type, context_id)
		VALUES (?, ?, ?) ON CONFLICT DO NOTHING`, c.MessageID, c.ContextType, c.ContextID)
	if err != nil {
		return fmt.Errorf("failed to insert message context: %w", err)
	}
	return nil
}

// DeleteOrphanMessageUsers removes message users whose folder is outdated
func (q *Queries) DeleteOrphanMessageUsers(ctx context.Context, originID uuid.UUID) (int64, error) {
	n, err := q.exec(ctx, `DELETE FROM message_users
		WHERE origin_id = ?
			AND folder_id IN (SELECT id FROM folders WHERE origin_id = ? AND outdated_at IS NOT NULL)`,
		originID, originID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphan message users: %w", err)
	}
	return n, nil
}
