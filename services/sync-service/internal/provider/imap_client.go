package provider

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/stoik/mailsync/internal/models"
	synmodels "github.com/stoik/mailsync/services/sync-service/internal/models"
)

// IMAPConfig configures the IMAP client
type IMAPConfig struct {
	Timeout   time.Duration
	TLSConfig *tls.Config
}

// uidSeparator joins folder name and IMAP uid into one message id
const uidSeparator = "\x1f"

// IMAPClient reads an IMAP account through the same contract as the API client.
// Message ids are "<folder>\x1f<uid>".
type IMAPClient struct {
	cfg    IMAPConfig
	logger *slog.Logger

	addr     string
	user     string
	password string

	conn     *client.Client
	selected string
}

// NewIMAPClient creates a new IMAP client
func NewIMAPClient(cfg IMAPConfig, logger *slog.Logger) *IMAPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &IMAPClient{cfg: cfg, logger: logger}
}

// SetActiveAccount implements GrantAPI. The account id is the server
// host:port, the mailbox name is the login and the access token the password.
func (c *IMAPClient) SetActiveAccount(origin *synmodels.Origin) error {
	if _, _, err := net.SplitHostPort(origin.AccountID); err != nil {
		return fmt.Errorf("origin %s: invalid IMAP server %q: %w", origin.ID, origin.AccountID, err)
	}
	if err := c.Close(); err != nil {
		c.logger.Warn("failed to close previous IMAP session", "error", err)
	}

	c.addr = origin.AccountID
	c.user = origin.MailboxName
	c.password = origin.AccessToken
	c.logger = c.logger.With("server", origin.AccountID, "user", origin.MailboxName)
	return nil
}

// Close logs out of the server if connected
func (c *IMAPClient) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Logout()
	c.conn = nil
	c.selected = ""
	return err
}

func (c *IMAPClient) connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	if c.addr == "" {
		return &Error{Kind: KindUnknown, Op: "connect", Err: ErrNoActiveAccount}
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: c.cfg.Timeout},
		Config:    c.cfg.TLSConfig,
	}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return &Error{Kind: KindNetwork, Op: "connect", Err: err}
	}

	imapClient, err := client.New(conn)
	if err != nil {
		conn.Close()
		return wrap("connect", fmt.Errorf("failed to create IMAP client: %w", err))
	}
	imapClient.Timeout = c.cfg.Timeout

	if err := imapClient.Login(c.user, c.password); err != nil {
		imapClient.Logout()
		return &Error{Kind: KindAuthInvalid, Op: "login", Err: err}
	}

	c.conn = imapClient
	c.logger.Debug("connected to IMAP server")
	return nil
}

func (c *IMAPClient) selectFolder(ctx context.Context, folder string) error {
	if err := c.connect(ctx); err != nil {
		return err
	}
	if c.selected == folder {
		return nil
	}
	if _, err := c.conn.Select(folder, true); err != nil {
		kind := Classify(err)
		if kind == KindUnknown {
			kind = KindUnselectableFolder
		}
		return &Error{Kind: kind, Op: "select " + folder, Err: err}
	}
	c.selected = folder
	return nil
}

// ListFolders implements FolderAPI
func (c *IMAPClient) ListFolders(ctx context.Context) ([]models.RemoteFolder, error) {
	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	mailboxes := make(chan *imap.MailboxInfo, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.conn.List("", "%", mailboxes)
	}()

	var folders []models.RemoteFolder
	for mb := range mailboxes {
		folders = append(folders, models.RemoteFolder{
			ID:           mb.Name,
			Name:         mb.Name,
			Attributes:   mb.Attributes,
			SystemFolder: strings.EqualFold(mb.Name, "INBOX"),
		})
	}
	if err := <-done; err != nil {
		return nil, wrap("list folders", err)
	}
	return folders, nil
}

// ListMessages implements MessageAPI. Newest first is approximated by
// descending uid order.
func (c *IMAPClient) ListMessages(ctx context.Context, q MessageQuery) (MessagePage, error) {
	if err := c.selectFolder(ctx, q.FolderID); err != nil {
		return MessagePage{}, err
	}

	criteria := imap.NewSearchCriteria()
	if !q.ReceivedAfter.IsZero() {
		criteria.Since = q.ReceivedAfter
	}
	if !q.ReceivedBefore.IsZero() {
		criteria.Before = q.ReceivedBefore.AddDate(0, 0, 1)
	}
	if q.Subject != "" {
		criteria.Header.Add("Subject", q.Subject)
	}
	if q.From != "" {
		criteria.Header.Add("From", q.From)
	}
	if q.To != "" {
		criteria.Header.Add("To", q.To)
	}

	uids, err := c.conn.UidSearch(criteria)
	if err != nil {
		return MessagePage{}, wrap("search", err)
	}
	if !q.ReceivedBefore.IsZero() {
		// SEARCH BEFORE only compares days
		if uids, err = c.receivedBefore(uids, q.ReceivedBefore); err != nil {
			return MessagePage{}, err
		}
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })

	start := q.Offset
	if start > len(uids) {
		start = len(uids)
	}
	end := len(uids)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}

	messages, _, err := c.fetch(q.FolderID, uids[start:end])
	if err != nil {
		return MessagePage{}, err
	}
	return MessagePage{Messages: messages, HasMore: end < len(uids)}, nil
}

// GetMessageByID implements MessageAPI
func (c *IMAPClient) GetMessageByID(ctx context.Context, id string) (*models.RemoteMessage, error) {
	folder, uid, err := splitMessageID(id)
	if err != nil {
		return nil, &Error{Kind: KindNotFound, Op: "get message", Err: err}
	}
	if err := c.selectFolder(ctx, folder); err != nil {
		return nil, err
	}

	messages, broken, err := c.fetch(folder, []uint32{uid})
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, &Error{Kind: KindNotFound, Op: "get message", Err: fmt.Errorf("message %s not found", id)}
	}
	if err, ok := broken[messages[0].ID]; ok {
		return nil, &Error{Kind: KindInvalidFormat, Op: "get message", Err: err}
	}
	return &messages[0], nil
}

// UpdateReadStatus implements MessageAPI
func (c *IMAPClient) UpdateReadStatus(ctx context.Context, id string, read bool) error {
	folder, uid, err := splitMessageID(id)
	if err != nil {
		return &Error{Kind: KindNotFound, Op: "update message", Err: err}
	}
	if err := c.selectFolder(ctx, folder); err != nil {
		return err
	}

	// The folder is selected read-only for listing, so reopen it writable.
	if _, err := c.conn.Select(folder, false); err != nil {
		return wrap("select "+folder, err)
	}
	c.selected = ""

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	flags := []interface{}{imap.SeenFlag}
	if err := c.conn.UidStore(seqSet, seenItem(read), flags, nil); err != nil {
		return wrap("update message", err)
	}
	return nil
}

// seenItem is the silent STORE item setting or clearing \Seen
func seenItem(read bool) imap.StoreItem {
	op := imap.FlagsOp(imap.AddFlags)
	if !read {
		op = imap.RemoveFlags
	}
	return imap.FormatFlagsOp(op, true)
}

// receivedBefore keeps the uids whose internal date is before t
func (c *IMAPClient) receivedBefore(uids []uint32, t time.Time) ([]uint32, error) {
	if len(uids) == 0 {
		return uids, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	ch := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.conn.UidFetch(seqSet, []imap.FetchItem{imap.FetchUid, imap.FetchInternalDate}, ch)
	}()

	kept := make([]uint32, 0, len(uids))
	for msg := range ch {
		if msg.InternalDate.Before(t) {
			kept = append(kept, msg.Uid)
		}
	}
	if err := <-done; err != nil {
		return nil, wrap("fetch dates", err)
	}
	return kept, nil
}

// fetch returns the messages in the order of uids. A message that cannot be
// parsed keeps its place as a bare stub the converter rejects, and its parse
// error is reported in broken under the message id.
func (c *IMAPClient) fetch(folder string, uids []uint32) ([]models.RemoteMessage, map[string]error, error) {
	if len(uids) == 0 {
		return nil, nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}

	ch := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.conn.UidFetch(seqSet, items, ch)
	}()

	byUID := make(map[uint32]models.RemoteMessage, len(uids))
	broken := make(map[string]error)
	for msg := range ch {
		rm, err := c.parseMessage(folder, msg, section)
		if err != nil {
			c.logger.Warn("failed to parse message", "uid", msg.Uid, "error", err)
			rm = c.unparsed(folder, msg)
			broken[rm.ID] = err
		}
		byUID[msg.Uid] = rm
	}
	if err := <-done; err != nil {
		return nil, nil, wrap("fetch", err)
	}

	messages := make([]models.RemoteMessage, 0, len(byUID))
	for _, uid := range uids {
		if rm, ok := byUID[uid]; ok {
			messages = append(messages, rm)
		}
	}
	return messages, broken, nil
}

// unparsed is the stub of a message whose content could not be read. It has
// no sender and no headers.
func (c *IMAPClient) unparsed(folder string, msg *imap.Message) models.RemoteMessage {
	return models.RemoteMessage{
		ID:      joinMessageID(folder, msg.Uid),
		GrantID: c.addr,
		Date:    msg.InternalDate.Unix(),
		Unread:  true,
		Folders: []string{folder},
	}
}

func (c *IMAPClient) parseMessage(folder string, msg *imap.Message, section *imap.BodySectionName) (models.RemoteMessage, error) {
	rm := models.RemoteMessage{
		ID:      joinMessageID(folder, msg.Uid),
		GrantID: c.addr,
		Date:    msg.InternalDate.Unix(),
		Unread:  true,
		Folders: []string{folder},
	}
	for _, flag := range msg.Flags {
		switch flag {
		case imap.SeenFlag:
			rm.Unread = false
		case imap.FlaggedFlag:
			rm.Starred = true
		}
	}

	if env := msg.Envelope; env != nil {
		rm.Subject = env.Subject
		rm.From = participants(env.From)
		rm.To = participants(env.To)
		rm.Cc = participants(env.Cc)
		rm.Bcc = participants(env.Bcc)
		rm.ReplyTo = participants(env.ReplyTo)
		if msg.InternalDate.IsZero() {
			rm.Date = env.Date.Unix()
		}
	}

	body := msg.GetBody(section)
	if body == nil {
		return rm, nil
	}

	mr, err := mail.CreateReader(body)
	if err != nil {
		return rm, fmt.Errorf("failed to create mail reader: %w", err)
	}

	fields := mr.Header.Fields()
	for fields.Next() {
		rm.Headers = append(rm.Headers, models.Header{Name: fields.Key(), Value: fields.Value()})
	}
	if refs, err := mr.Header.MsgIDList("References"); err == nil && len(refs) > 0 {
		rm.ThreadID = refs[0]
	}

	var text string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rm, fmt.Errorf("failed to read part: %w", err)
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			content, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			if strings.HasPrefix(ct, "text/html") {
				rm.Body = string(content)
			} else if strings.HasPrefix(ct, "text/plain") && text == "" {
				text = string(content)
			}
		case *mail.AttachmentHeader:
			content, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			ct, _, _ := h.ContentType()
			att := models.RemoteAttachment{
				ID:          fmt.Sprintf("%s.%d", rm.ID, len(rm.Attachments)+1),
				ContentType: ct,
				Size:        int64(len(content)),
				ContentID:   h.Get("Content-Id"),
				Content:     content,
			}
			if name, err := h.Filename(); err == nil && name != "" {
				att.Filename = &name
			}
			rm.Attachments = append(rm.Attachments, att)
		}
	}
	if rm.Body == "" {
		rm.Body = text
	}

	return rm, nil
}

func participants(addrs []*imap.Address) []models.Participant {
	out := make([]models.Participant, 0, len(addrs))
	for _, a := range addrs {
		if a == nil || a.MailboxName == "" {
			continue
		}
		out = append(out, models.Participant{Name: a.PersonalName, Email: a.Address()})
	}
	return out
}

func joinMessageID(folder string, uid uint32) string {
	return folder + uidSeparator + strconv.FormatUint(uint64(uid), 10)
}

func splitMessageID(id string) (string, uint32, error) {
	i := strings.LastIndex(id, uidSeparator)
	if i <= 0 {
		return "", 0, errors.New("malformed IMAP message id")
	}
	uid, err := strconv.ParseUint(id[i+len(uidSeparator):], 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("malformed IMAP uid: %w", err)
	}
	return id[:i], uint32(uid), nil
}
