// Package mock is an in-memory fake of the provider API used for local runs and tests.
package mock

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/mailsync/internal/models"
)

var (
	firstNames = []string{"John", "Jane", "Bob", "Alice", "Charlie", "Diana", "Eve", "Frank"}
	lastNames  = []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis"}
	domains    = []string{"example.com", "company.com", "business.org", "enterprise.net"}
	subjects   = []string{
		"Meeting tomorrow",
		"Project update",
		"Budget review",
		"Team lunch",
		"Quarterly report",
		"Client feedback",
		"Urgent: Action required",
		"Follow up",
	}
	defaultFolders = []string{"INBOX", "Sent", "Trash", "Spam", "Drafts"}
)

// Failure is an error the server returns once for the next matching call
type Failure struct {
	Status     int
	Type       string
	Message    string
	RetryAfter int
}

// Operations that can be made to fail
const (
	OpListFolders  = "folders"
	OpListMessages = "messages"
	OpGetMessage   = "message"
	OpUpdate       = "update"
)

type grantState struct {
	grant    models.Grant
	folders  []models.RemoteFolder
	messages []models.RemoteMessage
}

// Server holds the fake mailbox state. It is safe for concurrent use.
type Server struct {
	mu       sync.RWMutex
	grants   map[string]*grantState
	failures map[string][]Failure
	rng      *rand.Rand
}

// New creates an empty server
func New() *Server {
	return &Server{
		grants:   make(map[string]*grantState),
		failures: make(map[string][]Failure),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// AddGrant registers a mailbox account. An empty token disables auth checks.
func (s *Server) AddGrant(email, token string) models.Grant {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := models.Grant{
		ID:          uuid.NewString(),
		Email:       email,
		Provider:    "google",
		AccessToken: token,
		CreatedAt:   time.Now().UTC(),
	}
	s.grants[g.ID] = &grantState{grant: g}
	return g
}

// AddDefaultFolders creates the usual system folders for a grant
func (s *Server) AddDefaultFolders(grantID string) []models.RemoteFolder {
	var out []models.RemoteFolder
	for _, name := range defaultFolders {
		out = append(out, s.AddFolder(grantID, models.RemoteFolder{Name: name, SystemFolder: true}))
	}
	return out
}

// AddFolder stores a folder, generating its id when empty
func (s *Server) AddFolder(grantID string, f models.RemoteFolder) models.RemoteFolder {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.mustGrant(grantID)
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.GrantID = grantID
	st.folders = append(st.folders, f)
	return f
}

// RemoveFolder deletes a folder and reports whether it existed
func (s *Server) RemoveFolder(grantID, folderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.mustGrant(grantID)
	for i, f := range st.folders {
		if f.ID == folderID {
			st.folders = append(st.folders[:i], st.folders[i+1:]...)
			return true
		}
	}
	return false
}

// RenameFolder changes the name of a folder, keeping its id
func (s *Server) RenameFolder(grantID, folderID, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.mustGrant(grantID)
	for i := range st.folders {
		if st.folders[i].ID == folderID {
			st.folders[i].Name = name
			return true
		}
	}
	return false
}

// AddMessage stores a message, generating its id when empty
func (s *Server) AddMessage(grantID string, m models.RemoteMessage) models.RemoteMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.mustGrant(grantID)
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.GrantID = grantID
	st.messages = append(st.messages, m)
	return m
}

// Message returns a stored message by id
func (s *Server) Message(grantID, id string) (models.RemoteMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.grants[grantID]
	if !ok {
		return models.RemoteMessage{}, false
	}
	for _, m := range st.messages {
		if m.ID == id {
			return m, true
		}
	}
	return models.RemoteMessage{}, false
}

// FailNext makes the next call of op on grantID fail with f
func (s *Server) FailNext(grantID, op string, f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := grantID + " " + op
	s.failures[key] = append(s.failures[key], f)
}

func (s *Server) popFailure(grantID, op string) (Failure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := grantID + " " + op
	queue := s.failures[key]
	if len(queue) == 0 {
		return Failure{}, false
	}
	s.failures[key] = queue[1:]
	return queue[0], true
}

// GenerateMessages adds n random messages to a folder of a grant
func (s *Server) GenerateMessages(grantID, folderID string, n int, at time.Time) []models.RemoteMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.mustGrant(grantID)
	out := make([]models.RemoteMessage, 0, n)
	for i := 0; i < n; i++ {
		// Spread them out within the 30 seconds before at
		receivedAt := at.Add(-time.Duration(s.rng.Intn(30)) * time.Second)
		m := s.generateMessage(st.grant, folderID, receivedAt, len(st.messages))
		st.messages = append(st.messages, m)
		out = append(out, m)
	}
	return out
}

func (s *Server) generateMessage(g models.Grant, folderID string, receivedAt time.Time, index int) models.RemoteMessage {
	subject := subjects[s.rng.Intn(len(subjects))]
	first := firstNames[s.rng.Intn(len(firstNames))]
	last := lastNames[s.rng.Intn(len(lastNames))]
	fromEmail := fmt.Sprintf("%s.%s%d@%s", strings.ToLower(first), strings.ToLower(last),
		s.rng.Intn(50000), domains[s.rng.Intn(len(domains))])
	id := uuid.NewString()

	body := fmt.Sprintf("<html><body><p>Dear %s,</p><p>Full email body for: %s</p>"+
		"<p>Received at: %s</p><p>Best regards,<br>%s %s</p></body></html>",
		g.Email, subject, receivedAt.Format(time.RFC3339Nano), first, last)

	return models.RemoteMessage{
		ID:       id,
		GrantID:  g.ID,
		ThreadID: uuid.NewString(),
		Subject:  fmt.Sprintf("%s [%d]", subject, index),
		From:     []models.Participant{{Name: first + " " + last, Email: fromEmail}},
		To:       []models.Participant{{Email: g.Email}},
		Date:     receivedAt.Unix(),
		Unread:   true,
		Folders:  []string{folderID},
		Snippet:  fmt.Sprintf("This is a snippet for: %s", subject),
		Body:     body,
		Headers: []models.Header{
			{Name: "Message-ID", Value: fmt.Sprintf("<%s@mock.local>", id)},
			{Name: "Subject", Value: fmt.Sprintf("%s [%d]", subject, index)},
		},
	}
}

// Run adds 0-3 messages to the inbox of every grant each interval until ctx is done
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, g := range s.grantInboxes() {
				s.GenerateMessages(g[0], g[1], s.intn(4), now)
			}
		}
	}
}

// grantInboxes returns (grant id, inbox folder id) pairs
func (s *Server) grantInboxes() [][2]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out [][2]string
	for id, st := range s.grants {
		for _, f := range st.folders {
			if strings.EqualFold(f.Name, "inbox") {
				out = append(out, [2]string{id, f.ID})
				break
			}
		}
	}
	return out
}

func (s *Server) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

func (s *Server) mustGrant(grantID string) *grantState {
	st, ok := s.grants[grantID]
	if !ok {
		panic(fmt.Sprintf("mock: unknown grant %s", grantID))
	}
	return st
}

// folders returns the folders of a grant, optionally only the top-level ones
func (s *Server) folders(grantID string, singleLevel bool) ([]models.RemoteFolder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.grants[grantID]
	if !ok {
		return nil, false
	}
	out := make([]models.RemoteFolder, 0, len(st.folders))
	for _, f := range st.folders {
		if singleLevel && f.ParentID != "" {
			continue
		}
		out = append(out, f)
	}
	return out, true
}

type messageFilter struct {
	folderID       string
	receivedAfter  int64
	receivedBefore int64
	subject        string
	from           string
	to             string
}

func (f messageFilter) match(m models.RemoteMessage) bool {
	if f.folderID != "" && !m.InFolder(f.folderID) {
		return false
	}
	if f.receivedAfter > 0 && m.Date < f.receivedAfter {
		return false
	}
	if f.receivedBefore > 0 && m.Date >= f.receivedBefore {
		return false
	}
	if f.subject != "" && m.Subject != f.subject {
		return false
	}
	if f.from != "" && !hasAddress(m.From, f.from) {
		return false
	}
	if f.to != "" && !hasAddress(m.To, f.to) {
		return false
	}
	return true
}

// messages returns the matching messages of a grant, newest first
func (s *Server) messages(grantID string, filter messageFilter) ([]models.RemoteMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.grants[grantID]
	if !ok {
		return nil, false
	}
	out := make([]models.RemoteMessage, 0)
	for _, m := range st.messages {
		if filter.match(m) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date > out[j].Date
	})
	return out, true
}

func (s *Server) setUnread(grantID, id string, unread bool) (models.RemoteMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.grants[grantID]
	if !ok {
		return models.RemoteMessage{}, false
	}
	for i := range st.messages {
		if st.messages[i].ID == id {
			st.messages[i].Unread = unread
			return st.messages[i], true
		}
	}
	return models.RemoteMessage{}, false
}

func (s *Server) folder(grantID, folderID string) (models.RemoteFolder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.grants[grantID]
	if !ok {
		return models.RemoteFolder{}, false
	}
	for _, f := range st.folders {
		if f.ID == folderID {
			return f, true
		}
	}
	return models.RemoteFolder{}, false
}

func (s *Server) token(grantID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.grants[grantID]
	if !ok {
		return "", false
	}
	return st.grant.AccessToken, true
}

func hasAddress(list []models.Participant, email string) bool {
	for _, p := range list {
		if strings.EqualFold(p.Email, email) {
			return true
		}
	}
	return false
}
