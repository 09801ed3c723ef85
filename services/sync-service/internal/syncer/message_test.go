package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/mailsync/internal/mock"
	"github.com/stoik/mailsync/internal/models"
	synmodels "github.com/stoik/mailsync/services/sync-service/internal/models"
	"github.com/stoik/mailsync/services/sync-service/internal/provider"
	"github.com/stoik/mailsync/services/sync-service/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacyUID = "abcdefghijklmnopqrstuvwxy"

func TestLoadBodyRefreshesStoredBody(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add("INBOX", "report", time.Now().UTC().Add(-time.Hour))
	f.run(false)

	m := f.messages()[0]
	m.BodyContent, m.BodyText = "", ""
	require.NoError(t, f.store.UpdateMessageBody(ctx, &m))

	loaded, err := f.proc.LoadBody(ctx, m.ID)
	require.NoError(t, err)
	assert.Contains(t, loaded.BodyContent, "<p>report</p>")
	assert.False(t, loaded.BodyIsText)
	assert.Equal(t, "report", f.messages()[0].BodyText)
}

func TestLoadBodyResolvesLegacyUID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := time.Now().UTC().Add(-time.Hour)
	f.add("INBOX", "other", at, func(m *models.RemoteMessage) {
		m.Headers = []models.Header{{Name: "Message-ID", Value: "<unrelated@example.com>"}}
		m.Subject = "legacy"
	})
	remote := f.add("INBOX", "legacy", at)

	require.Len(t, legacyUID, 25)
	m := &synmodels.Message{
		OriginID:     f.origin.ID,
		UID:          legacyUID,
		MessageID:    "<legacy@example.com>",
		Subject:      "legacy",
		FromAddress:  `"Bob" <bob@example.com>`,
		ToAddresses:  synmodels.AddressList{f.grant.Email},
		SentAt:       at,
		ReceivedAt:   at,
		InternalDate: at,
	}
	require.NoError(t, f.store.InsertMessage(ctx, m))

	loaded, err := f.proc.LoadBody(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, remote.ID, loaded.UID)

	stored, err := f.store.GetMessage(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, remote.ID, stored.UID)
	assert.Equal(t, "legacy", stored.BodyText)
}

func TestLoadBodyUnresolvedLegacyUID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := time.Now().UTC()
	m := &synmodels.Message{
		OriginID:     f.origin.ID,
		UID:          legacyUID,
		MessageID:    "<gone@example.com>",
		Subject:      "gone",
		FromAddress:  "bob@example.com",
		SentAt:       at,
		ReceivedAt:   at,
		InternalDate: at,
	}
	require.NoError(t, f.store.InsertMessage(ctx, m))

	_, err := f.proc.LoadBody(ctx, m.ID)
	assert.ErrorIs(t, err, ErrUnresolvedUID)

	stored, err := f.store.GetMessage(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, legacyUID, stored.UID)
}

func TestLoadBodyUnknownMessage(t *testing.T) {
	f := newFixture(t)
	_, err := f.proc.LoadBody(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSetSeenUpdatesRemoteAndLocal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	remote := f.add("INBOX", "unread", time.Now().UTC().Add(-time.Hour))
	f.run(false)

	users := f.users()
	require.Len(t, users, 1)
	require.False(t, users[0].Seen)

	require.NoError(t, f.proc.SetSeen(ctx, users[0].ID, true))

	current, ok := f.server.Message(f.grant.ID, remote.ID)
	require.True(t, ok)
	assert.False(t, current.Unread)
	assert.True(t, f.users()[0].Seen)

	require.NoError(t, f.proc.SetSeen(ctx, users[0].ID, false))
	current, _ = f.server.Message(f.grant.ID, remote.ID)
	assert.True(t, current.Unread)
	assert.False(t, f.users()[0].Seen)
}

func TestSetSeenKeepsLocalFlagWhenRemoteFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add("INBOX", "unread", time.Now().UTC().Add(-time.Hour))
	f.run(false)
	users := f.users()
	require.Len(t, users, 1)

	f.server.FailNext(f.grant.ID, mock.OpUpdate, mock.Failure{Status: 503, Type: models.ErrorTypeInternal})
	err := f.proc.SetSeen(ctx, users[0].ID, true)
	require.Error(t, err)
	assert.Equal(t, provider.KindServerError, provider.Classify(err))
	assert.False(t, f.users()[0].Seen)
}
