package converter

import (
	"strings"
	"testing"
	"time"

	"github.com/stoik/mailsync/internal/models"
	synmodels "github.com/stoik/mailsync/services/sync-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func remoteMessage() *models.RemoteMessage {
	return &models.RemoteMessage{
		ID:       "msg-1",
		ThreadID: "thread-1",
		Subject:  "Field subject",
		From:     []models.Participant{{Name: "Bob Smith", Email: "bob@example.com"}},
		To:       []models.Participant{{Email: "alice@example.com"}},
		Date:     time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC).Unix(),
		Unread:   true,
		Body:     "plain body",
		Headers: []models.Header{
			{Name: "message-id", Value: "<abc@example.com>"},
		},
	}
}

func TestConvert(t *testing.T) {
	rec, err := Convert(remoteMessage(), true)
	require.NoError(t, err)

	want := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	assert.Equal(t, "msg-1", rec.UID)
	assert.Equal(t, "<abc@example.com>", rec.MessageID)
	assert.Equal(t, "thread-1", rec.ThreadID)
	assert.Equal(t, "Field subject", rec.Subject)
	assert.Equal(t, []string{`"Bob Smith" <bob@example.com>`}, rec.From)
	assert.Equal(t, []string{"alice@example.com"}, rec.To)
	assert.True(t, want.Equal(rec.SentAt))
	assert.True(t, rec.SentAt.Equal(rec.ReceivedAt))
	assert.True(t, rec.SentAt.Equal(rec.InternalDate))
	assert.True(t, rec.Unread)
	assert.False(t, rec.HasAttachment)
	assert.Equal(t, synmodels.ImportanceNormal, rec.Importance)
	assert.True(t, rec.Body.IsText)
}

func TestConvertRejectsEmptyFromWhenStrict(t *testing.T) {
	m := remoteMessage()
	m.From = nil

	_, err := Convert(m, true)
	var cerr *ConversionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "msg-1", cerr.UID)

	rec, err := Convert(m, false)
	require.NoError(t, err)
	assert.Empty(t, rec.From)
}

func TestConvertFallsBackToNativeIDWhenLenient(t *testing.T) {
	m := remoteMessage()
	m.Headers = nil

	rec, err := Convert(m, false)
	require.NoError(t, err)
	assert.Equal(t, "msg-1", rec.MessageID)
}

func TestConvertRejectsMissingMessageIDWhenStrict(t *testing.T) {
	m := remoteMessage()
	m.Headers = []models.Header{{Name: "Message-Id", Value: "   "}}

	_, err := Convert(m, true)
	var cerr *ConversionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "no message-id", cerr.Reason)
	assert.Equal(t, "msg-1", cerr.UID)
}

func TestConvertReferences(t *testing.T) {
	m := remoteMessage()
	m.Headers = append(m.Headers,
		models.Header{Name: "In-Reply-To", Value: "<parent@example.com>"},
		models.Header{Name: "References", Value: "<root@example.com> <parent@example.com>"},
	)

	rec, err := Convert(m, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"<parent@example.com>", "<root@example.com>"}, rec.References)

	rec, err = Convert(remoteMessage(), true)
	require.NoError(t, err)
	assert.Empty(t, rec.References)
}

func TestConvertSubject(t *testing.T) {
	t.Run("header wins over field", func(t *testing.T) {
		m := remoteMessage()
		m.Headers = append(m.Headers, models.Header{Name: "SUBJECT", Value: "=?utf-8?q?Caf=C3=A9?="})
		rec, err := Convert(m, true)
		require.NoError(t, err)
		assert.Equal(t, "Café", rec.Subject)
	})

	t.Run("capped", func(t *testing.T) {
		m := remoteMessage()
		m.Subject = strings.Repeat("é", MaxSubjectLength+10)
		rec, err := Convert(m, true)
		require.NoError(t, err)
		assert.Equal(t, MaxSubjectLength, len([]rune(rec.Subject)))
	})

	t.Run("multi-valued", func(t *testing.T) {
		m := remoteMessage()
		m.Headers = append(m.Headers,
			models.Header{Name: "Subject", Value: "one"},
			models.Header{Name: "subject", Value: "two"},
		)
		_, err := Convert(m, false)
		assert.ErrorIs(t, err, ErrMultiValuedSubject)
	})
}

func TestConvertImportance(t *testing.T) {
	tests := []struct {
		value string
		want  synmodels.Importance
	}{
		{"High", synmodels.ImportanceHigh},
		{"low", synmodels.ImportanceLow},
		{"normal", synmodels.ImportanceNormal},
		{"", synmodels.ImportanceNormal},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			m := remoteMessage()
			if tt.value != "" {
				m.Headers = append(m.Headers, models.Header{Name: "importance", Value: tt.value})
			}
			rec, err := Convert(m, true)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.Importance)
		})
	}
}

func TestConvertAttachments(t *testing.T) {
	name := "report.pdf"
	inline := "logo.png"
	m := remoteMessage()
	m.Attachments = []models.RemoteAttachment{
		{ID: "att-1", Filename: &name, ContentType: "application/pdf", Size: 10, ContentID: "<cid-1>"},
		{ID: "att-2", Filename: &inline, ContentType: "image/png", Content: []byte("png")},
		{ID: "att-3", ContentType: "text/calendar"},
	}

	rec, err := Convert(m, true)
	require.NoError(t, err)
	assert.True(t, rec.HasAttachment)
	require.Len(t, rec.Attachments, 2)

	assert.Equal(t, "report.pdf", rec.Attachments[0].Filename)
	assert.Equal(t, "cid-1", rec.Attachments[0].ContentID)
	assert.Empty(t, rec.Attachments[0].TransferEncoding)

	assert.Equal(t, "att-2", rec.Attachments[1].ContentID)
	assert.Equal(t, "base64", rec.Attachments[1].TransferEncoding)
}

func TestBody(t *testing.T) {
	b := body("<html><head><style>p{}</style></head><body><p>Hello</p><p>World<br>again</p></body></html>")
	assert.False(t, b.IsText)
	assert.Equal(t, "Hello\nWorld\nagain", b.Text)

	b = body("just text")
	assert.True(t, b.IsText)
	assert.Equal(t, "just text", b.Text)

	b = body("")
	assert.True(t, b.IsText)
}
