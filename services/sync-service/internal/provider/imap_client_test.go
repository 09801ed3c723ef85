package provider

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stoik/mailsync/services/sync-service/internal/converter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeenItem(t *testing.T) {
	assert.Equal(t, imap.StoreItem("+FLAGS.SILENT"), seenItem(true))
	assert.Equal(t, imap.StoreItem("-FLAGS.SILENT"), seenItem(false))
}

func TestUnparsedMessageIsRejectedByConverter(t *testing.T) {
	c := NewIMAPClient(IMAPConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.addr = "imap.example.com:993"
	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	stub := c.unparsed("Archive/2023", &imap.Message{Uid: 42, InternalDate: at})
	assert.Equal(t, joinMessageID("Archive/2023", 42), stub.ID)
	assert.Equal(t, at.Unix(), stub.Date)
	assert.Equal(t, []string{"Archive/2023"}, stub.Folders)

	_, err := converter.Convert(&stub, true)
	var cerr *converter.ConversionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, stub.ID, cerr.UID)
}

func TestSplitMessageID(t *testing.T) {
	folder, uid, err := splitMessageID(joinMessageID("Archive/2023", 7))
	require.NoError(t, err)
	assert.Equal(t, "Archive/2023", folder)
	assert.Equal(t, uint32(7), uid)

	_, _, err = splitMessageID("no-separator")
	assert.Error(t, err)
	_, _, err = splitMessageID("INBOX" + uidSeparator + "abc")
	assert.Error(t, err)
}
