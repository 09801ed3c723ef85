package iterator

import (
	"context"
	"errors"

	"github.com/stoik/mailsync/services/sync-service/internal/converter"
	"github.com/stoik/mailsync/services/sync-service/internal/models"
)

// Record is a converted message at its iteration position
type Record struct {
	Position int
	Email    *models.EmailRecord
}

// Skipped describes a message dropped because it could not be converted
type Skipped struct {
	Position int
	UID      string
	Err      error
}

// Batch is the converted form of one page. Records are in position order;
// positions of skipped messages leave gaps.
type Batch struct {
	Records []Record
	Skipped []Skipped
}

// Emails converts the pages of a Messages iterator into email records
type Emails struct {
	messages *Messages
	// Strict rejects messages without sender or message-id
	Strict bool
	// Tolerant reports conversion failures in Batch.Skipped instead of failing
	Tolerant bool
}

func NewEmails(messages *Messages, strict, tolerant bool) *Emails {
	return &Emails{messages: messages, Strict: strict, Tolerant: tolerant}
}

// Rewind restarts iteration from the first position
func (it *Emails) Rewind() {
	it.messages.Rewind()
}

// Count returns the number of raw messages to iterate
func (it *Emails) Count(ctx context.Context) (int, error) {
	return it.messages.Count(ctx)
}

// Next converts the next page
func (it *Emails) Next(ctx context.Context) (Batch, bool, error) {
	page, hasMore, err := it.messages.Next(ctx)
	if err != nil {
		return Batch{}, false, err
	}

	var batch Batch
	for i := range page.Messages {
		pos := page.Start + i
		rec, err := converter.Convert(&page.Messages[i], it.Strict)
		if err != nil {
			var cerr *converter.ConversionError
			if !it.Tolerant || !errors.As(err, &cerr) {
				return Batch{}, false, err
			}
			batch.Skipped = append(batch.Skipped, Skipped{Position: pos, UID: page.Messages[i].ID, Err: err})
			continue
		}
		batch.Records = append(batch.Records, Record{Position: pos, Email: rec})
	}
	return batch, hasMore, nil
}
