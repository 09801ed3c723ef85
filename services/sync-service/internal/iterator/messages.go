// Package iterator pages through the remote messages of one folder.
package iterator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stoik/mailsync/internal/models"
	"github.com/stoik/mailsync/services/sync-service/internal/provider"
)

// Order is the direction of iteration
type Order int

const (
	NewestFirst Order = iota
	OldestFirst
)

func (o Order) String() string {
	if o == OldestFirst {
		return "oldest_first"
	}
	return "newest_first"
}

const (
	DefaultBatchSize = 100
	countPageSize    = 200
)

// Options configures a message iterator
type Options struct {
	FolderID string
	// IDs bypasses the remote listing and fetches these messages one by one
	IDs         []string
	Order       Order
	BatchSize   int
	SyncedAfter time.Time
	// SyncedBefore bounds the listing so messages arriving during a pass
	// cannot shift the offsets of later pages
	SyncedBefore time.Time
}

// Page is one loaded batch. Messages[i] sits at position Start+i.
type Page struct {
	Start    int
	Messages []models.RemoteMessage
}

// Messages is a single-pass cursor over one folder's remote messages.
// Positions count from the first message in the configured order.
type Messages struct {
	client provider.MessageAPI
	opts   Options
	logger *slog.Logger

	count   int
	counted bool
	page    int
	done    bool
}

func NewMessages(client provider.MessageAPI, opts Options, logger *slog.Logger) *Messages {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Messages{
		client: client,
		opts:   opts,
		logger: logger.With("folder_uid", opts.FolderID, "order", opts.Order.String()),
	}
}

// Rewind restarts iteration from the first position. The count is kept.
func (it *Messages) Rewind() {
	it.page = 0
	it.done = false
}

// Count returns the number of messages to iterate. It is computed once,
// from the explicit id list or from a listing pass over the folder.
func (it *Messages) Count(ctx context.Context) (int, error) {
	if it.counted {
		return it.count, nil
	}

	if it.opts.IDs != nil {
		it.count = len(it.opts.IDs)
		it.counted = true
		return it.count, nil
	}

	total := 0
	for offset := 0; ; offset += countPageSize {
		page, err := it.client.ListMessages(ctx, provider.MessageQuery{
			FolderID:       it.opts.FolderID,
			ReceivedAfter:  it.opts.SyncedAfter,
			ReceivedBefore: it.opts.SyncedBefore,
			Limit:          countPageSize,
			Offset:         offset,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to count messages: %w", err)
		}
		total += len(page.Messages)
		if !page.HasMore || len(page.Messages) == 0 {
			break
		}
	}

	it.count = total
	it.counted = true
	return it.count, nil
}

// Next loads the next page. hasMore is false once the last page was returned.
// A failed page fetch is logged and ends the iteration, except for
// folder-level failures which are returned so the folder can be disabled.
func (it *Messages) Next(ctx context.Context) (Page, bool, error) {
	if it.done {
		return Page{}, false, nil
	}

	var (
		page    Page
		hasMore bool
		err     error
	)
	switch {
	case it.opts.IDs != nil:
		page, hasMore, err = it.nextByID(ctx)
	case it.opts.Order == OldestFirst:
		page, hasMore, err = it.nextOldest(ctx)
	default:
		page, hasMore, err = it.nextNewest(ctx)
	}

	it.page++
	if err != nil {
		it.done = true
		if provider.Classify(err).FolderLevel() {
			return Page{}, false, err
		}
		it.logger.Error("failed to load message page, stopping iteration", "page", it.page-1, "error", err)
		return Page{}, false, nil
	}
	if !hasMore {
		it.done = true
	}
	return page, hasMore, nil
}

func (it *Messages) nextNewest(ctx context.Context) (Page, bool, error) {
	start := it.page * it.opts.BatchSize
	resp, err := it.client.ListMessages(ctx, provider.MessageQuery{
		FolderID:       it.opts.FolderID,
		ReceivedAfter:  it.opts.SyncedAfter,
		ReceivedBefore: it.opts.SyncedBefore,
		Limit:          it.opts.BatchSize,
		Offset:         start,
	})
	if err != nil {
		return Page{}, false, err
	}

	hasMore := resp.HasMore && len(resp.Messages) == it.opts.BatchSize
	return Page{Start: start, Messages: resp.Messages}, hasMore, nil
}

// nextOldest reads the listing backwards: oldest position p is the
// newest-first offset count-1-p.
func (it *Messages) nextOldest(ctx context.Context) (Page, bool, error) {
	count, err := it.Count(ctx)
	if err != nil {
		return Page{}, false, err
	}

	start := it.page * it.opts.BatchSize
	if start >= count {
		return Page{Start: start}, false, nil
	}
	end := start + it.opts.BatchSize
	if end > count {
		end = count
	}

	resp, err := it.client.ListMessages(ctx, provider.MessageQuery{
		FolderID:       it.opts.FolderID,
		ReceivedAfter:  it.opts.SyncedAfter,
		ReceivedBefore: it.opts.SyncedBefore,
		Limit:          end - start,
		Offset:         count - end,
	})
	if err != nil {
		return Page{}, false, err
	}

	messages := make([]models.RemoteMessage, len(resp.Messages))
	for i, m := range resp.Messages {
		messages[len(messages)-1-i] = m
	}
	return Page{Start: start, Messages: messages}, end < count, nil
}

func (it *Messages) nextByID(ctx context.Context) (Page, bool, error) {
	start := it.page * it.opts.BatchSize
	if start >= len(it.opts.IDs) {
		return Page{Start: start}, false, nil
	}
	end := start + it.opts.BatchSize
	if end > len(it.opts.IDs) {
		end = len(it.opts.IDs)
	}

	messages := make([]models.RemoteMessage, 0, end-start)
	for _, id := range it.opts.IDs[start:end] {
		m, err := it.client.GetMessageByID(ctx, id)
		if err != nil {
			return Page{}, false, fmt.Errorf("failed to get message %s: %w", id, err)
		}
		messages = append(messages, *m)
	}
	return Page{Start: start, Messages: messages}, end < len(it.opts.IDs), nil
}
