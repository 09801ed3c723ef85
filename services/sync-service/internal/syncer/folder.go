package syncer

import (
	"context"
	"time"

	"github.com/stoik/mailsync/services/sync-service/internal/iterator"
	"github.com/stoik/mailsync/services/sync-service/internal/models"
	"github.com/stoik/mailsync/services/sync-service/internal/provider"
)

// syncFolder runs one oldest-first pass over a folder, from its watermark up
// to the pass start. The watermark and the pass start are saved whatever
// happens.
func (p *Processor) syncFolder(ctx context.Context, client provider.MessageAPI, origin *models.Origin, folder *models.Folder, force bool) (stats Stats, err error) {
	logger := p.logger.With("origin", origin.ID, "folder", folder.Name)
	started := p.now()

	syncedAfter := started.Add(-p.opts.InitialWindow)
	if folder.SynchronizedAt != nil {
		syncedAfter = *folder.SynchronizedAt
	}
	watermark := folder.SynchronizedAt

	// Mailbox-scoped origins ignore history from before the folder was
	// connected and keep that cut-off; other origins record the pass start.
	var cutoff *time.Time
	nextStart := started
	if origin.MailboxScoped() && folder.SyncStartDate != nil {
		cutoff = folder.SyncStartDate
		nextStart = *folder.SyncStartDate
	}

	defer func() {
		serr := p.store.SaveFolderSyncState(context.WithoutCancel(ctx), folder.ID, watermark, nextStart)
		if serr != nil {
			logger.Error("failed to save folder sync state", "error", serr)
			if err == nil {
				err = serr
			}
		}
	}()

	// Messages arriving from now on belong to the next pass
	messages := iterator.NewMessages(client, iterator.Options{
		FolderID:     folder.FolderUID,
		Order:        iterator.OldestFirst,
		BatchSize:    p.opts.BatchSize,
		SyncedAfter:  syncedAfter,
		SyncedBefore: started,
	}, logger)
	emails := iterator.NewEmails(messages, true, true)

	for {
		batch, hasMore, err := emails.Next(ctx)
		if err != nil {
			return stats, err
		}

		for _, s := range batch.Skipped {
			logger.Warn("skipping message", "uid", s.UID, "position", s.Position, "error", s.Err)
		}
		stats.Unconverted += len(batch.Skipped)

		if len(batch.Records) > 0 {
			bs, newest, err := p.persist(ctx, origin, folder, cutoff, batch.Records, force)
			if err != nil {
				return stats, err
			}
			stats.add(bs)
			if watermark == nil || newest.After(*watermark) {
				watermark = &newest
			}
		}

		if !hasMore {
			break
		}
	}

	logger.Debug("folder synchronized", "created", stats.Created, "linked", stats.Linked,
		"duplicates", stats.Duplicates, "unconverted", stats.Unconverted)
	return stats, nil
}
