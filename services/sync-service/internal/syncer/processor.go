// Package syncer pulls the remote messages of an origin into the local store.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stoik/mailsync/services/sync-service/internal/cleanup"
	"github.com/stoik/mailsync/services/sync-service/internal/folders"
	"github.com/stoik/mailsync/services/sync-service/internal/iterator"
	"github.com/stoik/mailsync/services/sync-service/internal/models"
	"github.com/stoik/mailsync/services/sync-service/internal/provider"
	"github.com/stoik/mailsync/services/sync-service/internal/store"
)

// Options tunes one processor
type Options struct {
	BatchSize int
	// MaxOriginSyncTime bounds the time spent on one origin; it is checked
	// between folders and ignored for forced runs
	MaxOriginSyncTime time.Duration
	// InitialWindow is how far back a never-synchronized folder starts
	InitialWindow time.Duration
}

func DefaultOptions() Options {
	return Options{
		BatchSize:         iterator.DefaultBatchSize,
		MaxOriginSyncTime: 30 * time.Minute,
		InitialWindow:     720 * time.Hour,
	}
}

// ClientFactory returns a remote client bound to an origin
type ClientFactory interface {
	ForOrigin(origin *models.Origin) (provider.Client, error)
}

// Report summarizes one origin run
type Report struct {
	Claimed     bool
	State       models.SyncCode
	Folders     int
	Disabled    int
	Interrupted bool
	Stats
}

// Stats counts what happened to the records of a pass
type Stats struct {
	Created      int
	Linked       int
	Forced       int
	Duplicates   int
	BeforeCutoff int
	Unconverted  int
}

func (s *Stats) add(o Stats) {
	s.Created += o.Created
	s.Linked += o.Linked
	s.Forced += o.Forced
	s.Duplicates += o.Duplicates
	s.BeforeCutoff += o.BeforeCutoff
	s.Unconverted += o.Unconverted
}

type Processor struct {
	store      *store.Store
	clients    ClientFactory
	reconciler *folders.Reconciler
	cleaner    *cleanup.Cleaner
	opts       Options
	logger     *slog.Logger
	now        func() time.Time
}

func NewProcessor(s *store.Store, clients ClientFactory, reconciler *folders.Reconciler, cleaner *cleanup.Cleaner, opts Options, logger *slog.Logger) *Processor {
	def := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.MaxOriginSyncTime <= 0 {
		opts.MaxOriginSyncTime = def.MaxOriginSyncTime
	}
	if opts.InitialWindow <= 0 {
		opts.InitialWindow = def.InitialWindow
	}
	return &Processor{
		store:      s,
		clients:    clients,
		reconciler: reconciler,
		cleaner:    cleaner,
		opts:       opts,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run claims the origin, synchronizes it and records the final state.
// An origin already claimed elsewhere is left alone and reported as not
// claimed. Remote failures end in Failed or ManualSync and are not returned;
// anything else ends in CustomException and is returned.
func (p *Processor) Run(ctx context.Context, origin *models.Origin, force bool) (Report, error) {
	logger := p.logger.With("origin", origin.ID, "mailbox", origin.MailboxName)

	if origin.SyncCode == models.SyncInProcess {
		logger.Info("origin is already in process, skipping")
		return Report{}, nil
	}
	claimed, err := p.store.ClaimOrigin(ctx, origin.ID, origin.SyncCode, models.SyncInProcess, p.now())
	if err != nil {
		return Report{}, err
	}
	if !claimed {
		logger.Info("origin is handled by another worker, skipping")
		return Report{}, nil
	}
	origin.SyncCode = models.SyncInProcess

	report, err := p.runClaimed(ctx, origin, force)
	report.Claimed = true
	report.State = StateFor(err)

	// The final state must be written even when the job is being stopped
	if serr := p.store.SetOriginSyncCode(context.WithoutCancel(ctx), origin.ID, report.State, p.now()); serr != nil {
		return report, errors.Join(err, serr)
	}
	origin.SyncCode = report.State

	switch report.State {
	case models.SyncSuccess:
		logger.Info("origin synchronized", "folders", report.Folders, "created", report.Created,
			"linked", report.Linked, "duplicates", report.Duplicates, "interrupted", report.Interrupted)
		return report, nil
	case models.SyncCustomException:
		logger.Error("origin synchronization failed", "error", err)
		return report, err
	default:
		logger.Warn("origin synchronization stopped", "state", report.State.String(), "error", err)
		return report, nil
	}
}

func (p *Processor) runClaimed(ctx context.Context, origin *models.Origin, force bool) (Report, error) {
	client, err := p.clients.ForOrigin(origin)
	if err != nil {
		return Report{}, err
	}
	defer func() {
		if err := provider.Release(client); err != nil {
			p.logger.Warn("failed to release client", "origin", origin.ID, "error", err)
		}
	}()

	report, err := p.SyncOrigin(ctx, client, origin, force)
	if err != nil {
		return report, err
	}

	if _, err := p.cleaner.Run(ctx, origin.ID); err != nil {
		return report, err
	}
	return report, nil
}

// SyncOrigin reconciles the folders of an origin and runs one pass over
// every folder due for synchronization. A folder failing with a
// folder-level error is disabled and the others continue.
func (p *Processor) SyncOrigin(ctx context.Context, client provider.Client, origin *models.Origin, force bool) (Report, error) {
	logger := p.logger.With("origin", origin.ID)
	started := p.now()

	var report Report
	res, err := p.reconciler.Reconcile(ctx, client, origin, false)
	if err != nil {
		return report, err
	}
	logger.Debug("folders reconciled", "created", res.Created, "updated", res.Updated, "outdated", res.Outdated)

	toSync, err := p.store.ListFoldersToSync(ctx, origin.ID)
	if err != nil {
		return report, err
	}

	for i := range toSync {
		if i > 0 && !force && p.now().Sub(started) > p.opts.MaxOriginSyncTime {
			logger.Info("origin sync time exhausted, leaving remaining folders for the next run",
				"remaining", len(toSync)-i)
			report.Interrupted = true
			break
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		folder := &toSync[i]
		stats, err := p.syncFolder(ctx, client, origin, folder, force)
		report.Folders++
		report.add(stats)
		if err != nil {
			if folderLevel(err) {
				logger.Warn("disabling folder", "folder", folder.Name, "error", err)
				if derr := p.store.DisableFolderSync(ctx, folder.ID); derr != nil {
					return report, derr
				}
				report.Disabled++
				continue
			}
			return report, fmt.Errorf("folder %s: %w", folder.Name, err)
		}
	}
	return report, nil
}

func folderLevel(err error) bool {
	var perr *provider.Error
	return errors.As(err, &perr) && perr.Kind.FolderLevel()
}

// StateFor maps the outcome of a run to the origin's next sync code
func StateFor(err error) models.SyncCode {
	if err == nil {
		return models.SyncSuccess
	}
	if errors.Is(err, context.Canceled) {
		return models.SyncFailed
	}

	var perr *provider.Error
	if !errors.As(err, &perr) {
		return models.SyncCustomException
	}
	switch perr.Kind {
	case provider.KindRateLimited, provider.KindNetwork, provider.KindServerError:
		return models.SyncFailed
	case provider.KindAuthInvalid, provider.KindNotFound:
		return models.SyncManual
	default:
		return models.SyncCustomException
	}
}
