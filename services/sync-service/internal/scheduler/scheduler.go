// Package scheduler decides which origin to synchronize next.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/stoik/mailsync/services/sync-service/internal/models"
	"github.com/stoik/mailsync/services/sync-service/internal/store"
	"github.com/stoik/mailsync/services/sync-service/internal/syncer"
)

// ErrForceWithoutIDs is returned when a forced job does not name its origins
var ErrForceWithoutIDs = errors.New("force requires explicit origin ids")

// Options configures one scheduling job
type Options struct {
	MaxConcurrentTasks int
	// MinExecInterval is the minimum time between two runs of the same origin
	MinExecInterval time.Duration
	// MaxExecTime stops the job from picking new origins; zero or negative means unlimited
	MaxExecTime time.Duration
	// MaxOriginsPerRun caps the origins processed by one job; 0 means unlimited
	MaxOriginsPerRun int
	// HangedAfter is how long an origin may stay in process before it is reset
	HangedAfter time.Duration

	IDs   []uuid.UUID
	Force bool
}

func DefaultOptions() Options {
	return Options{
		MaxConcurrentTasks: 3,
		MinExecInterval:    5 * time.Minute,
		MaxExecTime:        5 * time.Minute,
		HangedAfter:        24 * time.Hour,
	}
}

// Runner synchronizes one origin
type Runner interface {
	Run(ctx context.Context, origin *models.Origin, force bool) (syncer.Report, error)
}

// Summary counts the outcome of a job
type Summary struct {
	Processed int
	Skipped   int
	Failed    int
}

func (s *Summary) record(report syncer.Report) {
	if !report.Claimed {
		s.Skipped++
		return
	}
	s.Processed++
	if report.State != models.SyncSuccess {
		s.Failed++
	}
}

type Scheduler struct {
	store  *store.Store
	runner Runner
	logger *slog.Logger
	now    func() time.Time
}

func New(s *store.Store, runner Runner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:  s,
		runner: runner,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RunJob runs one scheduling job. With explicit ids the named origins are
// processed in order and the first unexpected failure ends the job. Without
// ids, origins are selected one after another until none is due, the
// origin cap is reached or MaxExecTime has passed; failures are logged and
// the sweep goes on.
func (s *Scheduler) RunJob(ctx context.Context, opts Options) (Summary, error) {
	if opts.Force && len(opts.IDs) == 0 {
		return Summary{}, ErrForceWithoutIDs
	}
	if len(opts.IDs) > 0 {
		return s.runExplicit(ctx, opts)
	}
	return s.sweep(ctx, opts)
}

func (s *Scheduler) runExplicit(ctx context.Context, opts Options) (Summary, error) {
	var summary Summary

	origins, err := s.store.ListOriginsByIDs(ctx, opts.IDs)
	if err != nil {
		return summary, err
	}
	if len(origins) != len(opts.IDs) {
		s.logger.Warn("some requested origins do not exist", "requested", len(opts.IDs), "found", len(origins))
	}

	for i := range origins {
		origin := &origins[i]
		if !origin.IsActive {
			s.logger.Warn("skipping inactive origin", "origin", origin.ID)
			summary.Skipped++
			continue
		}
		report, err := s.runner.Run(ctx, origin, opts.Force)
		summary.record(report)
		if err != nil {
			return summary, fmt.Errorf("origin %s: %w", origin.ID, err)
		}
	}
	return summary, nil
}

func (s *Scheduler) sweep(ctx context.Context, opts Options) (Summary, error) {
	var summary Summary
	started := s.now()

	if opts.HangedAfter > 0 {
		n, err := s.store.ResetHangedOrigins(ctx, started.Add(-opts.HangedAfter), started)
		if err != nil {
			return summary, err
		}
		if n > 0 {
			s.logger.Warn("reset hanged origins", "count", n)
		}
	}

	visited := make(map[uuid.UUID]bool)
	for {
		if err := ctx.Err(); err != nil {
			return summary, nil
		}
		if opts.MaxOriginsPerRun > 0 && len(visited) >= opts.MaxOriginsPerRun {
			s.logger.Info("origin limit reached", "limit", opts.MaxOriginsPerRun)
			return summary, nil
		}
		if opts.MaxExecTime > 0 && s.now().Sub(started) >= opts.MaxExecTime {
			s.logger.Info("job time exhausted", "elapsed", s.now().Sub(started))
			return summary, nil
		}

		origin, err := s.Select(ctx, opts, visited)
		if err != nil {
			return summary, err
		}
		if origin == nil {
			return summary, nil
		}
		visited[origin.ID] = true

		report, err := s.runner.Run(ctx, origin, false)
		summary.record(report)
		if err != nil {
			s.logger.Error("origin run failed", "origin", origin.ID, "error", err)
		}
	}
}

// Select returns the origin to process next, or nil when none is due or the
// concurrency limit is already reached. Origins in exclude are passed over.
func (s *Scheduler) Select(ctx context.Context, opts Options, exclude map[uuid.UUID]bool) (*models.Origin, error) {
	running, err := s.store.CountOriginsInState(ctx, models.SyncInProcess)
	if err != nil {
		return nil, err
	}
	if running >= opts.MaxConcurrentTasks {
		s.logger.Debug("concurrency limit reached", "running", running, "limit", opts.MaxConcurrentTasks)
		return nil, nil
	}

	now := s.now()
	candidates, err := s.store.ListSyncCandidates(ctx, now.Add(-opts.MinExecInterval))
	if err != nil {
		return nil, err
	}

	ranked := Rank(candidates, now)
	window := opts.MaxConcurrentTasks + 1
	for i := 0; i < len(ranked) && i < window; i++ {
		o := ranked[i]
		if o.SyncCode == models.SyncInProcess || exclude[o.ID] {
			continue
		}
		return &o, nil
	}
	return nil, nil
}

// Rank orders origins by descending priority. Origins in process come last.
// Priority grows with the sync code and the minutes since the last state
// change, and is divided by 100 for origins whose last run succeeded; ties go
// to the origin updated longest ago. A never-updated origin counts as updated
// now.
func Rank(origins []models.Origin, now time.Time) []models.Origin {
	ranked := make([]models.Origin, len(origins))
	copy(ranked, origins)

	scores := make(map[uuid.UUID]float64, len(ranked))
	for _, o := range ranked {
		scores[o.ID] = score(o, now)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		aRunning, bRunning := a.SyncCode == models.SyncInProcess, b.SyncCode == models.SyncInProcess
		if aRunning != bRunning {
			return bRunning
		}
		if scores[a.ID] != scores[b.ID] {
			return scores[a.ID] > scores[b.ID]
		}
		return updatedAt(a, now).Before(updatedAt(b, now))
	})
	return ranked
}

func score(o models.Origin, now time.Time) float64 {
	minutes := now.Sub(updatedAt(o, now)).Minutes()
	s := float64(o.SyncCode)*30 + minutes
	if o.SyncCode == models.SyncSuccess {
		s /= 100
	}
	return s
}

func updatedAt(o models.Origin, now time.Time) time.Time {
	if o.SyncCodeUpdatedAt == nil {
		return now
	}
	return *o.SyncCodeUpdatedAt
}
