package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stoik/mailsync/services/sync-service/internal/scheduler"
	"golang.org/x/sync/errgroup"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one synchronization job",
	Long: `Selects due origins and synchronizes them until none is left or a job
limit is reached. With --ids only the named origins are synchronized.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := schedulerOptions(viper.GetViper())

		rawIDs, _ := cmd.Flags().GetStringSlice("ids")
		for _, raw := range rawIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				return fmt.Errorf("invalid origin id %q: %w", raw, err)
			}
			opts.IDs = append(opts.IDs, id)
		}
		opts.Force, _ = cmd.Flags().GetBool("force")
		if opts.Force && len(opts.IDs) == 0 {
			return scheduler.ErrForceWithoutIDs
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c, closeDB, err := connect(ctx)
		if err != nil {
			return err
		}
		defer closeDB()

		summary, err := c.scheduler.RunJob(ctx, opts)
		logger.Info("sync job finished", "processed", summary.Processed,
			"skipped", summary.Skipped, "failed", summary.Failed)
		return err
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync service",
	Long:  "Runs sweep jobs every sync.run_interval with up to sync.max_concurrent_tasks workers until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c, closeDB, err := connect(ctx)
		if err != nil {
			return err
		}
		defer closeDB()

		opts := schedulerOptions(viper.GetViper())
		interval := viper.GetDuration("sync.run_interval")
		if interval <= 0 {
			interval = time.Minute
		}

		logger.Info("sync service started", "interval", interval, "workers", opts.MaxConcurrentTasks)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			sweep(ctx, c.scheduler, opts)

			select {
			case <-ctx.Done():
				logger.Info("shutting down")
				return nil
			case <-ticker.C:
			}
		}
	},
}

// sweep runs one job per worker and waits for all of them
func sweep(ctx context.Context, sched *scheduler.Scheduler, opts scheduler.Options) {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < opts.MaxConcurrentTasks; i++ {
		worker := i
		g.Go(func() error {
			summary, err := sched.RunJob(gctx, opts)
			if err != nil {
				return fmt.Errorf("worker %d: %w", worker, err)
			}
			if summary.Processed > 0 {
				logger.Debug("worker finished", "worker", worker, "processed", summary.Processed, "failed", summary.Failed)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("sync sweep failed", "error", err)
	}
}

func init() {
	syncCmd.Flags().StringSlice("ids", nil, "Origin ids to synchronize, bypassing selection")
	syncCmd.Flags().Bool("force", false, "Re-process messages already stored (requires --ids)")
	syncCmd.Flags().Int("max-concurrent-tasks", 3, "Maximum number of origins in process at once")
	syncCmd.Flags().Int("min-exec-interval", 5, "Minutes before the same origin is synchronized again")
	syncCmd.Flags().Int("max-exec-time", 5, "Minutes after which no new origin is picked, -1 for no limit")
	syncCmd.Flags().Int("max-origins", 0, "Maximum origins per job, 0 for no limit")

	viper.BindPFlag("sync.max_concurrent_tasks", syncCmd.Flags().Lookup("max-concurrent-tasks"))
	viper.BindPFlag("sync.min_exec_interval", syncCmd.Flags().Lookup("min-exec-interval"))
	viper.BindPFlag("sync.max_exec_time", syncCmd.Flags().Lookup("max-exec-time"))
	viper.BindPFlag("sync.max_origins_per_run", syncCmd.Flags().Lookup("max-origins"))

	rootCmd.AddCommand(syncCmd, runCmd)
}
