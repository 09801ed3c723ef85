package app

import (
	"time"

	"github.com/spf13/viper"
	"github.com/stoik/mailsync/services/sync-service/internal/provider"
	"github.com/stoik/mailsync/services/sync-service/internal/scheduler"
	"github.com/stoik/mailsync/services/sync-service/internal/syncer"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider.timeout", 60*time.Second)
	v.SetDefault("imap.timeout", 60*time.Second)

	v.SetDefault("sync.max_concurrent_tasks", 3)
	v.SetDefault("sync.min_exec_interval", 5)
	v.SetDefault("sync.max_exec_time", 5)
	v.SetDefault("sync.max_origins_per_run", 0)
	v.SetDefault("sync.batch_size", 100)
	v.SetDefault("sync.max_origin_sync_time", 30*time.Minute)
	v.SetDefault("sync.initial_window", 720*time.Hour)
	v.SetDefault("sync.hanged_after", 24*time.Hour)
	v.SetDefault("sync.run_interval", time.Minute)
}

func providerFactory(v *viper.Viper) *provider.Factory {
	api := provider.DefaultConfig()
	if u := v.GetString("provider.api_url"); u != "" {
		api.BaseURL = u
	}
	if d := v.GetDuration("provider.timeout"); d > 0 {
		api.Timeout = d
	}

	return &provider.Factory{
		API:    api,
		IMAP:   provider.IMAPConfig{Timeout: v.GetDuration("imap.timeout")},
		Logger: logger,
	}
}

func syncerOptions(v *viper.Viper) syncer.Options {
	return syncer.Options{
		BatchSize:         v.GetInt("sync.batch_size"),
		MaxOriginSyncTime: v.GetDuration("sync.max_origin_sync_time"),
		InitialWindow:     v.GetDuration("sync.initial_window"),
	}
}

// schedulerOptions reads the job limits; intervals are configured in minutes
// and a negative max_exec_time disables the job time limit
func schedulerOptions(v *viper.Viper) scheduler.Options {
	opts := scheduler.Options{
		MaxConcurrentTasks: v.GetInt("sync.max_concurrent_tasks"),
		MinExecInterval:    time.Duration(v.GetInt("sync.min_exec_interval")) * time.Minute,
		MaxExecTime:        time.Duration(v.GetInt("sync.max_exec_time")) * time.Minute,
		MaxOriginsPerRun:   v.GetInt("sync.max_origins_per_run"),
		HangedAfter:        v.GetDuration("sync.hanged_after"),
	}
	if opts.MaxConcurrentTasks <= 0 {
		opts.MaxConcurrentTasks = 1
	}
	if opts.MaxExecTime < 0 {
		opts.MaxExecTime = 0
	}
	return opts
}
