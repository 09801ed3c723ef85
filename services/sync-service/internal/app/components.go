package app

import (
	"context"
	"fmt"

	"github.com/spf13/viper"
	"github.com/stoik/mailsync/services/sync-service/internal/cleanup"
	"github.com/stoik/mailsync/services/sync-service/internal/db"
	"github.com/stoik/mailsync/services/sync-service/internal/folders"
	"github.com/stoik/mailsync/services/sync-service/internal/scheduler"
	"github.com/stoik/mailsync/services/sync-service/internal/store"
	"github.com/stoik/mailsync/services/sync-service/internal/syncer"
)

// components is the wired service, built once per command
type components struct {
	store     *store.Store
	processor *syncer.Processor
	scheduler *scheduler.Scheduler
}

func newComponents(s *store.Store, v *viper.Viper) *components {
	processor := syncer.NewProcessor(s,
		providerFactory(v),
		folders.NewReconciler(s, folders.DefaultRoleTable(), logger),
		cleanup.New(s, logger),
		syncerOptions(v),
		logger)

	return &components{
		store:     s,
		processor: processor,
		scheduler: scheduler.New(s, processor, logger),
	}
}

// connect opens the configured database and wires the components.
// The returned func closes the database.
func connect(ctx context.Context) (*components, func(), error) {
	if err := db.Init(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return newComponents(store.New(db.DB), viper.GetViper()), db.Close, nil
}
