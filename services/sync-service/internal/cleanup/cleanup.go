// Package cleanup removes what folder reconciliation left behind.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/stoik/mailsync/services/sync-service/internal/store"
)

// Result counts removed rows
type Result struct {
	MessageUsers int64
	Folders      int64
}

type Cleaner struct {
	store  *store.Store
	logger *slog.Logger
}

func New(s *store.Store, logger *slog.Logger) *Cleaner {
	return &Cleaner{store: s, logger: logger}
}

// Run deletes message users of outdated folders, then the outdated folders
// nothing points to anymore.
func (c *Cleaner) Run(ctx context.Context, originID uuid.UUID) (Result, error) {
	var result Result
	err := c.store.InTx(ctx, func(tx *store.Tx) error {
		n, err := tx.DeleteOrphanMessageUsers(ctx, originID)
		if err != nil {
			return err
		}
		result.MessageUsers = n

		n, err = tx.DeleteEmptyOutdatedFolders(ctx, originID)
		if err != nil {
			return err
		}
		result.Folders = n
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("cleanup of origin %s failed: %w", originID, err)
	}

	if result.MessageUsers > 0 || result.Folders > 0 {
		c.logger.Info("removed outdated data", "origin", originID,
			"message_users", result.MessageUsers, "folders", result.Folders)
	}
	return result, nil
}
