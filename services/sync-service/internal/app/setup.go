package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stoik/mailsync/services/sync-service/internal/db"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the database schema",
	Long:  "Creates the tables and indexes used by the sync service. Safe to run more than once.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		// Initialize database
		if err := db.Init(ctx); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close()

		logger.Info("running migrations")
		if err := db.Migrate(ctx, db.DB); err != nil {
			return err
		}

		fmt.Println("✓ Database setup complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
