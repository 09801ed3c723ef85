package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stoik/mailsync/services/sync-service/internal/models"
)

var originCmd = &cobra.Command{
	Use:   "origin",
	Short: "Manage connected mailboxes",
}

var originAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Connect a mailbox",
	Long: `Registers a mailbox. For the provider API, --account is the grant id and
--token its bearer token. For IMAP, --account is host:port, --mailbox the login
and --token the password.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		origin, err := originFromFlags(cmd)
		if err != nil {
			return err
		}

		ctx := context.Background()
		c, closeDB, err := connect(ctx)
		if err != nil {
			return err
		}
		defer closeDB()

		if err := c.store.CreateOrigin(ctx, origin); err != nil {
			return err
		}
		fmt.Printf("✓ Origin %s created for %s (default: %t)\n", origin.ID, origin.MailboxName, origin.IsDefault)
		return nil
	},
}

var originDeactivateCmd = &cobra.Command{
	Use:   "deactivate <origin-id>",
	Short: "Stop synchronizing a mailbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid origin id %q: %w", args[0], err)
		}

		ctx := context.Background()
		c, closeDB, err := connect(ctx)
		if err != nil {
			return err
		}
		defer closeDB()

		if err := c.store.DeactivateOrigin(ctx, id); err != nil {
			return err
		}
		fmt.Printf("✓ Origin %s deactivated\n", id)
		return nil
	},
}

var originListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connected mailboxes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		c, closeDB, err := connect(ctx)
		if err != nil {
			return err
		}
		defer closeDB()

		origins, err := c.store.ListOrigins(ctx)
		if err != nil {
			return err
		}
		for _, o := range origins {
			updated := "never"
			if o.SyncCodeUpdatedAt != nil {
				updated = o.SyncCodeUpdatedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%s  %-30s  %-5s  active=%-5t  default=%-5t  %-16s  %s\n",
				o.ID, o.MailboxName, o.Provider, o.IsActive, o.IsDefault, o.SyncCode, updated)
		}
		return nil
	},
}

func originFromFlags(cmd *cobra.Command) (*models.Origin, error) {
	flags := cmd.Flags()
	mailbox, _ := flags.GetString("mailbox")
	account, _ := flags.GetString("account")
	if mailbox == "" || account == "" {
		return nil, fmt.Errorf("--mailbox and --account are required")
	}

	providerName, _ := flags.GetString("provider")
	if providerName != models.ProviderAPI && providerName != models.ProviderIMAP {
		return nil, fmt.Errorf("unsupported provider %q", providerName)
	}

	origin := &models.Origin{
		MailboxName: mailbox,
		AccountID:   account,
		Provider:    providerName,
	}
	origin.TokenType, _ = flags.GetString("token-type")
	origin.AccessToken, _ = flags.GetString("token")

	var err error
	owner, _ := flags.GetString("owner")
	if owner == "" {
		origin.OwnerID = uuid.New()
	} else if origin.OwnerID, err = uuid.Parse(owner); err != nil {
		return nil, fmt.Errorf("invalid owner id: %w", err)
	}

	for flag, target := range map[string]*uuid.NullUUID{
		"organization":   &origin.OrganizationID,
		"shared-mailbox": &origin.MailboxID,
	} {
		raw, _ := flags.GetString(flag)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid --%s: %w", flag, err)
		}
		*target = uuid.NullUUID{UUID: id, Valid: true}
	}
	return origin, nil
}

func init() {
	originAddCmd.Flags().String("mailbox", "", "Mailbox address, or IMAP login")
	originAddCmd.Flags().String("account", "", "Provider grant id, or IMAP host:port")
	originAddCmd.Flags().String("provider", models.ProviderAPI, "Provider: 'nylas' or 'imap'")
	originAddCmd.Flags().String("token", "", "Bearer token, or IMAP password")
	originAddCmd.Flags().String("token-type", "bearer", "Token type")
	originAddCmd.Flags().String("owner", "", "Owner id (generated when empty)")
	originAddCmd.Flags().String("organization", "", "Organization id")
	originAddCmd.Flags().String("shared-mailbox", "", "Shared mailbox id; history before connection is skipped")

	originCmd.AddCommand(originAddCmd, originDeactivateCmd, originListCmd)
	rootCmd.AddCommand(originCmd)
}
