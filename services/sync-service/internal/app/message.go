package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var messageCmd = &cobra.Command{
	Use:   "message",
	Short: "Operate on one stored message",
}

var messageBodyCmd = &cobra.Command{
	Use:   "body <message-id>",
	Short: "Load the full body of a message from the provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid message id %q: %w", args[0], err)
		}

		ctx := context.Background()
		c, closeDB, err := connect(ctx)
		if err != nil {
			return err
		}
		defer closeDB()

		m, err := c.processor.LoadBody(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("Subject: %s\nFrom: %s\n\n%s\n", m.Subject, m.FromAddress, m.BodyText)
		return nil
	},
}

var messageSeenCmd = &cobra.Command{
	Use:   "seen <message-user-id>",
	Short: "Mark a message as read, or unread with --unread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid message user id %q: %w", args[0], err)
		}
		unread, _ := cmd.Flags().GetBool("unread")

		ctx := context.Background()
		c, closeDB, err := connect(ctx)
		if err != nil {
			return err
		}
		defer closeDB()

		if err := c.processor.SetSeen(ctx, id, !unread); err != nil {
			return err
		}
		state := "read"
		if unread {
			state = "unread"
		}
		fmt.Printf("✓ Message user %s marked %s\n", id, state)
		return nil
	},
}

func init() {
	messageSeenCmd.Flags().Bool("unread", false, "Mark as unread instead")

	messageCmd.AddCommand(messageBodyCmd, messageSeenCmd)
	rootCmd.AddCommand(messageCmd)
}
