package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/templedb/templedb/internal/storage"
)

var mailboxUnread bool

var mailboxCmd = &cobra.Command{
	Use:   "mailbox <session-id>",
	Short: "Show an agent's mailbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := store.MailboxSummary(rootCtx, args[0])
		if err != nil {
			return err
		}
		messages, err := store.ListMessages(rootCtx, args[0], mailboxUnread)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]any{"summary": summary, "messages": messages})
			return nil
		}
		fmt.Printf("%d messages, %d unread, %d work assignments\n",
			summary.Total, summary.Unread, summary.WorkAssignments)
		for _, msg := range messages {
			read := " "
			if msg.ReadAt == nil {
				read = "*"
			}
			fmt.Printf("%s%-6d %-16s %-9s %s\n",
				read, msg.ID, msg.MessageType, msg.Priority, msg.Subject)
		}
		return nil
	},
}

var mailboxReadCmd = &cobra.Command{
	Use:   "read <message-id>",
	Short: "Mark a message as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid message id %q: %w", args[0], storage.ErrInvalidInput)
		}
		if err := store.MarkMessageRead(rootCtx, id); err != nil {
			return err
		}
		fmt.Printf("Marked message %d read\n", id)
		return nil
	},
}

func init() {
	mailboxCmd.Flags().BoolVar(&mailboxUnread, "unread", false, "Only unread messages")
	mailboxCmd.AddCommand(mailboxReadCmd)
	rootCmd.AddCommand(mailboxCmd)
}
