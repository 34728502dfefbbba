package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bharatr21/clinical-trials-agent/internal/conversation"
	"github.com/bharatr21/clinical-trials-agent/pkg/types"
)

var (
	listLimit  int
	listOffset int
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Manage stored conversations",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored conversations",
	RunE:  runConversationsList,
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a conversation's messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsShow,
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsDelete,
}

func init() {
	conversationsListCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum conversations to list")
	conversationsListCmd.Flags().IntVar(&listOffset, "offset", 0, "Skip this many conversations")

	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsShowCmd)
	conversationsCmd.AddCommand(conversationsDeleteCmd)
}

func runConversationsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := buildClient(cfg)
	if err != nil {
		return err
	}

	list, err := c.ListConversations(cmd.Context(), listLimit, listOffset)
	if err != nil {
		return err
	}
	if list.Total == 0 {
		fmt.Println("No conversations yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUPDATED\tTITLE")
	for _, conv := range list.Conversations {
		fmt.Fprintf(w, "%s\t%s\t%s\n", conv.ID, conv.UpdatedAt, conv.Title)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d of %d conversations\n", len(list.Conversations), list.Total)
	return nil
}

func runConversationsShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := buildClient(cfg)
	if err != nil {
		return err
	}

	detail, err := c.GetConversation(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s  (updated %s)\n\n", detail.Title, detail.UpdatedAt)
	for _, msg := range conversation.Reconstruct(detail.Messages) {
		switch msg.Role {
		case types.RoleUser:
			fmt.Printf("> %s\n", msg.Content)
		case types.RoleAssistant:
			fmt.Printf("%s\n", msg.Content)
			if msg.SQL != "" {
				fmt.Printf("  sql: %s\n", msg.SQL)
			}
		}
		fmt.Println()
	}
	return nil
}

func runConversationsDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := buildClient(cfg)
	if err != nil {
		return err
	}

	if err := c.DeleteConversation(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted conversation %s\n", args[0])
	return nil
}
