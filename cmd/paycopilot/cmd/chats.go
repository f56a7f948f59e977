package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/entrepeneur4lyf/paycopilot/internal/config"
	"github.com/entrepeneur4lyf/paycopilot/internal/markdown"
)

var chatsLimit int

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "Browse and manage stored conversations",
}

var chatsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, most recently active first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openStores(ctx, config.Get())
		if err != nil {
			return err
		}
		defer s.Close()

		chats := s.chats.List(ctx, chatsLimit)
		if rawOutput {
			return printJSON(chats)
		}
		return renderDocument(markdown.ChatsDocument(chats))
	},
}

var chatsHistoryCmd = &cobra.Command{
	Use:   "history <chat-id>",
	Short: "Show every turn of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openStores(ctx, config.Get())
		if err != nil {
			return err
		}
		defer s.Close()

		turns := s.chats.History(ctx, args[0])
		if len(turns) == 0 {
			return fmt.Errorf("chat %s not found", args[0])
		}
		if rawOutput {
			return printJSON(turns)
		}
		return renderDocument(markdown.HistoryDocument(args[0], turns))
	},
}

var chatsDeleteCmd = &cobra.Command{
	Use:   "delete <chat-id>",
	Short: "Delete a stored conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openStores(ctx, config.Get())
		if err != nil {
			return err
		}
		defer s.Close()

		if !s.chats.Exists(ctx, args[0]) {
			return fmt.Errorf("chat %s not found", args[0])
		}
		if !s.chats.Delete(ctx, args[0]) {
			return fmt.Errorf("failed to delete chat %s", args[0])
		}
		fmt.Printf("Chat %s deleted\n", strconv.Quote(args[0]))
		return nil
	},
}

func renderDocument(doc string) error {
	r, err := newRenderer()
	if err != nil {
		return err
	}
	out, err := r.Render(doc)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func init() {
	chatsListCmd.Flags().IntVarP(&chatsLimit, "limit", "n", 20, "Maximum conversations to list (0 for all)")
	chatsListCmd.Flags().BoolVar(&rawOutput, "raw", false, "Print JSON")
	chatsHistoryCmd.Flags().BoolVar(&rawOutput, "raw", false, "Print JSON")

	chatsCmd.AddCommand(chatsListCmd)
	chatsCmd.AddCommand(chatsHistoryCmd)
	chatsCmd.AddCommand(chatsDeleteCmd)
}
