package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/entrepeneur4lyf/paycopilot/internal/config"
	"github.com/entrepeneur4lyf/paycopilot/internal/markdown"
	"github.com/entrepeneur4lyf/paycopilot/internal/pipeline"
)

var (
	askChatID string
	rawOutput bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question about transactions",
	Long: `Run one question through the full pipeline in-process and print the
answer. Pass --chat to continue a stored conversation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, config.Get())
		if err != nil {
			return err
		}
		defer a.Close()

		req := pipeline.Request{Query: strings.Join(args, " "), ChatType: pipeline.ChatNew}
		if askChatID != "" {
			req.ChatType = pipeline.ChatExisting
			req.ChatID = askChatID
		}
		resp := a.pipeline.Handle(ctx, req)

		if rawOutput {
			if err := printJSON(resp); err != nil {
				return err
			}
		} else {
			r, err := newRenderer()
			if err != nil {
				return err
			}
			out, err := r.Response(resp)
			if err != nil {
				return err
			}
			fmt.Print(out)
		}

		if !resp.Success {
			return fmt.Errorf("question failed: %s", resp.ErrorCode)
		}
		return nil
	},
}

var sqlCmd = &cobra.Command{
	Use:   "sql <question>",
	Short: "Show the SQL generated for a question without running it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, config.Get())
		if err != nil {
			return err
		}
		defer a.Close()

		resp := a.pipeline.GenerateSQL(ctx, strings.Join(args, " "))
		if rawOutput {
			if err := printJSON(resp); err != nil {
				return err
			}
		} else {
			r, err := newRenderer()
			if err != nil {
				return err
			}
			fmt.Print(r.SQLOnly(resp))
		}

		if !resp.Success {
			return fmt.Errorf("sql generation failed: %s", resp.ErrorCode)
		}
		return nil
	},
}

// newRenderer picks coloured output only when stdout is a terminal
func newRenderer() (*markdown.Renderer, error) {
	if fi, err := os.Stdout.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		return markdown.NewRenderer(markdown.DefaultConfig())
	}
	return markdown.NewRenderer(markdown.PlainConfig())
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	askCmd.Flags().StringVarP(&askChatID, "chat", "c", "", "Continue an existing conversation")
	askCmd.Flags().BoolVar(&rawOutput, "raw", false, "Print the JSON response")
	sqlCmd.Flags().BoolVar(&rawOutput, "raw", false, "Print the JSON response")
}
