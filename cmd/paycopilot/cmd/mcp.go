package cmd

import (
	"github.com/spf13/cobra"

	"github.com/entrepeneur4lyf/paycopilot/internal/config"
	"github.com/entrepeneur4lyf/paycopilot/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the transaction tools over the Model Context Protocol",
	Long: `Serve MCP tools over stdio:
- ask_transactions    answer a question, optionally within a conversation
- generate_sql        show the SQL for a question without running it
- transaction_summary count transactions by final status
- user_transactions   list a user's most recent transaction events`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), config.Get())
		if err != nil {
			return err
		}
		defer a.Close()

		return mcpserver.New(version, a.pipeline, a.reports, mcpserver.WithSchema(a.schema)).ServeStdio()
	},
}
