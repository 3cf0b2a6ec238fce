package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/desk/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an MCP client talk to customers through desk and inspect its
records. Configure the client with:

  {
    "mcpServers": {
      "desk": { "command": "desk", "args": ["mcp"] }
    }
  }

Available tools: desk_process_message, desk_classify_message,
desk_get_session, desk_list_fault_reports, desk_list_escalations`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		a, err := buildAgent()
		if err != nil {
			return err
		}
		defer closeStore()
		defer a.Close()

		sweeper, err := a.memory.StartSweeper(viper.GetDuration("memory.sweep_interval"), func() {
			a.security.Prune()
		})
		if err != nil {
			return err
		}
		defer sweeper.Stop()

		return mcp.NewServer(a.pipeline, a.store, buildVersion).ServeStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
