package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/issueboard/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

Tools act as the user signed in with 'issueboard auth login'.
Configure in an MCP client with:

  {
    "mcpServers": {
      "issueboard": { "command": "issueboard", "args": ["mcp"] }
    }
  }

Available tools: issueboard_list_issues, issueboard_check_duplicates,
issueboard_create_issue, issueboard_update_status`,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := newMCPServer()
		if err != nil {
			return err
		}
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func newMCPServer() (*mcp.Server, error) {
	svc, err := getService()
	if err != nil {
		return nil, err
	}
	sess, err := getSession()
	if err != nil {
		return nil, err
	}
	return mcp.NewServer(svc, sess, viper.GetInt("duplicates.max_shown"), buildVersion), nil
}
