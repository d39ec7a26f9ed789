package main

import (
	"github.com/spf13/cobra"

	"github.com/tiancaiamao/hostbridge/pkg/mcpbridge"
)

var mcpRelayURL string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the host tools over MCP on stdio",
	Long: `Serve every host tool as an MCP tool on stdin/stdout. Calls are
forwarded to the relay; host errors come back as error results.
Logs go to stderr and the log file, never stdout.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Flags().Changed("relay-url") {
			cfg.MCP.RelayURL = mcpRelayURL
		}
		client := mcpbridge.NewRelayClient(cfg.MCP.RelayURL, log.Logger)
		client.Retry.MaxAttempts = cfg.MCP.Retries + 1
		return mcpbridge.New(client, nil, log.Logger).Run(cmd.Context())
	},
}

func init() {
	mcpCmd.Flags().StringVar(&mcpRelayURL, "relay-url", "", "relay base URL")
}
