package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tiancaiamao/hostbridge/pkg/config"
	"github.com/tiancaiamao/hostbridge/pkg/logger"
)

var (
	configPath string
	debug      bool

	cfg *config.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "hostbridge",
	Short: "Bridge AI agents to a single-threaded host application",
	Long: `hostbridge connects agents to a host that owns its state on one thread.

  host    run the simulated host with its command server and console
  relay   run the HTTP relay in front of the command server
  mcp     serve the tool catalog over MCP (stdio), forwarding to the relay
  call    send one command through the relay or straight to the host`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		path := configPath
		if path == "" {
			var err error
			if path, err = config.GetDefaultConfigPath(); err != nil {
				return err
			}
		}
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded

		l, err := cfg.Log.CreateLogger()
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		if debug {
			l.SetLevel(logger.DEBUG)
		}
		log = l
		slog.SetDefault(l.Logger)
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if log != nil {
			log.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.hostbridge/config.json)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(hostCmd, relayCmd, mcpCmd, callCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
