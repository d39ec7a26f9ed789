package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/tiancaiamao/hostbridge/pkg/framing"
	"github.com/tiancaiamao/hostbridge/pkg/metrics"
	"github.com/tiancaiamao/hostbridge/pkg/relay"
	"github.com/tiancaiamao/hostbridge/pkg/telemetry"
)

var relayOpts struct {
	listen  string
	host    string
	framing string
	timeout int
}

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the HTTP relay in front of the command server",
	Long: `Run the HTTP relay. POST /run-tool with {"type": ..., "params": {...}}
is forwarded to the command server on a fresh connection and its response
is returned: 200 on success, 500 on error, 400 for a malformed request.`,
	RunE: runRelay,
}

func init() {
	fs := relayCmd.Flags()
	fs.StringVar(&relayOpts.listen, "listen", "", "HTTP listen address")
	fs.StringVar(&relayOpts.host, "host", "", "command server address")
	fs.StringVar(&relayOpts.framing, "framing", "", "wire framing (brace|depth)")
	fs.IntVar(&relayOpts.timeout, "timeout", 0, "round-trip timeout in seconds")
}

// newHostClient builds a command server client from the relay config.
func newHostClient() (*relay.HostClient, error) {
	framer, err := framing.ByName(cfg.Relay.Framing)
	if err != nil {
		return nil, err
	}
	client := relay.NewHostClient(cfg.Relay.HostAddress, framer, log.Logger)
	client.Timeout = time.Duration(cfg.Relay.Timeout) * time.Second
	return client, nil
}

func runRelay(cmd *cobra.Command, _ []string) error {
	fs := cmd.Flags()
	if fs.Changed("listen") {
		cfg.Relay.Listen = relayOpts.listen
	}
	if fs.Changed("host") {
		cfg.Relay.HostAddress = relayOpts.host
	}
	if fs.Changed("framing") {
		cfg.Relay.Framing = relayOpts.framing
	}
	if fs.Changed("timeout") {
		cfg.Relay.Timeout = relayOpts.timeout
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	shutdownTracing, err := telemetry.Setup(cmd.Context(), cfg.Telemetry, "relay")
	if err != nil {
		return err
	}
	defer flush(shutdownTracing)

	client, err := newHostClient()
	if err != nil {
		return err
	}
	srv := relay.NewServer(client, log.Logger, relay.WithMetrics(metrics.New()))
	return srv.ListenAndServe(cmd.Context(), cfg.Relay.Listen)
}
