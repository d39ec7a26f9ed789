package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tiancaiamao/hostbridge/pkg/mcpbridge"
	"github.com/tiancaiamao/hostbridge/pkg/rpc"
)

var callDirect bool

var callCmd = &cobra.Command{
	Use:   "call <type> [params-json]",
	Short: "Send one command and print the response",
	Example: `  hostbridge call get_scene_info
  hostbridge call get_object_info '{"object_name":"Cube"}'
  hostbridge call --direct execute_code '{"code":"print(scene.name())"}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := json.RawMessage("{}")
		if len(args) == 2 {
			if !json.Valid([]byte(args[1])) {
				return fmt.Errorf("params must be valid JSON")
			}
			params = json.RawMessage(args[1])
		}

		var resp rpc.Response
		if callDirect {
			client, err := newHostClient()
			if err != nil {
				return err
			}
			body, err := json.Marshal(struct {
				Type   string          `json:"type"`
				Params json.RawMessage `json:"params"`
			}{args[0], params})
			if err != nil {
				return err
			}
			reply, err := client.Send(cmd.Context(), body)
			if err != nil {
				return err
			}
			resp = reply.Response
		} else {
			client := mcpbridge.NewRelayClient(cfg.MCP.RelayURL, log.Logger)
			client.Retry.MaxAttempts = 1
			var err error
			if resp, err = client.RunTool(cmd.Context(), args[0], params); err != nil {
				return err
			}
		}

		out, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(out))
		if resp.IsError() {
			return errors.New(resp.Message)
		}
		return nil
	},
}

func init() {
	callCmd.Flags().BoolVar(&callDirect, "direct", false, "talk to the command server instead of the relay")
}
