package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Rheron1848/mcprt/pkg/client"
	"github.com/Rheron1848/mcprt/pkg/config"
	"github.com/Rheron1848/mcprt/pkg/logging"
	"github.com/Rheron1848/mcprt/pkg/protocol"
	"github.com/Rheron1848/mcprt/pkg/transport"
)

var (
	callURL      string
	callCommand  string
	callArgs     []string
	callTimeout  time.Duration
	callProgress bool
)

var callCmd = &cobra.Command{
	Use:   "call METHOD [PARAMS_JSON]",
	Short: "Connect to a server, call one method and print the result",
	Example: `  mcprt call add '{"a": 1, "b": 2}' --url http://localhost:8080/mcp
  mcprt call countdown '{"from": 3}' --command mcprt --arg serve --progress`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("url") {
			cfg.Client.URL = callURL
		}
		if cmd.Flags().Changed("command") {
			cfg.Client.Command = callCommand
			cfg.Client.Args = callArgs
		}
		if cmd.Flags().Changed("timeout") {
			cfg.Client.RequestTimeout = callTimeout
		}

		var params json.RawMessage
		if len(args) == 2 {
			if params, err = parseParams(args[1]); err != nil {
				return err
			}
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Client.RequestTimeout)
		defer cancel()

		c, err := connect(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer c.Close()

		result, err := c.Call(ctx, args[0], params)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

func init() {
	callCmd.Flags().StringVar(&callURL, "url", "", "Streamable HTTP endpoint of the server")
	callCmd.Flags().StringVar(&callCommand, "command", "", "Server command to launch and talk to over stdio")
	callCmd.Flags().StringArrayVar(&callArgs, "arg", nil, "Argument for --command (repeatable)")
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 30*time.Second, "Overall timeout for connect and call")
	callCmd.Flags().BoolVar(&callProgress, "progress", false, "Print progress notifications to stderr")
}

func connect(ctx context.Context, cfg *config.Config, logger logging.Logger) (*client.Client, error) {
	opts := []client.Option{
		client.WithName("mcprt"),
		client.WithVersion(version),
		client.WithLogger(logger),
	}
	if callProgress {
		opts = append(opts, client.WithProgressHandler(func(_ context.Context, p protocol.ProgressParams) {
			fmt.Fprintf(os.Stderr, "progress %v/%v %s\n", p.Progress, p.Total, p.Message)
		}))
	}

	if cfg.Client.Command != "" {
		return client.ConnectCommand(ctx, cfg.Client.Command, cfg.Client.Args, opts...)
	}

	httpOpts := []transport.HTTPClientOption{
		transport.WithHTTPLogger(logger),
		transport.WithRetryPolicy(cfg.Client.Retries, 500*time.Millisecond, 5*time.Second),
	}
	if cfg.Client.Token != "" {
		httpOpts = append(httpOpts, transport.WithHeader("Authorization", "Bearer "+cfg.Client.Token))
	}
	t, err := transport.NewStreamableHTTPClientTransport(cfg.Client.URL, httpOpts...)
	if err != nil {
		return nil, err
	}
	return client.Connect(ctx, t, opts...)
}

func parseParams(arg string) (json.RawMessage, error) {
	if !json.Valid([]byte(arg)) {
		return nil, fmt.Errorf("params must be valid JSON: %s", arg)
	}
	return json.RawMessage(arg), nil
}

func printJSON(cmd *cobra.Command, raw json.RawMessage) error {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
