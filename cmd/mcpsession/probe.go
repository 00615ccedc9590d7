package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/viant/mcpsession/client"
)

func newProbeCmd(a *app) *cobra.Command {
	var tool, args string
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Open a session, initialize, list tools and optionally call one",
		Long: `Run the full handshake against a server: resolve the session endpoint,
initialize, list tools and, when --tool is given, call that tool.

Examples:
  mcpsession probe --base http://localhost:5678 --path /sse
  mcpsession probe --base http://localhost:5678 --tool wikipedia --args '{"query":"golang"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			arguments, err := parseArguments(args)
			if err != nil {
				return err
			}
			return a.withSession(cmd.Context(), func(ctx context.Context, session *client.Session) error {
				out := cmd.OutOrStdout()
				info := session.ServerInfo()
				fmt.Fprintf(out, "endpoint: %s\n", session.EndpointURL())
				fmt.Fprintf(out, "server: %s %s (protocol %s)\n", info.ServerInfo.Name, info.ServerInfo.Version, info.ProtocolVersion)
				tools, err := session.ListTools(ctx)
				if err != nil {
					return fmt.Errorf("tools/list failed: %w", err)
				}
				fmt.Fprintf(out, "tools: %d\n", len(tools))
				for _, t := range tools {
					fmt.Fprintf(out, "  %s\n", t.Name)
				}
				if tool == "" {
					return nil
				}
				return callTool(ctx, cmd, session, tool, arguments)
			})
		},
	}
	cmd.Flags().StringVar(&tool, "tool", "", "Tool to call after listing")
	cmd.Flags().StringVar(&args, "args", "", "Tool arguments as a JSON object")
	return cmd
}
