package main

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/viant/mcpsession/client"
)

func newCallCmd(a *app) *cobra.Command {
	var args string
	cmd := &cobra.Command{
		Use:   "call NAME",
		Short: "Call a tool and print its result",
		Long: `Call a tool by name. The command fails when the server answers with a
JSON-RPC error or the tool result is flagged isError.

Examples:
  mcpsession call wikipedia --args '{"query":"golang"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, positional []string) error {
			arguments, err := parseArguments(args)
			if err != nil {
				return err
			}
			return a.withSession(cmd.Context(), func(ctx context.Context, session *client.Session) error {
				return callTool(ctx, cmd, session, positional[0], arguments)
			})
		},
	}
	cmd.Flags().StringVar(&args, "args", "", "Tool arguments as a JSON object")
	return cmd
}

func parseArguments(args string) (map[string]interface{}, error) {
	if args == "" {
		return nil, nil
	}
	ret := map[string]interface{}{}
	if err := json.Unmarshal([]byte(args), &ret); err != nil {
		return nil, fmt.Errorf("invalid --args, expected a JSON object: %w", err)
	}
	return ret, nil
}

func callTool(ctx context.Context, cmd *cobra.Command, session *client.Session, name string, arguments map[string]interface{}) error {
	result, err := session.CallTool(ctx, name, arguments)
	if err != nil {
		return fmt.Errorf("tools/call %v failed: %w", name, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), result.Text())
	if result.IsError {
		return fmt.Errorf("%v: %w", name, errToolFailed)
	}
	return nil
}
