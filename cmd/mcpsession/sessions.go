package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newSessionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List session records kept in the configured store",
		Long: `List session records. A record lives as long as the process holding the
session; other processes only see it through a redis store
(redis.addr or MCPSESSION_REDIS__ADDR).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer a.teardown(cmd.Context())
			records, err := a.registry.Store().List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tENDPOINT\tSERVER\tSTATE\tLAST USED")
			for _, record := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", record.Key, record.Endpoint, record.ServerName, record.State, record.LastUsedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}
