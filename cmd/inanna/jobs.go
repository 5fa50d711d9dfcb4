package main

import (
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

func newJobsCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List or trigger scheduled jobs on a running core",
	}
	cmd.PersistentFlags().StringVar(&addr, "addr", getDefaultAddr(), "Ops HTTP address of the running core")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show scheduled jobs and their next run",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := fetch(addr+"/jobs", nil)
			if err != nil {
				return err
			}
			return outputJSON(cmd.OutOrStdout(), data)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:     "run <tag>",
		Short:   "Run a job immediately",
		Example: `  inanna jobs run external_fact`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := do(http.MethodPost, addr+"/jobs/run", url.Values{"tag": {args[0]}})
			if err != nil {
				return err
			}
			return outputJSON(cmd.OutOrStdout(), data)
		},
	})
	return cmd
}
