package main

import (
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

func newLogsCommand() *cobra.Command {
	var (
		addr   string
		limit  int
		level  string
		source string
	)
	cmd := &cobra.Command{
		Use:     "logs",
		Short:   "Show recent log entries from a running core",
		Example: `  inanna logs --limit=50 --source=Scheduler`,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			params.Set("limit", strconv.Itoa(limit))
			if level != "" {
				params.Set("level", level)
			}
			if source != "" {
				params.Set("source", source)
			}
			data, err := fetch(addr+"/logs/recent", params)
			if err != nil {
				return err
			}
			return outputJSON(cmd.OutOrStdout(), data)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", getDefaultAddr(), "Ops HTTP address of the running core")
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "Number of log entries")
	cmd.Flags().StringVar(&level, "level", "", "Only entries at this level")
	cmd.Flags().StringVar(&source, "source", "", "Only entries from this component")
	return cmd
}
