package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jordanhubbard/inanna/internal/scheduler"
)

const factDeadline = 30 * time.Second

func newFactsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "facts",
		Short: "Fetch one fact from the configured fact source",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), factDeadline)
			defer cancel()

			fact, err := scheduler.NewFactFetcher(cfg.Updates.FactSourceURL, cfg.Updates.FactTimeout).Fetch(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", scheduler.FactSource, fact)
			return nil
		},
	}
}
