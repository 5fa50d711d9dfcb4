package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jordanhubbard/inanna/pkg/config"
)

const version = "1.0.0"

var configPath string

func main() {
	// A missing .env file is not an error
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "inanna",
		Short: "Inanna companion core",
		Long: `inanna runs the companion core: a single-consumer message dispatcher,
the periodic task scheduler and the text pipeline, with a console front end.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", getDefaultConfig(), "Path to configuration file")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newConfigCommand())
	rootCmd.AddCommand(newFactsCommand())
	rootCmd.AddCommand(newLogsCommand())
	rootCmd.AddCommand(newJobsCommand())
	rootCmd.AddCommand(newVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func getDefaultConfig() string {
	if path := os.Getenv("INANNA_CONFIG"); path != "" {
		return path
	}
	return config.DefaultConfigFile
}

// loadConfig reads configPath, falling back to the defaults when the file
// does not exist
func loadConfig() (*config.Config, bool, error) {
	cfg, err := config.LoadConfigFromFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return config.DefaultConfig(), false, nil
		}
		return nil, false, fmt.Errorf("load %s: %w", configPath, err)
	}
	return cfg, true, nil
}
