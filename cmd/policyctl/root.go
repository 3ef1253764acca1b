package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/policy-rag/backend/internal/bootstrap"
	"github.com/policy-rag/backend/pkg/config"
	"github.com/policy-rag/backend/pkg/logger"
)

var (
	configPath string
	verbose    bool
	jsonOutput bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "policyctl",
	Short: "Operate the university policy document pipeline",
	Long: `policyctl runs the ingestion, governance and categorisation passes over the
policy PDF directory and asks questions against it from the command line.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		var err error
		cfg, err = config.LoadFile(configPath)
		if err != nil {
			return err
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		return logger.Init(logger.Options{
			Level:      level,
			Format:     "console",
			OutputPath: "stderr",
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	rootCmd.AddCommand(ingestCmd, governanceCmd, categorizeCmd, askCmd)
}

func withContainer(fn func(c *bootstrap.Container) error) error {
	c, err := bootstrap.NewContainer(cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
