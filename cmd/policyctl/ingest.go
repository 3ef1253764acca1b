package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/policy-rag/backend/internal/bootstrap"
	"github.com/policy-rag/backend/internal/domain"
)

var (
	ingestTier  string
	ingestPurge bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Extract, chunk and index the PDF directory for a precision tier",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tier, err := domain.ParseTier(ingestTier)
		if err != nil {
			return err
		}

		return withContainer(func(c *bootstrap.Container) error {
			if ingestPurge {
				if err := c.PurgeCache(cmd.Context()); err != nil {
					return err
				}
			}

			report, err := c.Query.Ingest(cmd.Context(), tier)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), report)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Tier %s: %d files, %d chunks (%d reused, %d extracted) in %s\n",
				report.Tier, len(report.Files), len(report.Chunks), len(report.Reused), len(report.Extracted), report.Duration)
			for _, f := range report.Failed {
				fmt.Fprintf(out, "  failed: %s: %s\n", f.Name, f.Error)
			}
			return nil
		})
	},
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestTier, "tier", "t", string(domain.DefaultTier), "precision tier: low, medium or high")
	ingestCmd.Flags().BoolVar(&ingestPurge, "purge", false, "drop every cached chunk entry first, forcing full re-extraction")
}
