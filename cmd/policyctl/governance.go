package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/policy-rag/backend/internal/bootstrap"
)

var governanceCmd = &cobra.Command{
	Use:   "governance",
	Short: "Extract governance headers from every PDF into the governance database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *bootstrap.Container) error {
			report, err := c.Governance.Run(cmd.Context(), cfg.PDF.Dir)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), report)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Stored %d records, %d failed\n", len(report.Stored), len(report.Failed))
			for _, f := range report.Failed {
				fmt.Fprintf(out, "  %s: %s\n", f.Name, f.Reason)
			}
			if len(report.Failed) > 0 && cfg.Governance.FailedFile != "" {
				fmt.Fprintf(out, "Failed list written to %s\n", cfg.Governance.FailedFile)
			}
			return nil
		})
	},
}
