package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/policy-rag/backend/internal/bootstrap"
	"github.com/policy-rag/backend/internal/domain"
	"github.com/policy-rag/backend/internal/query"
)

var askTier string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question against the policy documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tier, err := domain.ParseTier(askTier)
		if err != nil {
			return err
		}

		return withContainer(func(c *bootstrap.Container) error {
			resp, err := c.Query.Ask(cmd.Context(), query.Request{
				Query: strings.Join(args, " "),
				Tier:  tier,
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), resp)
			}

			out := cmd.OutOrStdout()
			if !resp.Cited {
				fmt.Fprintln(out, resp.Notice)
				fmt.Fprintf(out, "\nRelevance: %.0f/100\n", resp.Score)
				return nil
			}

			fmt.Fprintln(out, resp.Answer)
			fmt.Fprintf(out, "\nRelevance: %.0f/100", resp.Score)
			if resp.Explanation != "" {
				fmt.Fprintf(out, " (%s)", resp.Explanation)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Sources:")
			for _, s := range resp.Sources {
				fmt.Fprintf(out, "  - %s\n", s.File)
			}
			return nil
		})
	},
}

func init() {
	askCmd.Flags().StringVarP(&askTier, "tier", "t", string(domain.DefaultTier), "precision tier: low, medium or high")
}
