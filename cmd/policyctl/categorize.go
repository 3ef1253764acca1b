package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/policy-rag/backend/internal/bootstrap"
	"github.com/policy-rag/backend/internal/category"
)

var categorizeCmd = &cobra.Command{
	Use:   "categorize",
	Short: "Sort the PDFs into the policy categories and save the catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *bootstrap.Container) error {
			docs, err := c.Library.List(cmd.Context())
			if err != nil {
				return err
			}
			names := make([]string, len(docs))
			for i, d := range docs {
				names[i] = d.Name
			}

			catalog, err := c.Categorizer.Categorize(cmd.Context(), names)
			if err != nil {
				return err
			}
			if err := category.Save(cfg.Categories.File, catalog); err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), catalog)
			}
			fmt.Fprint(cmd.OutOrStdout(), category.Format(catalog))
			return nil
		})
	},
}
