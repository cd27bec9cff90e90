package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shpitdev/appointment-contact-resolver/internal/contact"
)

func newExtractCmd() *cobra.Command {
	var explain bool

	cmd := &cobra.Command{
		Use:   "extract [title]...",
		Short: "Print the name extracted from each appointment title",
		Example: `  resolver extract "Destiny - Recurring Cleaning" "Smith Residence"
  resolver extract --explain "Cleaning for Sarah Johnson"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, title := range args {
				if explain {
					ex := contact.Explain(title)
					_, _ = fmt.Fprintf(out, "%s\t%s\t%s\n", title, ex.Name, ex.Rule)
					continue
				}
				_, _ = fmt.Fprintf(out, "%s\t%s\n", title, contact.ExtractName(title))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&explain, "explain", false, "Also print which rule produced the name")
	return cmd
}
