package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"journalagent/agent"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the merged tool set offered to the model",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Close()

		a, err := build(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.close()

		ts := a.registry.GetTools(cmd.Context())
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSOURCE\tDESCRIPTION")
		for _, s := range ts.Schemas {
			h, _ := ts.Lookup(s.Name)
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, h.Kind, agent.TruncateString(firstLine(s.Description), 80))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if ts.Degraded {
			fmt.Fprintln(os.Stderr, "warning: gateway unreachable, only local tools listed")
		}
		return nil
	},
}
