package cli

import (
	"fmt"
	"text/tabwriter"

	"aero-vision/internal/export"

	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect <archive>",
		Short: "List the layers stored in an exported archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := export.ReadArchive(args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), docs)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCOLOR\tOPACITY\tFILLED\tVERTICES\tSOURCE")
			for _, d := range docs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%t\t%d\t%s\n",
					d.ID, d.Name, d.Style.Color, d.Style.Opacity, d.Style.Filled, len(d.Polygon()), d.Source)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
