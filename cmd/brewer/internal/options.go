package internal

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/goplus/brewer/formula"
	"github.com/goplus/brewer/internal/recipe"
)

var optionsCmd = &cobra.Command{
	Use:   "options FORMULA",
	Short: "List the build options of a formula",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := recipe.Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printOptions(cmd.OutOrStdout(), f)
	},
}

func init() {
	rootCmd.AddCommand(optionsCmd)
}

// printOptions lists every option with the flag that flips its default.
func printOptions(w io.Writer, f *formula.Formula) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, o := range f.Options {
		flip := "--with " + o.Name
		if o.Default {
			flip = "--without " + o.Name
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", o.Name, flip, o.Description)
	}
	return tw.Flush()
}
