package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/goplus/brewer/formula"
	"github.com/goplus/brewer/internal/deps"
	"github.com/goplus/brewer/internal/env"
	"github.com/goplus/brewer/internal/keg"
)

var (
	depsWith    []string
	depsWithout []string
)

var depsCmd = &cobra.Command{
	Use:   "deps FORMULA",
	Short: "Show how the dependencies of a formula resolve",
	Long: `Deps evaluates the dependency conditions of FORMULA for the given options
and looks every selected dependency up in the keg registry. It exits with an
error when a dependency is not satisfied.`,
	Args: cobra.ExactArgs(1),
	RunE: runDeps,
}

func init() {
	depsCmd.Flags().StringSliceVar(&depsWith, "with", nil, "Enable an option")
	depsCmd.Flags().StringSliceVar(&depsWithout, "without", nil, "Disable an option")
	rootCmd.AddCommand(depsCmd)
}

func runDeps(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	f, opts, err := loadFormula(ctx, args[0], depsWith, depsWithout)
	if err != nil {
		return err
	}
	cfg, err := env.Load()
	if err != nil {
		return err
	}
	reg, err := keg.NewLocal(cfg.Root)
	if err != nil {
		return err
	}
	return printDeps(ctx, cmd.OutOrStdout(), f, opts, reg)
}

// printDeps writes one line per dependency. Dependencies whose condition
// is false are listed as skipped and never looked up.
func printDeps(ctx context.Context, w io.Writer, f *formula.Formula, opts *formula.OptionSet, reg keg.Registry) error {
	r := deps.New(reg)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	var errs []error
	for _, d := range f.Dependencies {
		ok, err := opts.Allows(d.Condition)
		if err != nil {
			return err
		}
		status := "skipped"
		if ok {
			k, err := r.Resolve(ctx, d)
			switch {
			case err != nil:
				status = "missing"
				if errors.Is(err, deps.ErrVersionMismatch) {
					status = "mismatch"
				}
				errs = append(errs, err)
			default:
				status = k.Version + " " + k.Prefix
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Name, d.Phase, d.Version, status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return errors.Join(errs...)
}
