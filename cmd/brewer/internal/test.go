package internal

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goplus/brewer/formula"
	"github.com/goplus/brewer/internal/build"
	"github.com/goplus/brewer/internal/env"
	"github.com/goplus/brewer/internal/keg"
	"github.com/goplus/brewer/internal/recipe"
)

var (
	testWith    []string
	testWithout []string
	testVerbose bool
)

var testCmd = &cobra.Command{
	Use:   "test FORMULA",
	Short: "Run the post-install tests of an installed formula",
	Long: `Test runs the test blocks of FORMULA against its installed keg. Options
are those the keg was built with unless --with or --without is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runTest,
}

func init() {
	testCmd.Flags().StringSliceVar(&testWith, "with", nil, "Enable an option")
	testCmd.Flags().StringSliceVar(&testWithout, "without", nil, "Disable an option")
	testCmd.Flags().BoolVarP(&testVerbose, "verbose", "v", false, "Show the output of test commands")
	rootCmd.AddCommand(testCmd)
}

func runTest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := env.Load()
	if err != nil {
		return err
	}
	f, err := recipe.Load(ctx, args[0])
	if err != nil {
		return err
	}
	reg, err := keg.NewLocal(cfg.Root)
	if err != nil {
		return err
	}
	installed, err := reg.Lookup(ctx, f.Name)
	if err != nil {
		return err
	}

	var overrides map[string]bool
	if len(testWith)+len(testWithout) > 0 {
		overrides = formula.ParseOverrides(testWith, testWithout)
	}
	builder, err := newBuilder(cfg, reg, cmd.OutOrStdout(), cmd.ErrOrStderr(), testVerbose)
	if err != nil {
		return err
	}
	out, err := builder.RunTests(ctx, build.Request{
		Formula:   f,
		Overrides: overrides,
		Prefix:    installed.Prefix,
		OptPrefix: reg.OptDir(f.Name),
	})
	if err != nil {
		return fmt.Errorf("test %s: %w", f.Name, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d tests %s\n", f.Name, len(out.Steps), out.State)
	return nil
}
