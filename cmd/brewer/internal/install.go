package internal

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/goplus/brewer/formula"
	"github.com/goplus/brewer/internal/build"
	"github.com/goplus/brewer/internal/ctxlog"
	"github.com/goplus/brewer/internal/env"
	"github.com/goplus/brewer/internal/keg"
	"github.com/goplus/brewer/internal/pipeline"
	"github.com/goplus/brewer/internal/publish"
	"github.com/goplus/brewer/internal/recipe"
	"github.com/goplus/brewer/internal/vcs"
)

var (
	installSource  string
	installPrefix  string
	installWith    []string
	installWithout []string
	installVerbose bool
)

var installCmd = &cobra.Command{
	Use:   "install FORMULA",
	Short: "Build a formula and install it",
	Long: `Install builds FORMULA in the source tree given by --source and installs
the artifacts into the keg prefix. Test summary warnings are printed but do
not fail the installation.`,
	Args: cobra.ExactArgs(1),
	RunE: runInstall,
}

func init() {
	installCmd.Flags().StringVarP(&installSource, "source", "s", "", "Checked out source tree (default: fetch the head source, or the current directory)")
	installCmd.Flags().StringVar(&installPrefix, "prefix", "", "Installation prefix (default <root>/Cellar/<name>/<version>)")
	installCmd.Flags().StringSliceVar(&installWith, "with", nil, "Enable an option")
	installCmd.Flags().StringSliceVar(&installWithout, "without", nil, "Disable an option")
	installCmd.Flags().BoolVarP(&installVerbose, "verbose", "v", false, "Show the output of build commands")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
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
	source, err := sourceDir(ctx, cfg, f, installSource)
	if err != nil {
		return err
	}
	prefix := installPrefix
	if prefix == "" {
		prefix = reg.CellarDir(f.Name, f.Version)
	}
	if prefix, err = filepath.Abs(prefix); err != nil {
		return err
	}

	builder, err := newBuilder(cfg, reg, cmd.OutOrStdout(), cmd.ErrOrStderr(), installVerbose)
	if err != nil {
		return err
	}
	res, err := builder.Build(ctx, build.Request{
		Formula:   f,
		Overrides: formula.ParseOverrides(installWith, installWithout),
		SourceDir: source,
		Prefix:    prefix,
		OptPrefix: reg.OptDir(f.Name),
	})
	if err != nil {
		return fmt.Errorf("failed to install %s: %w", f.Name, err)
	}
	if err := reg.Link(f.Name, prefix); err != nil {
		return fmt.Errorf("failed to link %s: %w", f.Name, err)
	}
	printResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), f, prefix, res)
	return nil
}

// sourceDir returns the tree to build. Without an explicit directory, a
// formula with a head source is fetched into the cache.
func sourceDir(ctx context.Context, cfg *env.Config, f *formula.Formula, dir string) (string, error) {
	if dir != "" || f.Head == nil {
		if dir == "" {
			dir = "."
		}
		return filepath.Abs(dir)
	}
	dir = filepath.Join(cfg.CacheDir, "src", f.Name)
	git := vcs.NewGitVCS(vcs.WithKeep(build.LockFile))
	if err := git.Sync(ctx, f.Head.URL, f.Head.Ref, dir); err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", f.Head.URL, err)
	}
	rev, err := git.Revision(ctx, dir)
	if err != nil {
		return "", err
	}
	ctxlog.FromContext(ctx).Info("Fetched head source", "formula", f.Name, "revision", rev)
	return dir, nil
}

// newBuilder wires the builder to the local registry and, when configured,
// the artifact mirror.
func newBuilder(cfg *env.Config, reg keg.Registry, stdout, stderr io.Writer, verbose bool) (*build.Builder, error) {
	runner := &pipeline.ExecRunner{Stdout: io.Discard, Stderr: io.Discard}
	if verbose {
		runner.Stdout, runner.Stderr = stdout, stderr
	}
	opts := build.Options{
		Registry: reg,
		Runner:   runner,
		CacheDir: filepath.Join(cfg.CacheDir, "patches"),
	}
	if cfg.Mirror.Enabled() {
		s3, err := cfg.Mirror.S3()
		if err != nil {
			return nil, fmt.Errorf("artifact mirror: %w", err)
		}
		m, err := publish.NewS3Mirror(s3)
		if err != nil {
			return nil, fmt.Errorf("artifact mirror: %w", err)
		}
		opts.Mirror = m
	}
	return build.NewBuilder(opts), nil
}

func printResult(stdout, stderr io.Writer, f *formula.Formula, prefix string, res *build.Result) {
	for _, a := range res.Advisories {
		fmt.Fprintln(stderr, color.Yellow.Sprint("Warning: ")+a.Error())
	}
	fmt.Fprintf(stdout, "%s %s (%s): %d files installed to %s\n",
		f.Name, f.Version, res.Options, len(res.Installed), prefix)
}

// loadFormula is shared by the read-only commands.
func loadFormula(ctx context.Context, path string, with, without []string) (*formula.Formula, *formula.OptionSet, error) {
	f, err := recipe.Load(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	opts, err := f.NewOptionSet(formula.ParseOverrides(with, without))
	if err != nil {
		return nil, nil, err
	}
	return f, opts, nil
}
