package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/goplus/brewer/internal/ctxlog"
)

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "brewer",
	Short: "brewer builds and installs packages from formulas",
	Long: `brewer builds a package from a formula: it resolves dependencies, patches
the source tree, runs the build commands and installs the artifacts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(ctxlog.New(logLevel, logFormat, cmd.ErrOrStderr()))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, color.Red.Sprint("Error: ")+err.Error())
		os.Exit(1)
	}
}
