package internal

import (
	"fmt"
	"io"
	"os"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/goplus/brewer/internal/inspect"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect LOG",
	Short: "Read the failure summary of a test log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return inspectLog(cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

// inspectLog prints the summary found in the log at path. A warning is
// printed, not returned.
func inspectLog(stdout, stderr io.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	s, err := inspect.Check(data, path)
	if err != nil {
		fmt.Fprintln(stderr, color.Yellow.Sprint("Warning: ")+err.Error())
		return nil
	}
	fmt.Fprintf(stdout, "%s: %d failures\n", path, *s.FailureCount)
	return nil
}
