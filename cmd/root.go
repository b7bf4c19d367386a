// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"firestige.xyz/udptrain/internal/core"
)

// appFs is the filesystem capture files are written to and read from.
var appFs = afero.NewOsFs()

type rootOptions struct {
	configFile string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "udptrain",
		Short: "udptrain - UDP probe train sender and timed capture collector",
		Long: `udptrain measures network paths with trains of UDP probe packets.

The sender emits back-to-back probe trains, optionally interleaving a high
and a low priority class over separate destinations, ports or IP TOS marks.
The receiver timestamps every probe relative to its last checkpoint and
writes the capture to <source-ip>_<timestamp>.raw for offline analysis.`,
		Version:       "0.1.0",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "",
		"config file path (defaults only when empty)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"override log.level")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", core.ErrInvalidArguments, err)
	})

	rootCmd.AddCommand(newReceiveCmd(opts))
	rootCmd.AddCommand(newSendCmd(opts))
	rootCmd.AddCommand(newInspectCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))
	return rootCmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	return run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

// run executes args and reports a failure as "ERROR #<code>: <message>".
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return core.ExitSuccess
	}
	code := core.ExitCode(err)
	fmt.Fprintf(stderr, "ERROR #%d: %v\n", code, err)
	return code
}

// exactArgs is cobra.ExactArgs mapped onto the argument error code.
func exactArgs(n int) cobra.PositionalArgs {
	return wrapArgs(cobra.ExactArgs(n))
}

func rangeArgs(min, max int) cobra.PositionalArgs {
	return wrapArgs(cobra.RangeArgs(min, max))
}

func wrapArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return fmt.Errorf("%w: %v", core.ErrInvalidArguments, err)
		}
		return nil
	}
}
