package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ZebulonRouseFrantzich/repomirror/internal/config"
	"github.com/ZebulonRouseFrantzich/repomirror/internal/mirror"
)

// Version will be set at build time via -ldflags
var Version = "dev"

// Exit codes
const (
	exitOK       = 0
	exitError    = 1
	exitSecurity = 3
)

// globalOptions are shared by all subcommands
type globalOptions struct {
	configPath string
	verbose    bool
	json       bool

	stdout io.Writer
	stderr io.Writer
	logger *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the CLI and maps errors to exit codes
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &globalOptions{stdout: stdout, stderr: stderr}

	root := newRootCommand(opts)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)

	if opts.logger != nil {
		_ = opts.logger.Sync()
	}

	if err == nil {
		return exitOK
	}

	fmt.Fprintf(stderr, "Error: %s\n", config.FormatError(err, opts.verbose))
	if mirror.IsSecurityViolation(err) {
		return exitSecurity
	}
	return exitError
}

func newRootCommand(opts *globalOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "repomirror",
		Short: "Keep a local snapshot of a remote repository branch",
		Long: `repomirror downloads the archive of a repository branch and keeps an
extracted snapshot of it on disk, replacing it whenever the branch moves.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.logger = newLogger(opts.stderr, opts.verbose, opts.json)
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "",
		fmt.Sprintf("config file (default $%s or $XDG_CONFIG_HOME/repomirror/config.lua)", config.EnvConfig))
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "Log as JSON")

	root.AddCommand(newSyncCommand(opts))
	root.AddCommand(newStatusCommand(opts))
	root.AddCommand(newWatchCommand(opts))
	root.AddCommand(newVersionCommand(opts))

	return root
}
