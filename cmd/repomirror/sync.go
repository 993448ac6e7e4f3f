package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/repomirror/internal/mirror"
)

func newSyncCommand(opts *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Update the snapshot to the latest revision of the branch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			_, syncer, err := opts.setup(ctx)
			if err != nil {
				return err
			}

			var syncOpts []mirror.SyncOption
			if force {
				syncOpts = append(syncOpts, mirror.WithForce())
			}

			result, err := syncer.TrySync(ctx, syncOpts...)
			if err != nil {
				return err
			}

			printResult(opts.stdout, result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Download the latest archive even if the snapshot is current")

	return cmd
}

func printResult(w io.Writer, result *mirror.SyncResult) {
	switch result.Status {
	case mirror.StatusUpdated:
		fmt.Fprintf(w, "updated %s -> %s (%d files)\n", result.Previous, result.Current, result.Files)
	case mirror.StatusUpToDate:
		fmt.Fprintf(w, "up to date %s\n", result.Current)
	default:
		fmt.Fprintln(w, "remote unavailable")
	}
}
