package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the tracked repository and the installed revision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, syncer, err := opts.setup(cmd.Context())
			if err != nil {
				return err
			}

			w := opts.stdout
			fmt.Fprintf(w, "repository: %s\n", syncer.Locator())
			fmt.Fprintf(w, "source:     %s\n", cfg.Source)
			fmt.Fprintf(w, "snapshot:   %s\n", syncer.SnapshotDir())
			fmt.Fprintf(w, "revision:   %s\n", syncer.CurrentRevision())
			return nil
		},
	}
}
