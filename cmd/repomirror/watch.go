package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ZebulonRouseFrantzich/repomirror/internal/config"
	"github.com/ZebulonRouseFrantzich/repomirror/internal/mirror"
)

// trySyncer is the part of *mirror.Syncer the watch loop needs
type trySyncer interface {
	TrySync(ctx context.Context, opts ...mirror.SyncOption) (*mirror.SyncResult, error)
}

func newWatchCommand(opts *globalOptions) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync now and then periodically until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, syncer, err := opts.setup(cmd.Context())
			if err != nil {
				return err
			}

			if interval == 0 {
				interval = cfg.Interval
			}
			if interval < config.MinInterval {
				return fmt.Errorf("--interval must be at least %s", config.MinInterval)
			}

			opts.logger.Info("Watching repository",
				zap.String("repo", syncer.Locator().String()),
				zap.Duration("interval", interval))

			return runWatch(cmd.Context(), syncer, interval, opts)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Time between syncs (default from config)")

	return cmd
}

// runWatch calls TrySync immediately and then every interval until ctx is
// done. Failures are logged and retried on the next tick, except security
// violations, which end the loop.
func runWatch(ctx context.Context, s trySyncer, interval time.Duration, opts *globalOptions) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, err := s.TrySync(ctx)
		switch {
		case err == nil:
			printResult(opts.stdout, result)
		case ctx.Err() != nil:
			return nil
		case mirror.IsSecurityViolation(err):
			return err
		case errors.Is(err, mirror.ErrSyncInProgress):
			opts.logger.Info("Another process is syncing, skipping this round")
		default:
			opts.logger.Error("Sync failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
