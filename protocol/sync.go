package protocol

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/syncplane/syncplane/destination"
	"github.com/syncplane/syncplane/scheduler"
	"github.com/syncplane/syncplane/transport"
	"github.com/syncplane/syncplane/types"
	"github.com/syncplane/syncplane/utils"
	"github.com/syncplane/syncplane/utils/logger"
)

var destinationConfig *destination.WriterConfig

// syncCmd runs one end-to-end sync into the configured destination
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Syncplane sync command",
	Long:  `Sync command expands table fetch tasks over the source and streams encoded batches into the destination`,
	Example: `
// Base command:
syncplane sync --destination path/to/destination/config

// With persistent cursors and table selection:
syncplane sync --destination path/to/destination/config --state path/to/state/config --tables "orgs,repos"

// Against a remote plugin:
syncplane sync --destination path/to/destination/config --source-addr localhost:7774
`,
	PreRunE: func(_ *cobra.Command, _ []string) error {
		if destinationConfigPath == "not-set" {
			return fmt.Errorf("--destination not passed")
		}

		destinationConfig = &destination.WriterConfig{}
		if err := utils.UnmarshalFile(destinationConfigPath, destinationConfig); err != nil {
			return err
		}

		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		store, err := newStateStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close(ctx)

		pool, err := destination.NewPool(ctx, destinationConfig)
		if err != nil {
			return err
		}

		start := time.Now()
		var summary *types.SyncSummary
		if sourceAddr != "" {
			client, dialErr := transport.Dial(sourceAddr)
			if dialErr != nil {
				return dialErr
			}
			defer client.Close(ctx)

			summary, err = transport.Forward(ctx, client, pool, store, transport.SyncRequest{
				Tables:      tablePatterns,
				Concurrency: concurrency,
				BatchSize:   batchSize,
			})
		} else {
			summary, err = scheduler.New(plugin, store, pool, schedulerOptions()...).Sync(ctx)
		}

		closeErr := pool.Close(ctx)
		if err != nil {
			return err
		}
		if closeErr != nil {
			return closeErr
		}

		// partial success exits zero with itemized failures
		if summary.Partial() {
			for _, syncErr := range summary.Errors {
				logger.Errorf("sync error: %s", syncErr)
			}
			logger.Warnf("sync finished partially: %d table errors collected", len(summary.Errors))
		}

		logger.Infof("synced %d resources across %d tables in %s; wrote %d batches (%d records)",
			summary.TotalResources(), len(summary.Resources), time.Since(start).Round(time.Millisecond),
			pool.TotalBatches(), pool.TotalRecords())
		return nil
	},
}

func schedulerOptions() []scheduler.Option {
	opts := []scheduler.Option{
		scheduler.WithConcurrency(concurrency),
		scheduler.WithBatchSize(batchSize),
		scheduler.WithTables(tablePatterns...),
	}
	if keepEmptyCursor {
		opts = append(opts, scheduler.WithZeroRowCursorPolicy(scheduler.KeepPreviousCursor))
	}
	return opts
}
