package transport

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/syncplane/syncplane/destination"
	"github.com/syncplane/syncplane/statestore"
	"github.com/syncplane/syncplane/types"
	"github.com/syncplane/syncplane/utils/logger"
)

// Forward drives one sync from the engine side of the boundary: it seeds the
// request with locally stored cursors for the negotiated incremental tables,
// streams batches into the destination pool and persists cursor advances
// from the terminal summary. The caller owns pool lifecycle.
func Forward(ctx context.Context, t Transport, pool *destination.WriterPool,
	store statestore.Store, req SyncRequest) (*types.SyncSummary, error) {
	defs, err := t.NegotiateSchema(ctx)
	if err != nil {
		return nil, err
	}

	if len(req.Cursors) == 0 {
		// client identities are only known server-side; seed everything the
		// local store remembers for the negotiated incremental tables
		if snapshotter, ok := store.(statestore.Snapshotter); ok {
			cursors, err := snapshotter.Snapshot(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to snapshot local cursors: %s", err)
			}
			incremental := types.NewSet[string]()
			for _, def := range defs {
				if def.Incremental {
					incremental.Insert(def.Name)
				}
			}
			for key, cursor := range cursors {
				if incremental.Exists(key.Table) {
					req.Cursors = append(req.Cursors, CursorState{
						Table:  key.Table,
						Client: key.Client,
						Cursor: cursor,
					})
				}
			}
		}
	}

	stream, err := t.Sync(ctx, req)
	if err != nil {
		return nil, err
	}

	summary := types.NewSyncSummary()
	for {
		frame, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return summary, types.AsSyncError(err, types.KindTransport)
		}

		switch frame.Kind {
		case FrameBatch:
			if frame.Batch == nil {
				return summary, types.NewTransportError(fmt.Errorf("batch frame without payload"))
			}
			if err := pool.Write(ctx, frame.Batch); err != nil {
				return summary, err
			}
			summary.AddBatch()
			summary.AddResources(frame.Batch.Table, int64(frame.Batch.Records))
		case FrameSummary:
			applySummary(ctx, frame.Summary, store, summary)
		default:
			return summary, types.NewTransportError(fmt.Errorf("unknown frame kind %q", frame.Kind))
		}
	}
	return summary, nil
}

func applySummary(ctx context.Context, wire *WireSummary, store statestore.Store, summary *types.SyncSummary) {
	if wire == nil {
		return
	}
	for _, wireErr := range wire.Errors {
		summary.Collect(&types.SyncError{
			Kind:   wireErr.Kind,
			Table:  wireErr.Table,
			Client: wireErr.Client,
			Err:    errors.New(wireErr.Message),
		})
	}
	for _, cursor := range wire.Cursors {
		key := statestore.NewKey(cursor.Table, cursor.Client)
		if err := store.Put(ctx, key, cursor.Cursor); err != nil {
			logger.Warnf("failed to persist cursor for %s: %s", key, err)
		}
	}
}
