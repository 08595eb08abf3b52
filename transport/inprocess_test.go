package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncplane/syncplane/destination"
	"github.com/syncplane/syncplane/scheduler"
	"github.com/syncplane/syncplane/schema"
	"github.com/syncplane/syncplane/statestore"
	"github.com/syncplane/syncplane/types"
)

var pluginBase = time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)

type pluginSource struct {
	registry *schema.Registry
	failFor  string
}

func (s *pluginSource) Name() string               { return "plugin-under-test" }
func (s *pluginSource) Version() string            { return "v0.0.0" }
func (s *pluginSource) Registry() *schema.Registry { return s.registry }

func (s *pluginSource) NewClient(_ context.Context) (types.Client, error) {
	return &scheduler.StaticClient{Name: "root"}, nil
}

// newPluginSource serves one incremental orgs table multiplexed over two
// clients, two rows per client unless filtered by the request cursor.
func newPluginSource(t *testing.T, failFor string) *pluginSource {
	t.Helper()
	source := &pluginSource{registry: schema.NewRegistry(), failFor: failFor}
	table := &types.Table{
		Name: "orgs",
		Columns: []types.Column{
			{Name: "id", Type: types.Int64, PrimaryKey: true},
			{Name: "updated_at", Type: types.Timestamp, IncrementalKey: true},
		},
		Multiplexer: types.MultiplexerFunc(func(_ context.Context, _ types.Client) ([]types.Client, error) {
			return []types.Client{
				&scheduler.StaticClient{Name: "alpha"},
				&scheduler.StaticClient{Name: "beta"},
			}, nil
		}),
		Resolver: types.TableResolverFunc(func(_ context.Context, req types.FetchRequest, out chan<- any) error {
			if req.Client.ID() == source.failFor {
				return fmt.Errorf("simulated outage")
			}
			since := time.Time{}
			if !req.Cursor.IsZero() {
				parsed, err := time.Parse(time.RFC3339Nano, string(req.Cursor))
				if err != nil {
					return err
				}
				since = parsed
			}
			offset := int64(0)
			if req.Client.ID() == "beta" {
				offset = 10
			}
			for i := int64(0); i < 2; i++ {
				updated := pluginBase.Add(time.Duration(i) * time.Minute)
				if !updated.After(since) {
					continue
				}
				out <- types.Record{"id": offset + i, "updated_at": updated}
			}
			return nil
		}),
	}
	require.NoError(t, source.registry.Register(table))
	return source
}

func drain(t *testing.T, stream Stream) (batches []*Frame, summary *WireSummary) {
	t.Helper()
	for {
		frame, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return batches, summary
		}
		require.NoError(t, err)
		switch frame.Kind {
		case FrameBatch:
			batches = append(batches, frame)
		case FrameSummary:
			require.Nil(t, summary, "at most one summary frame per sync")
			summary = frame.Summary
		}
	}
}

func TestInProcessNegotiateSchema(t *testing.T) {
	trans := NewInProcess(newPluginSource(t, ""))

	defs, err := trans.NegotiateSchema(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "orgs", defs[0].Name)
	assert.True(t, defs[0].Incremental)
	assert.True(t, defs[0].Multiplexed)
}

func TestInProcessSyncStreamsBatchesThenSummary(t *testing.T) {
	trans := NewInProcess(newPluginSource(t, ""))

	stream, err := trans.Sync(context.Background(), SyncRequest{})
	require.NoError(t, err)

	batches, summary := drain(t, stream)
	require.NotNil(t, summary, "stream must end with a summary frame")

	rows := 0
	for _, frame := range batches {
		require.NotNil(t, frame.Batch)
		assert.Equal(t, "orgs", frame.Batch.Table)
		rows += frame.Batch.Records
	}
	assert.Equal(t, 4, rows, "2 rows per client, 2 clients")
	assert.Equal(t, int64(4), summary.Resources["orgs"])
	assert.Empty(t, summary.Errors)

	wantCursor := types.Cursor(pluginBase.Add(time.Minute).Format(time.RFC3339Nano))
	require.Len(t, summary.Cursors, 2)
	for _, cursor := range summary.Cursors {
		assert.Equal(t, "orgs", cursor.Table)
		assert.Equal(t, wantCursor, cursor.Cursor)
	}
}

func TestInProcessSyncHonorsRequestCursors(t *testing.T) {
	trans := NewInProcess(newPluginSource(t, ""))
	beyond := types.Cursor(pluginBase.Add(time.Hour).Format(time.RFC3339Nano))

	stream, err := trans.Sync(context.Background(), SyncRequest{
		Cursors: []CursorState{
			{Table: "orgs", Client: "alpha", Cursor: beyond},
			{Table: "orgs", Client: "beta", Cursor: beyond},
		},
	})
	require.NoError(t, err)

	batches, summary := drain(t, stream)
	assert.Empty(t, batches, "all rows filtered by the seeded cursors")
	require.NotNil(t, summary)
	assert.Zero(t, summary.Resources["orgs"])
}

func TestInProcessSyncFatalSelection(t *testing.T) {
	trans := NewInProcess(newPluginSource(t, ""))

	stream, err := trans.Sync(context.Background(), SyncRequest{Tables: []string{"no-such-table"}})
	require.NoError(t, err, "the stream starts lazily")

	for {
		_, err = stream.Recv()
		if err != nil {
			break
		}
	}
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}

func newForwardHarness(ctx context.Context) (*statestore.MemoryStore, *destination.NoopWriter, *destination.WriterPool) {
	store := statestore.NewMemoryStore()
	noop := destination.NewNoopWriter(true)
	pool := destination.NewWriterPool(ctx, func() destination.Writer { return noop })
	return store, noop, pool
}

func TestForwardPersistsCursorsLocally(t *testing.T) {
	ctx := context.Background()
	store, noop, pool := newForwardHarness(ctx)
	trans := NewInProcess(newPluginSource(t, ""))

	summary, err := Forward(ctx, trans, pool, store, SyncRequest{})
	require.NoError(t, err)
	require.NoError(t, pool.Close(ctx))

	assert.Equal(t, int64(4), summary.Resources["orgs"])
	assert.NotEmpty(t, noop.Batches, "batches reached the local destination")

	cursor, err := store.Get(ctx, statestore.NewKey("orgs", "alpha"))
	require.NoError(t, err)
	assert.Equal(t, types.Cursor(pluginBase.Add(time.Minute).Format(time.RFC3339Nano)), cursor)
}

func TestForwardSeedsRequestFromLocalStore(t *testing.T) {
	ctx := context.Background()
	store, noop, pool := newForwardHarness(ctx)
	trans := NewInProcess(newPluginSource(t, ""))

	beyond := types.Cursor(pluginBase.Add(time.Hour).Format(time.RFC3339Nano))
	require.NoError(t, store.Put(ctx, statestore.NewKey("orgs", "alpha"), beyond))
	require.NoError(t, store.Put(ctx, statestore.NewKey("orgs", "beta"), beyond))

	summary, err := Forward(ctx, trans, pool, store, SyncRequest{})
	require.NoError(t, err)
	require.NoError(t, pool.Close(ctx))

	assert.Zero(t, summary.Resources["orgs"], "seeded cursors filtered every row")
	assert.Empty(t, noop.Batches)
}

func TestForwardSurfacesRemoteErrors(t *testing.T) {
	ctx := context.Background()
	store, _, pool := newForwardHarness(ctx)
	trans := NewInProcess(newPluginSource(t, "beta"))

	summary, err := Forward(ctx, trans, pool, store, SyncRequest{})
	require.NoError(t, err, "a partially failed remote sync is not transport-fatal")
	require.NoError(t, pool.Close(ctx))

	assert.True(t, summary.Partial())
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, types.KindResolver, summary.Errors[0].Kind)
	assert.Equal(t, "beta", summary.Errors[0].Client)
	assert.Equal(t, int64(2), summary.Resources["orgs"], "healthy client's rows still delivered")

	cursor, err := store.Get(ctx, statestore.NewKey("orgs", "alpha"))
	require.NoError(t, err)
	assert.False(t, cursor.IsZero())

	cursor, err = store.Get(ctx, statestore.NewKey("orgs", "beta"))
	require.NoError(t, err)
	assert.True(t, cursor.IsZero(), "failed client's cursor is not advanced")
}
