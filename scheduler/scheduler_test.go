package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncplane/syncplane/codec"
	"github.com/syncplane/syncplane/destination"
	"github.com/syncplane/syncplane/schema"
	"github.com/syncplane/syncplane/statestore"
	"github.com/syncplane/syncplane/types"
)

var fixtureBase = time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)

type testSource struct {
	registry *schema.Registry
}

func (s *testSource) Name() string               { return "test-source" }
func (s *testSource) Version() string            { return "v0.0.0" }
func (s *testSource) Registry() *schema.Registry { return s.registry }

func (s *testSource) NewClient(_ context.Context) (types.Client, error) {
	return &StaticClient{Name: "root"}, nil
}

func newTestSource(t *testing.T, tables ...*types.Table) *testSource {
	t.Helper()
	registry := schema.NewRegistry()
	for _, table := range tables {
		require.NoError(t, registry.Register(table))
	}
	return &testSource{registry: registry}
}

func accountsMultiplexer(accounts ...string) types.Multiplexer {
	return types.MultiplexerFunc(func(_ context.Context, _ types.Client) ([]types.Client, error) {
		clients := make([]types.Client, 0, len(accounts))
		for _, account := range accounts {
			clients = append(clients, &StaticClient{Name: account})
		}
		return clients, nil
	})
}

// orgsFixture is the canonical two-level shape: a multiplexed incremental
// orgs table with a dependent repos table resolved per org row.
func orgsFixture(resolveOrgs types.TableResolverFunc) *types.Table {
	repos := &types.Table{
		Name: "repos",
		Columns: []types.Column{
			{Name: "id", Type: types.Int64, PrimaryKey: true},
			{Name: "org_id", Type: types.Int64, Resolver: ParentColumnResolver("id")},
			{Name: "name", Type: types.String},
		},
		Resolver: types.TableResolverFunc(func(ctx context.Context, req types.FetchRequest, out chan<- any) error {
			orgID, _ := req.Parent.Get("id").(int64)
			for i := int64(0); i < 2; i++ {
				select {
				case out <- types.Record{"id": orgID*10 + i, "name": fmt.Sprintf("repo-%d", i)}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		}),
	}
	return &types.Table{
		Name: "orgs",
		Columns: []types.Column{
			{Name: "id", Type: types.Int64, PrimaryKey: true},
			{Name: "name", Type: types.String},
			{Name: "updated_at", Type: types.Timestamp, IncrementalKey: true},
		},
		Multiplexer: accountsMultiplexer("alpha", "beta"),
		Resolver:    resolveOrgs,
		Relations:   []*types.Table{repos},
	}
}

// emitOrgs emits three org rows for the requesting client with increasing
// updated_at values.
func emitOrgs(ctx context.Context, req types.FetchRequest, out chan<- any) error {
	offset := int64(0)
	if req.Client.ID() == "beta" {
		offset = 100
	}
	for i := int64(0); i < 3; i++ {
		record := types.Record{
			"id":         offset + i,
			"name":       fmt.Sprintf("%s-org-%d", req.Client.ID(), i),
			"updated_at": fixtureBase.Add(time.Duration(i) * time.Hour),
		}
		select {
		case out <- record:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

type harness struct {
	store *statestore.MemoryStore
	noop  *destination.NoopWriter
	pool  *destination.WriterPool
}

func newHarness(ctx context.Context) *harness {
	noop := destination.NewNoopWriter(true)
	return &harness{
		store: statestore.NewMemoryStore(),
		noop:  noop,
		pool:  destination.NewWriterPool(ctx, func() destination.Writer { return noop }),
	}
}

func (h *harness) rowsPerTable(t *testing.T) map[string]int {
	t.Helper()
	rows := map[string]int{}
	for _, batch := range h.noop.Batches {
		decoded, err := codec.Decode(batch.Data)
		require.NoError(t, err)
		require.Equal(t, batch.Table, decoded.Table)
		rows[decoded.Table] += len(decoded.Records)
	}
	return rows
}

func (h *harness) cursor(t *testing.T, table, client string) types.Cursor {
	t.Helper()
	cursor, err := h.store.Get(context.Background(), statestore.NewKey(table, client))
	require.NoError(t, err)
	return cursor
}

func TestSyncFansOutMultiplexedTables(t *testing.T) {
	ctx := context.Background()
	h := newHarness(ctx)
	source := newTestSource(t, orgsFixture(emitOrgs))

	summary, err := New(source, h.store, h.pool).Sync(ctx)
	require.NoError(t, err)
	require.NoError(t, h.pool.Close(ctx))

	require.NoError(t, summary.Err())
	assert.Equal(t, int64(6), summary.Resources["orgs"], "3 orgs per client, 2 clients")
	assert.Equal(t, int64(12), summary.Resources["repos"], "2 repos per org row")
	assert.Equal(t, int64(2), summary.Tasks["orgs"], "one fetch task per expanded client")
	assert.Equal(t, int64(6), summary.Tasks["repos"], "one fetch task per parent row")

	rows := h.rowsPerTable(t)
	assert.Equal(t, 6, rows["orgs"])
	assert.Equal(t, 12, rows["repos"])
}

func TestSyncCommitsCursorPerClient(t *testing.T) {
	ctx := context.Background()
	h := newHarness(ctx)
	source := newTestSource(t, orgsFixture(emitOrgs))

	summary, err := New(source, h.store, h.pool).Sync(ctx)
	require.NoError(t, err)
	require.NoError(t, h.pool.Close(ctx))
	require.NoError(t, summary.Err())

	wantCursor := types.Cursor(fixtureBase.Add(2 * time.Hour).Format(time.RFC3339Nano))
	assert.Equal(t, wantCursor, h.cursor(t, "orgs", "alpha"))
	assert.Equal(t, wantCursor, h.cursor(t, "orgs", "beta"))
	// repos has no incremental key, nothing stored
	assert.True(t, h.cursor(t, "repos", "alpha").IsZero())
}

func TestSyncPassesStoredCursorToResolver(t *testing.T) {
	ctx := context.Background()
	h := newHarness(ctx)

	var seen []types.Cursor
	source := newTestSource(t, orgsFixture(func(ctx context.Context, req types.FetchRequest, out chan<- any) error {
		seen = append(seen, req.Cursor)
		return emitOrgs(ctx, req, out)
	}))
	stored := types.Cursor(fixtureBase.Format(time.RFC3339Nano))
	require.NoError(t, h.store.Put(ctx, statestore.NewKey("orgs", "alpha"), stored))

	summary, err := New(source, h.store, h.pool, WithConcurrency(1)).Sync(ctx)
	require.NoError(t, err)
	require.NoError(t, h.pool.Close(ctx))
	require.NoError(t, summary.Err())

	require.Len(t, seen, 2)
	assert.Contains(t, seen, stored)
	assert.Contains(t, seen, types.Cursor(""))
}

func TestSyncIsolatesFailingClient(t *testing.T) {
	ctx := context.Background()
	h := newHarness(ctx)
	source := newTestSource(t, orgsFixture(func(ctx context.Context, req types.FetchRequest, out chan<- any) error {
		if req.Client.ID() == "beta" {
			return fmt.Errorf("rate limited")
		}
		return emitOrgs(ctx, req, out)
	}))

	summary, err := New(source, h.store, h.pool).Sync(ctx)
	require.NoError(t, err, "a single failing client must not abort the sync")
	require.NoError(t, h.pool.Close(ctx))

	assert.True(t, summary.Partial())
	assert.True(t, summary.HasErrorFor("orgs"))
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, types.KindResolver, summary.Errors[0].Kind)
	assert.Equal(t, "beta", summary.Errors[0].Client)

	assert.Equal(t, int64(3), summary.Resources["orgs"], "alpha's rows still delivered")
	assert.Equal(t, int64(6), summary.Resources["repos"], "alpha's dependents still scheduled")

	assert.False(t, h.cursor(t, "orgs", "alpha").IsZero(), "healthy client's cursor advances")
	assert.True(t, h.cursor(t, "orgs", "beta").IsZero(), "failed client's cursor is held back")
}

func TestSyncRecoversPanickingResolver(t *testing.T) {
	ctx := context.Background()
	h := newHarness(ctx)
	source := newTestSource(t, orgsFixture(func(ctx context.Context, req types.FetchRequest, out chan<- any) error {
		if req.Client.ID() == "beta" {
			panic("resolver bug")
		}
		return emitOrgs(ctx, req, out)
	}))

	summary, err := New(source, h.store, h.pool).Sync(ctx)
	require.NoError(t, err)
	require.NoError(t, h.pool.Close(ctx))

	assert.True(t, summary.Partial())
	assert.Equal(t, int64(3), summary.Resources["orgs"])
}

func TestSyncMultiplexerFailureScopedToTable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(ctx)

	orgs := orgsFixture(emitOrgs)
	orgs.Multiplexer = types.MultiplexerFunc(func(_ context.Context, _ types.Client) ([]types.Client, error) {
		return nil, fmt.Errorf("token expired")
	})
	users := &types.Table{
		Name: "users",
		Columns: []types.Column{
			{Name: "id", Type: types.Int64, PrimaryKey: true},
		},
		Resolver: types.TableResolverFunc(func(_ context.Context, _ types.FetchRequest, out chan<- any) error {
			out <- types.Record{"id": int64(1)}
			return nil
		}),
	}
	source := newTestSource(t, orgs, users)

	summary, err := New(source, h.store, h.pool).Sync(ctx)
	require.NoError(t, err)
	require.NoError(t, h.pool.Close(ctx))

	require.Len(t, summary.Errors, 1)
	assert.Equal(t, types.KindMultiplex, summary.Errors[0].Kind)
	assert.Zero(t, summary.Tasks["orgs"], "no fetch tasks for a table that failed to expand")
	assert.Equal(t, int64(1), summary.Resources["users"], "sibling tables unaffected")
}

func TestSyncEncodingFailureHoldsCursorBack(t *testing.T) {
	ctx := context.Background()
	h := newHarness(ctx)
	source := newTestSource(t, orgsFixture(func(ctx context.Context, req types.FetchRequest, out chan<- any) error {
		if req.Client.ID() == "beta" {
			// id mismatches the declared int64 column type
			out <- types.Record{"id": "not-a-number", "updated_at": fixtureBase}
			return nil
		}
		return emitOrgs(ctx, req, out)
	}))

	summary, err := New(source, h.store, h.pool).Sync(ctx)
	require.NoError(t, err, "an undecodable batch is scoped to its table/client")
	require.NoError(t, h.pool.Close(ctx))

	assert.True(t, summary.Partial())
	assert.True(t, h.cursor(t, "orgs", "beta").IsZero(), "dropped batch must not advance the cursor")
	assert.False(t, h.cursor(t, "orgs", "alpha").IsZero())
}

func TestSyncZeroRowCursorPolicy(t *testing.T) {
	emitNothing := types.TableResolverFunc(func(_ context.Context, _ types.FetchRequest, _ chan<- any) error {
		return nil
	})

	t.Run("advance to fetch start", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(ctx)
		source := newTestSource(t, orgsFixture(emitNothing))

		before := time.Now().UTC()
		summary, err := New(source, h.store, h.pool).Sync(ctx)
		require.NoError(t, err)
		require.NoError(t, h.pool.Close(ctx))
		require.NoError(t, summary.Err())

		cursor := h.cursor(t, "orgs", "alpha")
		require.False(t, cursor.IsZero())
		parsed, err := time.Parse(time.RFC3339Nano, string(cursor))
		require.NoError(t, err)
		assert.False(t, parsed.Before(before.Truncate(time.Second)))
	})

	t.Run("keep previous cursor", func(t *testing.T) {
		ctx := context.Background()
		h := newHarness(ctx)
		source := newTestSource(t, orgsFixture(emitNothing))

		summary, err := New(source, h.store, h.pool, WithZeroRowCursorPolicy(KeepPreviousCursor)).Sync(ctx)
		require.NoError(t, err)
		require.NoError(t, h.pool.Close(ctx))
		require.NoError(t, summary.Err())

		assert.True(t, h.cursor(t, "orgs", "alpha").IsZero())
	})
}

func TestSyncTableSelection(t *testing.T) {
	ctx := context.Background()
	h := newHarness(ctx)

	users := &types.Table{
		Name: "users",
		Columns: []types.Column{
			{Name: "id", Type: types.Int64, PrimaryKey: true},
		},
		Resolver: types.TableResolverFunc(func(_ context.Context, _ types.FetchRequest, out chan<- any) error {
			out <- types.Record{"id": int64(7)}
			return nil
		}),
	}
	source := newTestSource(t, orgsFixture(emitOrgs), users)

	summary, err := New(source, h.store, h.pool, WithTables("users")).Sync(ctx)
	require.NoError(t, err)
	require.NoError(t, h.pool.Close(ctx))

	assert.Equal(t, int64(1), summary.Resources["users"])
	assert.Zero(t, summary.Resources["orgs"], "unselected tables don't run")
	assert.Zero(t, summary.Resources["repos"], "dependents of unselected tables don't run")
}

func TestSyncNoTablesMatchedIsFatal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(ctx)
	source := newTestSource(t, orgsFixture(emitOrgs))

	_, err := New(source, h.store, h.pool, WithTables("no-such-*")).Sync(ctx)
	require.Error(t, err)
	assert.Equal(t, types.KindSchema, types.AsSyncError(err, types.KindSchema).Kind)
	require.NoError(t, h.pool.Close(ctx))
}

func TestSyncCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := newHarness(ctx)

	started := make(chan struct{})
	source := newTestSource(t, orgsFixture(func(ctx context.Context, req types.FetchRequest, _ chan<- any) error {
		if req.Client.ID() == "alpha" {
			close(started)
		}
		<-ctx.Done()
		return ctx.Err()
	}))

	go func() {
		<-started
		cancel()
	}()

	_, err := New(source, h.store, h.pool).Sync(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, h.cursor(t, "orgs", "alpha").IsZero(), "no cursor writes after cancellation")
}

func TestSyncBatchSizeSplitsFlushes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(ctx)
	source := newTestSource(t, orgsFixture(emitOrgs))

	summary, err := New(source, h.store, h.pool, WithBatchSize(2), WithTables("orgs")).Sync(ctx)
	require.NoError(t, err)
	require.NoError(t, h.pool.Close(ctx))
	require.NoError(t, summary.Err())

	// 3 rows per client with batch size 2 means 2 flushes per client
	orgBatches := 0
	for _, batch := range h.noop.Batches {
		if batch.Table == "orgs" {
			orgBatches++
			assert.LessOrEqual(t, batch.Records, 2)
		}
	}
	assert.Equal(t, 4, orgBatches)
	rows := h.rowsPerTable(t)
	assert.Equal(t, 6, rows["orgs"])
}
