/*
 * Copyright 2025 Syncplane Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package scheduler drives one end-to-end sync: it walks the table tree,
// expands multiplexed tables into per-client fetch tasks, invokes resolvers
// under a global concurrency budget, streams encoded batches to the
// destination pool and commits incremental cursors on success. Resolver and
// codec failures are isolated per (table, client); transport and destination
// failures abort the run.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/syncplane/syncplane/codec"
	"github.com/syncplane/syncplane/destination"
	"github.com/syncplane/syncplane/statestore"
	"github.com/syncplane/syncplane/types"
	"github.com/syncplane/syncplane/utils"
	"github.com/syncplane/syncplane/utils/logger"
	"github.com/syncplane/syncplane/utils/typeutils"
)

const (
	DefaultConcurrency = 8
	DefaultBatchSize   = 1000
)

// ZeroRowCursorPolicy decides what happens to the cursor when an incremental
// fetch yields no records.
type ZeroRowCursorPolicy int

const (
	// AdvanceToFetchStart moves the cursor to the fetch start time so the
	// next sync doesn't re-scan the same empty window. Default.
	AdvanceToFetchStart ZeroRowCursorPolicy = iota
	// KeepPreviousCursor leaves the stored cursor untouched.
	KeepPreviousCursor
)

type Option func(*Scheduler)

func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithBatchSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithTables restricts the sync to top-level tables matching the glob
// patterns.
func WithTables(patterns ...string) Option {
	return func(s *Scheduler) {
		s.patterns = patterns
	}
}

func WithZeroRowCursorPolicy(policy ZeroRowCursorPolicy) Option {
	return func(s *Scheduler) {
		s.zeroRowPolicy = policy
	}
}

type Scheduler struct {
	source Source
	store  statestore.Store
	pool   *destination.WriterPool

	concurrency   int
	batchSize     int
	patterns      []string
	zeroRowPolicy ZeroRowCursorPolicy
}

func New(source Source, store statestore.Store, pool *destination.WriterPool, opts ...Option) *Scheduler {
	s := &Scheduler{
		source:      source,
		store:       store,
		pool:        pool,
		concurrency: DefaultConcurrency,
		batchSize:   DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync runs one pass over all selected tables. The returned summary holds
// per-table row counts and collected non-fatal errors; the error return is
// non-nil only for fatal failures (schema, transport, destination,
// cancellation).
func (s *Scheduler) Sync(ctx context.Context) (*types.SyncSummary, error) {
	summary := types.NewSyncSummary()

	// fails fast on duplicate names or a cyclic tree
	if _, err := s.source.Registry().Freeze(); err != nil {
		return summary, err
	}

	rootClient, err := s.source.NewClient(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to create root client for %s: %s", s.source.Name(), err)
	}

	selected := s.source.Registry().TopLevel(s.patterns...)
	if len(selected) == 0 {
		return summary, types.NewSchemaError("no tables matched selection %v", s.patterns)
	}

	group := utils.NewTaskGroup(ctx)
	slots := utils.NewSlots(int64(s.concurrency))
	syncStart := time.Now()

	for _, table := range selected {
		table := table
		// expansion may hit the network, so it runs as its own task; a
		// failed enumeration is scoped to this table
		group.Add(func(ctx context.Context) error {
			clients := []types.Client{rootClient}
			if table.Multiplexer != nil {
				expanded, err := table.Multiplexer.Expand(ctx, rootClient)
				if err != nil {
					multiplexErr := types.NewMultiplexError(table.Name, err)
					logger.Warnf("%s", multiplexErr)
					summary.Collect(multiplexErr)
					return nil
				}
				clients = expanded
			}
			for _, client := range clients {
				s.scheduleFetch(group, slots, summary, table, client, nil)
			}
			return nil
		})
	}

	if err := group.Block(); err != nil {
		return summary, err
	}

	logger.Infof("sync of %s finished in %s: %d rows across %d tables, %d errors",
		s.source.Name(), time.Since(syncStart).Round(time.Millisecond),
		summary.TotalResources(), len(summary.Resources), len(summary.Errors))
	return summary, nil
}

func (s *Scheduler) scheduleFetch(group *utils.TaskGroup, slots *utils.Slots, summary *types.SyncSummary,
	table *types.Table, client types.Client, parent *types.Resource) {
	summary.AddTask(table.Name)
	group.Add(func(ctx context.Context) error {
		return s.fetchTask(ctx, group, slots, summary, table, client, parent)
	})
}

// fetchTask owns one resolver pass for one (table, client) pair. A non-nil
// return is fatal to the whole sync; everything else lands in the summary.
func (s *Scheduler) fetchTask(ctx context.Context, group *utils.TaskGroup, slots *utils.Slots,
	summary *types.SyncSummary, table *types.Table, client types.Client, parent *types.Resource) error {
	threadID := fmt.Sprintf("%s_%s", table.Name, utils.ULID())
	key := statestore.NewKey(table.Name, client.ID())
	cursorColumn := table.CursorColumn()

	var prevCursor types.Cursor
	if cursorColumn != nil {
		cursor, err := s.store.Get(ctx, key)
		if err != nil {
			summary.Collect(types.NewResolverError(table.Name, client.ID(),
				fmt.Errorf("failed to read cursor: %s", err)))
			return nil
		}
		prevCursor = cursor
	}

	// global concurrency budget; acquired inside the task so a parent
	// spawning children can never deadlock the pool
	if err := slots.Acquire(ctx); err != nil {
		return err
	}
	defer slots.Release()

	fetchStart := time.Now().UTC()
	logger.Debugf("thread[%s]: fetching table %s for client %s", threadID, table.Name, client.ID())

	out := make(chan any, s.batchSize)
	resolveDone := make(chan error, 1)
	// on a fatal early return the resolver must still be able to finish and
	// close the channel
	defer func() {
		go func() {
			for range out {
			}
		}()
	}()
	go func() {
		defer close(out)
		resolveDone <- s.invokeResolver(ctx, table, types.FetchRequest{
			Client: client,
			Parent: parent,
			Cursor: prevCursor,
		}, out)
	}()

	var (
		batch     []*types.Resource
		maxCursor any
		rows      int64
		failed    bool
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		encoded, err := codec.Encode(table, batch)
		if err != nil {
			// scoped to the offending batch: logged, counted, cursor held back
			logger.Errorf("thread[%s]: %s", threadID, err)
			summary.Collect(types.AsSyncError(err, types.KindEncoding))
			failed = true
			batch = batch[:0]
			return nil
		}
		if err := s.pool.Write(ctx, encoded); err != nil {
			return err
		}
		summary.AddBatch()
		batch = batch[:0]
		return nil
	}

	for raw := range out {
		resource := types.NewResource(table, parent, raw)
		if err := s.resolveColumns(ctx, resource); err != nil {
			summary.Collect(types.NewResolverError(table.Name, client.ID(), err))
			failed = true
			continue
		}

		if cursorColumn != nil {
			if value := resource.Get(cursorColumn.Name); value != nil &&
				(maxCursor == nil || typeutils.Compare(value, maxCursor) == 1) {
				maxCursor = value
			}
		}

		batch = append(batch, resource)
		rows++
		if len(batch) >= s.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}

		// dependent tables fetch per parent row, inheriting this client
		for _, relation := range table.Relations {
			s.scheduleFetch(group, slots, summary, relation, client, resource)
		}
	}

	if err := <-resolveDone; err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		resolverErr := types.NewResolverError(table.Name, client.ID(), err)
		logger.Errorf("thread[%s]: %s", threadID, resolverErr)
		summary.Collect(resolverErr)
		failed = true
	}

	if err := flush(); err != nil {
		return err
	}
	summary.AddResources(table.Name, rows)

	if cursorColumn == nil || failed || ctx.Err() != nil {
		return ctx.Err()
	}

	newCursor := prevCursor
	switch {
	case maxCursor != nil:
		newCursor = types.Cursor(typeutils.FormatCursorValue(maxCursor))
	case rows == 0 && s.zeroRowPolicy == AdvanceToFetchStart:
		newCursor = types.Cursor(typeutils.FormatCursorValue(fetchStart))
	}
	if newCursor != prevCursor {
		if err := s.store.Put(ctx, key, newCursor); err != nil {
			summary.Collect(types.NewResolverError(table.Name, client.ID(),
				fmt.Errorf("failed to persist cursor: %s", err)))
		}
	}
	return nil
}

// invokeResolver shields the scheduler from panicking resolver code.
func (s *Scheduler) invokeResolver(ctx context.Context, table *types.Table,
	req types.FetchRequest, out chan<- any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic recovered in resolver: %v", r)
		}
	}()
	return table.Resolver.Resolve(ctx, req, out)
}

func (s *Scheduler) resolveColumns(ctx context.Context, resource *types.Resource) error {
	for _, column := range resource.Table.Columns {
		resolver := column.Resolver
		if resolver == nil {
			resolver = defaultColumnResolver
		}
		if err := resolver.Resolve(ctx, resource, column); err != nil {
			return fmt.Errorf("failed to resolve column %s: %s", column.Name, err)
		}
	}
	return nil
}
