package transport

import (
	"context"
	"io"
	"sync"

	"github.com/syncplane/syncplane/codec"
	"github.com/syncplane/syncplane/destination"
	"github.com/syncplane/syncplane/scheduler"
	"github.com/syncplane/syncplane/statestore"
	"github.com/syncplane/syncplane/types"
)

// InProcess serves a compiled-in source plugin over the transport contract.
// Each Sync runs a fresh scheduler whose state store is seeded from the
// request cursors; cursor advances travel back in the terminal summary
// frame, so the engine side stays the single owner of persistent state.
type InProcess struct {
	source scheduler.Source
	opts   []scheduler.Option
}

func NewInProcess(source scheduler.Source, opts ...scheduler.Option) *InProcess {
	return &InProcess{source: source, opts: opts}
}

func (t *InProcess) NegotiateSchema(_ context.Context) ([]*types.TableDef, error) {
	return t.source.Registry().Defs()
}

func (t *InProcess) Sync(ctx context.Context, req SyncRequest) (Stream, error) {
	store := statestore.NewMemoryStore()
	seed := make(map[statestore.Key]types.Cursor, len(req.Cursors))
	for _, cursor := range req.Cursors {
		seed[statestore.NewKey(cursor.Table, cursor.Client)] = cursor.Cursor
	}
	store.Seed(seed)

	opts := append([]scheduler.Option{}, t.opts...)
	if len(req.Tables) > 0 {
		opts = append(opts, scheduler.WithTables(req.Tables...))
	}
	if req.Concurrency > 0 {
		opts = append(opts, scheduler.WithConcurrency(req.Concurrency))
	}
	if req.BatchSize > 0 {
		opts = append(opts, scheduler.WithBatchSize(req.BatchSize))
	}

	stream := &inProcessStream{frames: make(chan *Frame, 16)}

	go func() {
		defer close(stream.frames)

		pool := destination.NewWriterPool(ctx, func() destination.Writer {
			return &frameWriter{ctx: ctx, frames: stream.frames}
		})
		summary, err := scheduler.New(t.source, store, pool, opts...).Sync(ctx)
		if closeErr := pool.Close(ctx); closeErr != nil && err == nil {
			err = closeErr
		}
		if err != nil {
			stream.fail(err)
			return
		}

		wire := &WireSummary{Resources: summary.Resources}
		for _, syncErr := range summary.Errors {
			wire.Errors = append(wire.Errors, WireError{
				Kind:    syncErr.Kind,
				Table:   syncErr.Table,
				Client:  syncErr.Client,
				Message: syncErr.Err.Error(),
			})
		}
		cursors, snapErr := store.Snapshot(ctx)
		if snapErr != nil {
			stream.fail(snapErr)
			return
		}
		for key, cursor := range cursors {
			wire.Cursors = append(wire.Cursors, CursorState{Table: key.Table, Client: key.Client, Cursor: cursor})
		}
		stream.frames <- &Frame{Kind: FrameSummary, Summary: wire}
	}()

	return stream, nil
}

func (t *InProcess) Close(_ context.Context) error {
	return nil
}

type inProcessStream struct {
	frames chan *Frame

	mu  sync.Mutex
	err error
}

func (s *inProcessStream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *inProcessStream) Recv() (*Frame, error) {
	frame, ok := <-s.frames
	if !ok {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	return frame, nil
}

// frameWriter bridges the scheduler's destination pool onto the frame
// stream; the remote engine is the real destination.
type frameWriter struct {
	ctx    context.Context
	frames chan<- *Frame
}

func (w *frameWriter) Type() string {
	return "stream"
}

func (w *frameWriter) Setup(_ context.Context, _ string) error {
	return nil
}

func (w *frameWriter) Write(ctx context.Context, batch *codec.Batch) error {
	select {
	case w.frames <- &Frame{Kind: FrameBatch, Batch: batch}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *frameWriter) Close(_ context.Context) error {
	return nil
}
