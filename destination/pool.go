package destination

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/syncplane/syncplane/codec"
	"github.com/syncplane/syncplane/types"
	"github.com/syncplane/syncplane/utils"
	"github.com/syncplane/syncplane/utils/logger"
)

const threadBufferSize = 16

// WriterPool fans incoming batches out to one writer thread per table.
// Within a thread batches are written in arrival order; a write failure
// cancels the pool context so in-flight producers observe it at their next
// suspension point.
type WriterPool struct {
	mu        sync.Mutex
	newWriter NewWriterFunc
	group     *utils.TaskGroup
	threads   map[string]*writerThread
	closed    bool

	totalBatches int64
	totalRecords int64
}

type writerThread struct {
	table   string
	batches chan *codec.Batch
}

func NewWriterPool(ctx context.Context, newWriter NewWriterFunc) *WriterPool {
	return &WriterPool{
		newWriter: newWriter,
		group:     utils.NewTaskGroup(ctx),
		threads:   make(map[string]*writerThread),
	}
}

func (p *WriterPool) thread(table string) *writerThread {
	p.mu.Lock()
	defer p.mu.Unlock()

	if thread, found := p.threads[table]; found {
		return thread
	}

	thread := &writerThread{table: table, batches: make(chan *codec.Batch, threadBufferSize)}
	p.threads[table] = thread

	p.group.Add(func(ctx context.Context) (err error) {
		writer := p.newWriter()
		if err := writer.Setup(ctx, table); err != nil {
			return types.NewDestinationError(table, fmt.Errorf("failed to setup writer: %s", err))
		}
		defer func() {
			if closeErr := writer.Close(ctx); closeErr != nil && err == nil {
				err = types.NewDestinationError(table, fmt.Errorf("failed to close writer: %s", closeErr))
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case batch, ok := <-thread.batches:
				if !ok {
					return nil
				}
				if err := writer.Write(ctx, batch); err != nil {
					return types.NewDestinationError(table, err)
				}
				atomic.AddInt64(&p.totalBatches, 1)
				atomic.AddInt64(&p.totalRecords, int64(batch.Records))
			}
		}
	})
	return thread
}

// Write enqueues a batch for its table's thread, blocking for backpressure
// when the thread is busy. Returns a destination error once the pool has
// failed.
func (p *WriterPool) Write(ctx context.Context, batch *codec.Batch) error {
	thread := p.thread(batch.Table)
	select {
	case thread.batches <- batch:
		return nil
	case <-p.group.Ctx().Done():
		return types.NewDestinationError(batch.Table, fmt.Errorf("writer pool failed: %s", context.Cause(p.group.Ctx())))
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains all writer threads and waits for them; the first write error
// is returned.
func (p *WriterPool) Close(_ context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		for _, thread := range p.threads {
			close(thread.batches)
		}
	}
	p.mu.Unlock()

	if err := p.group.Block(); err != nil {
		return err
	}
	logger.Debugf("writer pool closed after %d batches, %d records", p.TotalBatches(), p.TotalRecords())
	return nil
}

func (p *WriterPool) TotalBatches() int64 {
	return atomic.LoadInt64(&p.totalBatches)
}

func (p *WriterPool) TotalRecords() int64 {
	return atomic.LoadInt64(&p.totalRecords)
}
