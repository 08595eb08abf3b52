package destination

import (
	"context"
	"sync"

	"github.com/goccy/go-json"
	"github.com/syncplane/syncplane/codec"
)

func init() {
	RegisteredWriters["noop"] = func(_ json.RawMessage) (NewWriterFunc, error) {
		return func() Writer { return NewNoopWriter(false) }, nil
	}
}

// NoopWriter discards batches while counting them; used by tests and dry
// runs.
type NoopWriter struct {
	mu      sync.Mutex
	Batches []*codec.Batch
	Retain  bool
}

func NewNoopWriter(retain bool) *NoopWriter {
	return &NoopWriter{Retain: retain}
}

func (w *NoopWriter) Type() string {
	return "noop"
}

func (w *NoopWriter) Setup(_ context.Context, _ string) error {
	return nil
}

func (w *NoopWriter) Write(_ context.Context, batch *codec.Batch) error {
	if w.Retain {
		w.mu.Lock()
		w.Batches = append(w.Batches, batch)
		w.mu.Unlock()
	}
	return nil
}

func (w *NoopWriter) Close(_ context.Context) error {
	return nil
}
