package utils

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// TaskGroup tracks a set of goroutines sharing one cancellation scope. The
// first returned error cancels the group context; callers that want errors
// isolated instead of propagated must swallow them inside the task.
type TaskGroup struct {
	ctx   context.Context
	group *errgroup.Group
}

func NewTaskGroup(ctx context.Context) *TaskGroup {
	group, groupCtx := errgroup.WithContext(ctx)
	return &TaskGroup{ctx: groupCtx, group: group}
}

func (g *TaskGroup) Add(task func(ctx context.Context) error) {
	g.group.Go(func() error {
		return task(g.ctx)
	})
}

// Block waits for all added tasks, including tasks added while blocking.
func (g *TaskGroup) Block() error {
	return g.group.Wait()
}

func (g *TaskGroup) Ctx() context.Context {
	return g.ctx
}

// Slots is a counting semaphore bounding concurrently running resolver
// invocations. Tasks acquire a slot inside their goroutine, never while
// holding another slot, so parents spawning children cannot deadlock the
// pool.
type Slots struct {
	sem *semaphore.Weighted
}

func NewSlots(limit int64) *Slots {
	return &Slots{sem: semaphore.NewWeighted(limit)}
}

// Acquire blocks until a slot is free or the context is cancelled.
func (s *Slots) Acquire(ctx context.Context) error {
	return s.sem.Acquire(ctx, 1)
}

func (s *Slots) Release() {
	s.sem.Release(1)
}
