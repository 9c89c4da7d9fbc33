// Package tasks runs fire-and-forget background work that the owner keeps
// alive until it settles.
package tasks

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Group tracks background tasks spawned on behalf of request handlers.
// Tasks receive the group context, which Close cancels.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	eg     errgroup.Group
	active atomic.Int64
	logger zerolog.Logger
}

// New creates a group whose tasks run under a context derived from parent.
func New(parent context.Context, logger zerolog.Logger) *Group {
	ctx, cancel := context.WithCancel(parent)
	return &Group{ctx: ctx, cancel: cancel, logger: logger}
}

// Context returns the group context.
func (g *Group) Context() context.Context {
	return g.ctx
}

// Go runs fn in the background. A panic in fn is logged and does not crash
// the process.
func (g *Group) Go(name string, fn func(ctx context.Context)) {
	g.active.Add(1)
	g.eg.Go(func() (err error) {
		defer g.active.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				g.logger.Error().
					Str("task", name).
					Interface("panic", r).
					Msg("Background task panicked")
				err = fmt.Errorf("task %s panicked: %v", name, r)
			}
		}()
		fn(g.ctx)
		return nil
	})
}

// Active returns the number of running tasks.
func (g *Group) Active() int64 {
	return g.active.Load()
}

// Wait blocks until every spawned task has returned or ctx is done.
func (g *Group) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		_ = g.eg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel cancels the group context without waiting.
func (g *Group) Cancel() {
	g.cancel()
}

// Close cancels the group context and waits for tasks to settle.
func (g *Group) Close(ctx context.Context) error {
	g.cancel()
	return g.Wait(ctx)
}
