// Package guest wraps goja (an embeddable, pure-Go ECMAScript engine) into
// the long-lived "guest runtime" / short-lived "guest context" split used by
// the pool. A Guest is the pooled resource: it carries the per-guest memory
// ceiling and survives across invocations. Each invocation gets a brand new
// *goja.Runtime via NewContext so that globals mutated by one invocation can
// never leak into the next; what the pool actually amortises is the Go-level
// scaffolding (handle tables, the worker discipline below) and the
// process-wide compiled script cache, not JS heap state.
//
// goja.Runtime is not safe for concurrent use. Every Context therefore has
// exactly one "driving" goroutine at a time: the goroutine that called Run.
// Other goroutines (timers, async bridge completions) never touch the
// runtime directly; they hand a Job to the context's queue, and the driving
// goroutine executes queued jobs itself while it waits for pending async
// work to settle. The one exception is Runtime.Interrupt, which goja
// documents as safe to call from any goroutine for exactly this purpose.
package guest

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
)

// Job is a unit of work run on a Context's driving goroutine.
type Job func(vm *goja.Runtime)

// Guest is one long-lived execution domain: a memory ceiling applied to
// every runtime it creates, plus identity for pool bookkeeping.
type Guest struct {
	memoryLimitMB int
}

// New constructs a Guest whose contexts are capped at memoryLimitMB.
func New(memoryLimitMB int) *Guest {
	return &Guest{memoryLimitMB: memoryLimitMB}
}

// Dispose releases any resources held by the guest itself. Contexts must be
// closed before Dispose is called.
func (g *Guest) Dispose() {}

// ErrMemoryLimit names the guest memory-limit failure. Run does not return
// it; the engine recognises memory-limit errors by their message.
var ErrMemoryLimit = fmt.Errorf("guest memory limit exceeded")

// Context is the fresh, per-invocation execution environment inside a
// Guest. It owns exactly one *goja.Runtime; nothing about it is visible to
// any other Context, including ones created later from the same Guest.
type Context struct {
	vm      *goja.Runtime
	jobs    chan Job
	pending atomic.Int64
	closed  atomic.Bool
}

// NewContext creates a fresh runtime bound to g's memory ceiling.
func (g *Guest) NewContext() *Context {
	vm := goja.New()
	vm.SetMaxCallStackSize(256)
	applyMemoryLimit(vm, g.memoryLimitMB)
	return &Context{vm: vm, jobs: make(chan Job, 64)}
}

// VM returns the underlying runtime. Safe to call from the driving goroutine
// only (during setup, before any async work has been scheduled, or from
// inside a Job/entry callback passed to Run).
func (c *Context) VM() *goja.Runtime {
	return c.vm
}

// Submit enqueues job to run on the context's driving goroutine once it is
// free to process it. Called by bridge code completing async work from a
// separate goroutine (a timer fire, a finished network read, ...).
func (c *Context) Submit(job Job) {
	if c.closed.Load() {
		return
	}
	select {
	case c.jobs <- job:
	default:
		// Queue is momentarily full; retry with a blocking send so we never
		// drop a completion, at the cost of blocking the submitter briefly.
		c.jobs <- job
	}
}

// BeginAsync marks the start of one outstanding asynchronous bridge
// operation; Run will not return until every BeginAsync is matched by an
// EndAsync (or the invocation times out).
func (c *Context) BeginAsync() { c.pending.Add(1) }

// EndAsync marks the completion of one asynchronous bridge operation.
func (c *Context) EndAsync() { c.pending.Add(-1) }

// Close detaches the context from further Submit calls. Run must have
// returned before Close is called.
func (c *Context) Close() {
	c.closed.Store(true)
}

// Run drives entry to completion: it runs entry on the calling goroutine,
// then pumps queued async Jobs until every BeginAsync has a matching
// EndAsync, honoring d as a wall-clock ceiling for the whole invocation. A
// timeout interrupts the runtime (safe to do from another goroutine per
// goja's contract) and returns context.DeadlineExceeded.
func (c *Context) Run(ctx context.Context, d time.Duration, entry func(vm *goja.Runtime) (goja.Value, error)) (goja.Value, error) {
	timedOut := make(chan struct{})
	deadline := time.AfterFunc(d, func() {
		close(timedOut)
		c.vm.Interrupt(context.DeadlineExceeded)
	})
	defer deadline.Stop()

	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			c.vm.Interrupt(ctx.Err())
		case <-stopWatch:
		}
	}()

	val, err := entry(c.vm)
	if err != nil {
		return val, err
	}

	for c.pending.Load() > 0 {
		select {
		case job := <-c.jobs:
			job(c.vm)
		case <-timedOut:
			return val, context.DeadlineExceeded
		}
	}
	return val, nil
}
