package bridge

import (
	"sync"

	"github.com/emberrun/sandbox/internal/domain"
	"github.com/emberrun/sandbox/internal/errx"
)

// handleTable maps small integer handles to host-side stateful resources
// (hashers, ciphers, sockets, compressors, URLSearchParams) for one
// invocation (§9 "cross-boundary object graphs"). No handle is ever reused
// within its lifetime; Release removes an entry, and its id is never handed
// out again by New.
type handleTable struct {
	mu      sync.Mutex
	next    int
	entries map[int]any
}

func newHandleTable() *handleTable {
	return &handleTable{next: 1, entries: make(map[int]any)}
}

// New stores v and returns its fresh handle id.
func (t *handleTable) New(v any) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.next
	t.next++
	t.entries[id] = v
	return id
}

// Get returns the value for handle, or PermissionDenied if unknown.
func (t *handleTable) Get(handle int) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.entries[handle]
	if !ok {
		return nil, errx.With(domain.ErrPermissionDenied, ": unknown handle")
	}
	return v, nil
}

// Release disposes handle, returning its value so the caller can close it.
func (t *handleTable) Release(handle int) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.entries[handle]
	if !ok {
		return nil, errx.With(domain.ErrPermissionDenied, ": unknown handle")
	}
	delete(t.entries, handle)
	return v, nil
}

// releaser is implemented by handle-table entries that hold resources
// (sockets, streams) needing explicit cleanup beyond garbage collection.
type releaser interface {
	Close() error
}

// CloseAll disposes every remaining handle, calling Close on any entry that
// implements releaser. Invoked by execctx cleanup on every exit path.
func (t *handleTable) CloseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, v := range t.entries {
		if r, ok := v.(releaser); ok {
			_ = r.Close()
		}
		delete(t.entries, id)
	}
}

// Len reports the number of live handles, for tests asserting the
// "handle uniqueness" / cleanup invariant.
func (t *handleTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
