// Package moduleloader turns a guest-side require("./thing") into an
// executed module whose exports are returned (§4.3), backed by a
// process-wide LRU of compiled *goja.Program artefacts keyed by
// (functionId, packageDigest, virtualPath) so that concurrent invocations of
// the same function version never recompile the same source twice.
package moduleloader

import (
	"container/list"
	"sync"

	"github.com/dop251/goja"
)

// CacheKey identifies one compiled script artefact.
type CacheKey struct {
	FunctionID     string
	PackageDigest  string
	VirtualPath    string
}

// ScriptCache is a process-wide, size-bounded LRU of compiled programs.
// Every operation, lookups included, takes the one mutex mu; each critical
// section is a map lookup plus a list move or insert, so it is held only
// briefly (§5 "Shared-resource policy").
type ScriptCache struct {
	mu       sync.Mutex
	maxSize  int
	enabled  bool
	entries  map[CacheKey]*list.Element
	order    *list.List // front = most recently used
}

type cacheEntry struct {
	key     CacheKey
	program *goja.Program
}

// NewScriptCache builds a cache holding at most maxSize entries. If enabled
// is false, Get always misses and Put is a no-op (§6.2 moduleCacheEnabled).
func NewScriptCache(maxSize int, enabled bool) *ScriptCache {
	return &ScriptCache{
		maxSize: maxSize,
		enabled: enabled,
		entries: make(map[CacheKey]*list.Element),
		order:   list.New(),
	}
}

// Get returns the cached program for key, refreshing its recency, or false
// on miss.
func (c *ScriptCache) Get(key CacheKey) (*goja.Program, bool) {
	if !c.enabled {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).program, true
}

// Put inserts program under key, evicting the least-recently-used entry if
// the cache is at capacity.
func (c *ScriptCache) Put(key CacheKey, program *goja.Program) {
	if !c.enabled || c.maxSize <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).program = program
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&cacheEntry{key: key, program: program})
	c.entries[key] = el

	for c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Len reports the current entry count, for metrics and tests.
func (c *ScriptCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
