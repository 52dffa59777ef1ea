// Package pool implements the Guest Pool (§4.5): a dynamically sized set of
// long-lived guest.Guest runtimes with idle/in-use/corrupted states, idle
// eviction, and background replacement. Adapted down from a
// VM-multiplexing pool keyed by per-function config fingerprint (see the
// source's pool.go functionPool/PooledVM) to a single guest-type model:
// one pool, one memory ceiling, no per-function sharding.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/emberrun/sandbox/internal/domain"
	"github.com/emberrun/sandbox/internal/errx"
	"github.com/emberrun/sandbox/internal/guest"
	"github.com/emberrun/sandbox/internal/metrics"
)

// Config mirrors §6.2's pool-related options.
type Config struct {
	BasePoolSize  int
	MaxPoolSize   int
	MemoryLimitMB int
	IdleTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.BasePoolSize <= 0 {
		c.BasePoolSize = 5
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = 20
	}
	if c.BasePoolSize > c.MaxPoolSize {
		c.BasePoolSize = c.MaxPoolSize
	}
	if c.MemoryLimitMB <= 0 {
		c.MemoryLimitMB = 128
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	return c
}

type status int

const (
	statusIdle status = iota
	statusInUse
	statusCorrupted
)

// entry is one pool slot: {guest, status, lastUsed} per §3 "Pool entry".
type entry struct {
	id       int
	guest    *guest.Guest
	status   status
	lastUsed time.Time
}

// Pool is the process-wide guest pool. All bookkeeping is serialized under
// mu; acquire/release are atomic transitions (§5 "Shared-resource policy").
type Pool struct {
	cfg Config

	mu      sync.Mutex
	entries map[int]*entry
	nextID  int
	total   int // not updated; len(entries) is the live count

	shuttingDown bool
	stopSweep    chan struct{}
	sweepOnce    sync.Once
}

// New constructs a Pool and eagerly warms it to BasePoolSize, starting the
// idle sweeper in the background.
func New(cfg Config) *Pool {
	cfg = cfg.withDefaults()
	p := &Pool{
		cfg:       cfg,
		entries:   make(map[int]*entry),
		stopSweep: make(chan struct{}),
	}
	for i := 0; i < cfg.BasePoolSize; i++ {
		p.addIdle()
	}
	go p.sweepLoop()
	return p
}

func (p *Pool) addIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	p.entries[p.nextID] = &entry{
		id:       p.nextID,
		guest:    guest.New(p.cfg.MemoryLimitMB),
		status:   statusIdle,
		lastUsed: time.Now(),
	}
	metrics.RecordPrometheusVMCreated()
	p.reportPoolSizeLocked()
}

// Lease is a handle to an acquired guest plus a fresh context for exactly
// one invocation. Release must be called exactly once.
type Lease struct {
	pool    *Pool
	entryID int
	Guest   *guest.Guest
	Context *guest.Context
}

// Acquire implements §4.5's acquire() algorithm: reuse an idle entry, else
// grow if under max, else fail ResourceExhausted (PoolExhausted, §6.1).
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	p.mu.Lock()
	if p.shuttingDown {
		p.mu.Unlock()
		return nil, errx.With(domain.ErrResourceExhausted, ": pool is shutting down")
	}
	for _, e := range p.entries {
		if e.status == statusIdle {
			e.status = statusInUse
			e.lastUsed = time.Now()
			p.reportPoolSizeLocked()
			p.mu.Unlock()
			return p.newLease(e), nil
		}
	}
	if len(p.entries) < p.cfg.MaxPoolSize {
		p.nextID++
		e := &entry{id: p.nextID, guest: guest.New(p.cfg.MemoryLimitMB), status: statusInUse, lastUsed: time.Now()}
		p.entries[e.id] = e
		metrics.RecordPrometheusVMCreated()
		p.reportPoolSizeLocked()
		p.mu.Unlock()
		return p.newLease(e), nil
	}
	p.mu.Unlock()
	return nil, errx.With(domain.ErrResourceExhausted, ": pool exhausted")
}

func (p *Pool) newLease(e *entry) *Lease {
	return &Lease{pool: p, entryID: e.id, Guest: e.guest, Context: e.guest.NewContext()}
}

// Release implements §4.5's release(guest, healthy) transitions.
func (p *Pool) Release(l *Lease, healthy bool) {
	l.Context.Close()

	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[l.entryID]
	if !ok {
		return
	}
	if healthy {
		e.status = statusIdle
		e.lastUsed = time.Now()
		p.reportPoolSizeLocked()
		return
	}
	e.status = statusCorrupted
	delete(p.entries, l.entryID)
	e.guest.Dispose()
	metrics.RecordPrometheusVMCrashed()
	p.reportPoolSizeLocked()
	if p.healthyCountLocked() < p.cfg.BasePoolSize && !p.shuttingDown {
		go p.addIdle()
	}
}

// reportPoolSizeLocked publishes the current idle/in-use gauges; callers
// must hold mu.
func (p *Pool) reportPoolSizeLocked() {
	idle, busy := 0, 0
	for _, e := range p.entries {
		switch e.status {
		case statusIdle:
			idle++
		case statusInUse:
			busy++
		}
	}
	metrics.SetVMPoolSize("global", idle, busy)
}

func (p *Pool) healthyCountLocked() int {
	n := 0
	for _, e := range p.entries {
		if e.status != statusCorrupted {
			n++
		}
	}
	return n
}

// Stats reports the current idle/in-use/total counts and the configured
// sizes for §C metrics. Corrupted entries are removed on Release, so they
// are not counted.
type Stats struct {
	Idle      int
	InUse     int
	Total     int
	MaxSize   int
	BaseSize  int
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{MaxSize: p.cfg.MaxPoolSize, BaseSize: p.cfg.BasePoolSize, Total: len(p.entries)}
	for _, e := range p.entries {
		switch e.status {
		case statusIdle:
			s.Idle++
		case statusInUse:
			s.InUse++
		}
	}
	return s
}

// sweepLoop disposes idle entries beyond BasePoolSize that have exceeded
// IdleTimeout, once per minute (§4.5 "Idle sweeper").
func (p *Pool) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.sweepIdle()
		case <-p.stopSweep:
			return
		}
	}
}

func (p *Pool) sweepIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) <= p.cfg.BasePoolSize {
		return
	}
	now := time.Now()
	for id, e := range p.entries {
		if len(p.entries) <= p.cfg.BasePoolSize {
			break
		}
		if e.status == statusIdle && now.Sub(e.lastUsed) > p.cfg.IdleTimeout {
			delete(p.entries, id)
			e.guest.Dispose()
			metrics.RecordPrometheusVMStopped()
		}
	}
	p.reportPoolSizeLocked()
}

// Shutdown stops the sweeper, rejects new acquires, and waits up to
// deadline for in-use entries to finish before disposing everything
// remaining (§4.5 "Shutdown").
func (p *Pool) Shutdown(deadline time.Duration) {
	p.mu.Lock()
	p.shuttingDown = true
	p.mu.Unlock()
	p.sweepOnce.Do(func() { close(p.stopSweep) })

	deadlineAt := time.Now().Add(deadline)
	for time.Now().Before(deadlineAt) {
		p.mu.Lock()
		inUse := 0
		for _, e := range p.entries {
			if e.status == statusInUse {
				inUse++
			}
		}
		p.mu.Unlock()
		if inUse == 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for id, e := range p.entries {
		e.guest.Dispose()
		delete(p.entries, id)
	}
}
