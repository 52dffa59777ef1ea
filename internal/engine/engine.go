// Package engine implements the Execution Engine (§4.6 C6): the single
// entry point that turns an invocation request into a response by
// orchestrating every other component — metadata lookup, policy lookup,
// guest acquisition, package materialisation, and a timed run of the
// handler. The pre-fetch/errgroup shape and the rollout-aware version
// selection are grounded in internal/executor's Executor.Invoke and
// executor_snapshot.go's selectRolloutTarget; the circuit breaker guard
// is carried in unchanged from internal/circuitbreaker, wired in front of
// pool acquisition the way executor.go consults getBreakerForFunction
// before invoking.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/emberrun/sandbox/internal/bridge"
	"github.com/emberrun/sandbox/internal/circuitbreaker"
	"github.com/emberrun/sandbox/internal/domain"
	"github.com/emberrun/sandbox/internal/execctx"
	"github.com/emberrun/sandbox/internal/logging"
	"github.com/emberrun/sandbox/internal/metrics"
	"github.com/emberrun/sandbox/internal/moduleloader"
	"github.com/emberrun/sandbox/internal/observability"
	"github.com/emberrun/sandbox/internal/packages"
	"github.com/emberrun/sandbox/internal/pool"
)

// MetadataStore is the narrow collaborator the engine needs from the
// platform's durable metadata store (§6.5): functionId -> function record.
// Defined here, not reused from internal/store's much larger interface, so
// the engine only depends on the one operation it actually calls.
type MetadataStore interface {
	GetFunction(ctx context.Context, functionID string) (*domain.Function, error)
}

// PolicyStore is the narrow collaborator for project network policy (§6.5).
type PolicyStore interface {
	GetPolicy(ctx context.Context, projectID string) (domain.NetworkPolicy, error)
}

// Config carries the engine's tunables, mirroring §6.2.
type Config struct {
	FunctionTimeout time.Duration // default per-invocation wall clock, §6.2 functionTimeoutMs
	Breaker         circuitbreaker.Config
}

func (c Config) withDefaults() Config {
	if c.FunctionTimeout <= 0 {
		c.FunctionTimeout = 30 * time.Second
	}
	return c
}

// Engine is the process-wide execution engine. One Engine serves every
// function; per-invocation state lives entirely in the execctx.Context built
// for that call.
type Engine struct {
	cfg Config

	metadata MetadataStore
	policies PolicyStore
	packages *packages.Provider
	pool     *pool.Pool
	kv       bridge.KV
	scripts  *moduleloader.ScriptCache
	breakers *circuitbreaker.Registry
}

// New wires an Engine from its collaborators. Every argument is a
// previously-constructed collaborator; Engine itself holds no persistent
// state beyond these references and the breaker registry it owns.
func New(cfg Config, metadata MetadataStore, policies PolicyStore, pkgs *packages.Provider, guestPool *pool.Pool, kv bridge.KV, scripts *moduleloader.ScriptCache) *Engine {
	return &Engine{
		cfg:      cfg.withDefaults(),
		metadata: metadata,
		policies: policies,
		packages: pkgs,
		pool:     guestPool,
		kv:       kv,
		scripts:  scripts,
		breakers: circuitbreaker.NewRegistry(),
	}
}

// ExecuteFunction implements §4.6's nine-step contract.
func (e *Engine) ExecuteFunction(ctx context.Context, req *domain.InvokeRequest) (*domain.InvokeResponse, error) {
	requestID := uuid.New().String()[:8]

	ctx, span := observability.StartSpan(ctx, "sandbox.execute",
		observability.AttrFunctionID.String(req.FunctionID),
		observability.AttrRequestID.String(requestID),
	)
	defer span.End()

	metrics.IncActiveRequests()
	defer metrics.DecActiveRequests()

	start := time.Now()

	// Step 1: fetch metadata. A miss here propagates NotFound straight
	// through as a 404, per §6.1's "Error statuses used by the engine
	// itself".
	fn, err := e.metadata.GetFunction(ctx, req.FunctionID)
	if err != nil {
		observability.SetSpanError(span, err)
		return &domain.InvokeResponse{StatusCode: 404, Error: "function not found"}, nil
	}
	fn = e.selectRolloutTarget(fn)

	breaker := e.breakers.Get(fn.ID, e.cfg.Breaker)
	if breaker != nil && !breaker.Allow() {
		metrics.RecordShed(fn.ID, "circuit_breaker_open")
		return &domain.InvokeResponse{StatusCode: 503, Error: "circuit breaker open"}, nil
	}

	// Step 2: env vars (already carried on the function record) and network
	// policy, fetched concurrently; policy failures degrade to default-deny
	// rather than failing the invocation (§4.6 step 2, §7 "Collaborator
	// failures ... degrade safely").
	var netPolicy domain.NetworkPolicy
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, perr := e.policies.GetPolicy(gctx, fn.Project)
		if perr != nil {
			logging.Op().Warn("policy fetch failed, defaulting to deny", "function", fn.ID, "error", perr)
			return nil
		}
		netPolicy = p
		return nil
	})
	var pkg *packages.Package
	g.Go(func() error {
		var perr error
		pkg, perr = e.packages.Materialize(gctx, fn)
		return perr
	})
	if err := g.Wait(); err != nil {
		observability.SetSpanError(span, err)
		return &domain.InvokeResponse{StatusCode: 404, Error: "package not available"}, nil
	}

	// Step 3: acquire a guest.
	lease, err := e.pool.Acquire(ctx)
	if err != nil {
		observability.SetSpanError(span, err)
		if breaker != nil {
			breaker.RecordFailure()
		}
		return &domain.InvokeResponse{StatusCode: 503, Error: "pool exhausted"}, nil
	}

	timeout := e.cfg.FunctionTimeout
	if fn.TimeoutMs > 0 {
		timeout = time.Duration(fn.TimeoutMs) * time.Millisecond
	}

	// Step 5: build a fresh execution context and run the handler under the
	// wall-clock timeout.
	execCfg := execctx.Config{
		PackageRoot:   pkg.HostDir,
		FunctionID:    fn.ID,
		PackageDigest: pkg.Digest,
		EnvVars:       fn.EnvVars,
		Policy:        netPolicy,
		ProjectID:     fn.Project,
		KV:            e.kv,
		ScriptCache:   e.scripts,
	}
	ectx, err := execctx.New(lease.Context, execCfg)
	if err != nil {
		e.pool.Release(lease, false)
		observability.SetSpanError(span, err)
		if breaker != nil {
			breaker.RecordFailure()
		}
		metrics.RecordPrometheusInvocation(fn.ID, "js", time.Since(start).Milliseconds(), false, false)
		return &domain.InvokeResponse{StatusCode: 500, Error: "failed to build execution context"}, nil
	}

	resp, err := ectx.Invoke(ctx, timeout, req)
	ectx.Cleanup()
	durationMs := time.Since(start).Milliseconds()

	switch {
	case err == nil:
		// Step 7: handler success releases the guest healthy.
		e.pool.Release(lease, true)
		if breaker != nil {
			breaker.RecordSuccess()
		}
		observability.SetSpanOK(span)
		metrics.RecordPrometheusInvocation(fn.ID, "js", durationMs, false, resp.StatusCode < 500)
		metrics.Global().RecordInvocationWithDetails(fn.ID, fn.ID, "js", durationMs, false, resp.StatusCode < 500)
		return resp, nil

	case errors.Is(err, context.DeadlineExceeded):
		// Step 6: timeout. The guest is corrupted; the caller sees 504.
		e.pool.Release(lease, false)
		if breaker != nil {
			breaker.RecordFailure()
		}
		observability.SetSpanError(span, err)
		metrics.RecordPrometheusInvocation(fn.ID, "js", durationMs, false, false)
		return &domain.InvokeResponse{
			StatusCode: 504,
			Error:      fmt.Sprintf("execution timed out (%dms)", timeout.Milliseconds()),
		}, nil

	case isMemoryLimit(err):
		// Step 9: out-of-memory signal. Corrupted release.
		e.pool.Release(lease, false)
		if breaker != nil {
			breaker.RecordFailure()
		}
		observability.SetSpanError(span, err)
		metrics.RecordPrometheusInvocation(fn.ID, "js", durationMs, false, false)
		return &domain.InvokeResponse{StatusCode: 500, Error: "function exceeded its memory limit"}, nil

	case errors.Is(err, domain.ErrInternal):
		// An unexpected host-side failure always corrupts the guest (§7).
		e.pool.Release(lease, false)
		if breaker != nil {
			breaker.RecordFailure()
		}
		observability.SetSpanError(span, err)
		metrics.RecordPrometheusInvocation(fn.ID, "js", durationMs, false, false)
		return &domain.InvokeResponse{StatusCode: 500, Error: "internal error"}, nil

	default:
		// Step 8: an uncaught exception from user code (including a
		// bridge-origin error rethrown into the guest, e.g. a VFS escape).
		// The guest stays healthy; only the user handler misbehaved.
		e.pool.Release(lease, true)
		if breaker != nil {
			breaker.RecordSuccess()
		}
		observability.SetSpanError(span, err)
		metrics.RecordPrometheusInvocation(fn.ID, "js", durationMs, false, false)
		return &domain.InvokeResponse{StatusCode: 500, Error: err.Error()}, nil
	}
}

func isMemoryLimit(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "memory limit") || strings.Contains(msg, "out of memory")
}

// selectRolloutTarget resolves fn's active version against its traffic
// split, weighting a random draw by the configured percentages. Adapted
// from canary-by-name selection to a version-percentage map
// (§3 "TrafficSplit").
func (e *Engine) selectRolloutTarget(fn *domain.Function) *domain.Function {
	if len(fn.TrafficSplit) == 0 {
		return fn
	}
	roll := rand.IntN(100)
	cumulative := 0
	for version, pct := range fn.TrafficSplit {
		cumulative += pct
		if roll < cumulative {
			if version != fn.ActiveVersion {
				cp := *fn
				cp.ActiveVersion = version
				return &cp
			}
			return fn
		}
	}
	return fn
}
