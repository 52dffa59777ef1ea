// Package execctx assembles the per-invocation execution environment: a
// confined filesystem, a bridge, a module loader bound to the invocation's
// function/package identity, and the bootstrap script, then drives the
// handler to completion and tears everything down on every exit path
// (§4.4 "Execution Context").
package execctx

import (
	"context"
	"time"

	"github.com/dop251/goja"

	"github.com/emberrun/sandbox/internal/bootstrap"
	"github.com/emberrun/sandbox/internal/bridge"
	"github.com/emberrun/sandbox/internal/domain"
	"github.com/emberrun/sandbox/internal/errx"
	"github.com/emberrun/sandbox/internal/guest"
	"github.com/emberrun/sandbox/internal/moduleloader"
	"github.com/emberrun/sandbox/internal/policy"
	"github.com/emberrun/sandbox/internal/vfs"
)

// Config carries everything needed to construct one Context: the package's
// on-disk root, the function/package identity for cache keys, the
// environment to inject, the network policy decision, and the KV/script
// cache collaborators.
type Config struct {
	PackageRoot   string
	FunctionID    string
	PackageDigest string
	EnvVars       map[string]string
	Policy        domain.NetworkPolicy
	ProjectID     string
	KV            bridge.KV
	ScriptCache   *moduleloader.ScriptCache
}

// Context is one invocation's execution environment, built fresh on every
// Guest acquisition and discarded at Cleanup.
type Context struct {
	guestCtx *guest.Context
	fs       *vfs.FS
	bridge   *bridge.Bridge
	loader   *moduleloader.Loader
	vm       *goja.Runtime
}

// New builds a Context against a fresh guest.Context, confining the
// filesystem to cfg.PackageRoot, installing the bridge and bootstrap
// script, and wiring a loader rooted at that package.
func New(gctx *guest.Context, cfg Config) (*Context, error) {
	fs, err := vfs.New(cfg.PackageRoot)
	if err != nil {
		return nil, errx.Wrap(domain.ErrInternal, err)
	}

	vm := gctx.VM()
	decider := policy.New(cfg.Policy)
	br := bridge.New(fs, gctx, decider, cfg.ProjectID, cfg.KV)
	if err := br.Install(vm); err != nil {
		return nil, errx.Wrap(domain.ErrInternal, err)
	}
	if err := bootstrap.Run(vm, cfg.EnvVars); err != nil {
		return nil, err
	}

	loader := moduleloader.New(vm, fs, cfg.ScriptCache, bootstrap.Resolver(), cfg.FunctionID, cfg.PackageDigest)

	return &Context{guestCtx: gctx, fs: fs, bridge: br, loader: loader, vm: vm}, nil
}

// Invoke loads the package entry point, calls its exported handler with a
// request/response pair built from req, and returns the accumulated
// response once the handler and any async work it scheduled settle (or the
// invocation exceeds timeout).
func (c *Context) Invoke(ctx context.Context, timeout time.Duration, req *domain.InvokeRequest) (*domain.InvokeResponse, error) {
	c.bridge.SetRequest(c.vm, req)

	retVal, err := c.guestCtx.Run(ctx, timeout, func(vm *goja.Runtime) (goja.Value, error) {
		exports, lerr := c.loader.LoadEntry()
		if lerr != nil {
			return nil, lerr
		}
		handler := resolveHandler(vm, exports)
		if handler == nil {
			return nil, errx.With(domain.ErrInvalidArgument, ": package does not export a function handler")
		}
		reqVal := bootstrap.CreateRequest(vm)
		resVal := bootstrap.Response(vm)
		return handler(goja.Undefined(), reqVal, resVal)
	})
	if err != nil {
		return nil, err
	}
	return c.bridge.Result(retVal), nil
}

// resolveHandler accepts either `module.exports = fn` or
// `module.exports.handler = fn` (§4.4 "entry point contract").
func resolveHandler(vm *goja.Runtime, exports goja.Value) goja.Callable {
	if fn, ok := goja.AssertFunction(exports); ok {
		return fn
	}
	if obj, ok := exports.(*goja.Object); ok {
		if fn, ok := goja.AssertFunction(obj.Get("handler")); ok {
			return fn
		}
	}
	return nil
}

// Cleanup releases every handle, fd, and VFS state this invocation touched.
// Must run on every exit path, including timeout and panic recovery,
// per §4.4.
func (c *Context) Cleanup() {
	c.bridge.Cleanup()
	c.guestCtx.Close()
}

// Console returns the log lines captured so far, for callers that need them
// even when Invoke itself failed (e.g. to surface partial output on
// timeout).
func (c *Context) Console() []domain.LogEntry {
	return c.bridge.Console
}
