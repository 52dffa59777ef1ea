// Package bootstrap composes the flat host-call references internal/bridge
// installs onto a guest runtime's globals into the Node-shaped module
// surface require() resolves bare specifiers to (§4.3, §4.4). It is run
// once per fresh guest.Context, before any package code loads.
package bootstrap

import (
	_ "embed"
	"sort"

	"github.com/dop251/goja"

	"github.com/emberrun/sandbox/internal/domain"
	"github.com/emberrun/sandbox/internal/errx"
	"github.com/emberrun/sandbox/internal/moduleloader"
)

//go:embed runtime.js
var runtimeScript string

var program = goja.MustCompile("bootstrap/runtime.js", runtimeScript, false)

// builtinNames enumerates every bare specifier require() is allowed to
// resolve (§6.4 "standard-library surface"). The loader hands every bare
// specifier (minus any "node:" prefix) to this package's resolver; a name
// not in this list is reported as unknown and the loader fails it with
// ModuleDenied.
var builtinNames = []string{
	"fs", "path", "crypto", "zlib", "dns", "net", "tls", "url", "querystring", "util",
}

func init() {
	sort.Strings(builtinNames)
}

// Run executes the bootstrap script against vm and sets process.env from
// env. Call once per fresh guest context, before loader.LoadEntry.
func Run(vm *goja.Runtime, env map[string]string) error {
	if _, err := vm.RunProgram(program); err != nil {
		return errx.Wrap(domain.ErrInternal, err)
	}
	process := vm.Get("process")
	if process == nil || goja.IsUndefined(process) {
		return errx.With(domain.ErrInternal, ": bootstrap did not install process")
	}
	procObj := process.ToObject(vm)
	envObj := procObj.Get("env").ToObject(vm)
	for k, v := range env {
		_ = envObj.Set(k, v)
	}
	return nil
}

// Resolver returns the moduleloader.BuiltinResolver backed by the
// __builtins registry the bootstrap script installed. Must be called after
// Run on the same vm.
func Resolver() moduleloader.BuiltinResolver {
	return func(vm *goja.Runtime, specifier string) (goja.Value, bool) {
		if !isBuiltin(specifier) {
			return nil, false
		}
		registry := vm.Get("__builtins")
		if registry == nil || goja.IsUndefined(registry) {
			return nil, false
		}
		v := registry.ToObject(vm).Get(specifier)
		if v == nil || goja.IsUndefined(v) {
			return nil, false
		}
		return v, true
	}
}

func isBuiltin(name string) bool {
	i := sort.SearchStrings(builtinNames, name)
	return i < len(builtinNames) && builtinNames[i] == name
}

// CreateRequest builds the guest-facing req object (a thin accessor layer
// over the Bridge's stored request record) and returns it, for the
// execution context to pass as the handler's first argument.
func CreateRequest(vm *goja.Runtime) goja.Value {
	fn, ok := goja.AssertFunction(vm.Get("__createRequest"))
	if !ok {
		return goja.Undefined()
	}
	v, err := fn(goja.Undefined())
	if err != nil {
		return goja.Undefined()
	}
	return v
}

// Response returns the guest-facing res object the bootstrap script
// installed, for the execution context to pass as the handler's second
// argument.
func Response(vm *goja.Runtime) goja.Value {
	v := vm.Get("__response")
	if v == nil {
		return goja.Undefined()
	}
	return v
}
