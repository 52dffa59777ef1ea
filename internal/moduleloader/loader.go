package moduleloader

import (
	"path"
	"strings"

	"github.com/dop251/goja"

	"github.com/emberrun/sandbox/internal/domain"
	"github.com/emberrun/sandbox/internal/errx"
	"github.com/emberrun/sandbox/internal/vfs"
)

// BuiltinResolver returns the guest-visible module shim for a bare specifier
// (the §6.4 standard-library surface, installed by the bootstrap script), or
// false if the name is not one of the enumerated built-ins.
type BuiltinResolver func(vm *goja.Runtime, specifier string) (goja.Value, bool)

// Loader resolves and executes CommonJS-style modules against one package's
// VFS for the lifetime of a single invocation. It is not safe for reuse
// across invocations: its per-invocation cache must start empty every time
// (§4.3 "Caching").
type Loader struct {
	fs       *vfs.FS
	vm       *goja.Runtime
	cache    *ScriptCache
	builtins BuiltinResolver

	functionID    string
	packageDigest string

	perInvocation map[string]*goja.Object // resolved path -> module object
	inFlight      map[string]bool
}

// New returns a Loader rooted at fs, compiling through cache and resolving
// bare built-in specifiers through builtins.
func New(vm *goja.Runtime, fs *vfs.FS, cache *ScriptCache, builtins BuiltinResolver, functionID, packageDigest string) *Loader {
	return &Loader{
		fs:            fs,
		vm:            vm,
		cache:         cache,
		builtins:      builtins,
		functionID:    functionID,
		packageDigest: packageDigest,
		perInvocation: make(map[string]*goja.Object),
		inFlight:      make(map[string]bool),
	}
}

// Require resolves specifier relative to fromDir (the requiring module's
// directory, "/" for the entry point) and returns its exports.
func (l *Loader) Require(fromDir, specifier string) (goja.Value, error) {
	if isRelative(specifier) {
		resolved, err := l.resolveRelative(fromDir, specifier)
		if err != nil {
			return nil, err
		}
		return l.loadModule(resolved)
	}

	name := strings.TrimPrefix(specifier, "node:")
	if l.builtins != nil {
		if v, ok := l.builtins(l.vm, name); ok {
			return v, nil
		}
	}
	return nil, errx.With(domain.ErrModuleDenied, ": %q is not an allowed module", specifier)
}

func isRelative(specifier string) bool {
	return strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../")
}

// resolveRelative tries the exact path, then with a .js suffix, then
// /index.js, each checked through the VFS so an escaping result is
// PermissionDenied (§4.3).
func (l *Loader) resolveRelative(fromDir, specifier string) (string, error) {
	joined := path.Join(fromDir, specifier)
	candidates := []string{joined, joined + ".js", path.Join(joined, "index.js")}

	var lastErr error
	for _, c := range candidates {
		if l.fs.Exists(c) {
			if _, err := l.fs.Resolve(c); err != nil {
				return "", err
			}
			return c, nil
		}
		if _, err := l.fs.Resolve(c); err != nil {
			lastErr = err
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", errx.With(domain.ErrNotFound, ": module %q", specifier)
}

// loadModule returns virtualPath's module.exports, compiling and running it
// on first reference and returning the cached (possibly partial, for
// cyclic imports) exports object on subsequent references within the same
// invocation.
func (l *Loader) loadModule(virtualPath string) (goja.Value, error) {
	if mod, ok := l.perInvocation[virtualPath]; ok {
		return mod.Get("exports"), nil
	}
	if l.inFlight[virtualPath] {
		// Cyclic require mid-execution: module object already exists with
		// its partial exports (assigned below before Call), so this branch
		// only triggers if it hasn't been created yet, which should not
		// happen given the ordering below; defensive fallback to Internal.
		return nil, errx.With(domain.ErrInternal, ": cyclic module %q not yet initialised", virtualPath)
	}

	program, err := l.compile(virtualPath)
	if err != nil {
		return nil, err
	}

	factory, err := l.vm.RunProgram(program)
	if err != nil {
		return nil, err
	}
	call, ok := goja.AssertFunction(factory)
	if !ok {
		return nil, errx.With(domain.ErrInternal, ": module %q did not compile to a factory", virtualPath)
	}

	moduleObj := l.vm.NewObject()
	exportsObj := l.vm.NewObject()
	_ = moduleObj.Set("exports", exportsObj)

	l.perInvocation[virtualPath] = moduleObj
	l.inFlight[virtualPath] = true
	defer delete(l.inFlight, virtualPath)

	dir := path.Dir(virtualPath)
	requireFn := func(call goja.FunctionCall) goja.Value {
		spec := call.Argument(0).String()
		v, err := l.Require(dir, spec)
		if err != nil {
			panic(l.vm.ToValue(err.Error()))
		}
		return v
	}

	_, err = call(goja.Undefined(), moduleObj, moduleObj.Get("exports"), l.vm.ToValue(requireFn),
		l.vm.ToValue(virtualPath), l.vm.ToValue(dir))
	if err != nil {
		delete(l.perInvocation, virtualPath)
		return nil, err
	}

	return moduleObj.Get("exports"), nil
}

// compile fetches source from the VFS and wraps it as a CommonJS factory,
// reusing a cached artefact keyed by (functionId, packageDigest,
// virtualPath) when the global cache holds one (§4.3 "Compilation").
func (l *Loader) compile(virtualPath string) (*goja.Program, error) {
	key := CacheKey{FunctionID: l.functionID, PackageDigest: l.packageDigest, VirtualPath: virtualPath}
	if program, ok := l.cache.Get(key); ok {
		return program, nil
	}

	src, err := l.fs.ReadFile(virtualPath)
	if err != nil {
		return nil, err
	}

	wrapped := "(function(module, exports, require, __filename, __dirname) {\n" + string(src) + "\n})"
	program, cerr := goja.Compile(virtualPath, wrapped, false)
	if cerr != nil {
		return nil, errx.Wrap(domain.ErrInvalidArgument, cerr)
	}

	l.cache.Put(key, program)
	return program, nil
}

// LoadEntry loads the package's entry point ("/index.js") and returns its
// exports, per §4.4 loadAndRun.
func (l *Loader) LoadEntry() (goja.Value, error) {
	return l.loadModule("/index.js")
}
