package bridge

import (
	"github.com/dop251/goja"

	"github.com/emberrun/sandbox/internal/guest"
)

// runAsync executes work on a new goroutine and, once it finishes, delivers
// (err, value) to the guest-side Node-style callback cb by submitting a Job
// to ctx. It marks one BeginAsync/EndAsync pair so Context.Run knows to keep
// pumping until this completes (§5 "suspension points").
func runAsync(vm *goja.Runtime, ctx *guest.Context, cb goja.Callable, work func() (goja.Value, error)) {
	ctx.BeginAsync()
	go func() {
		val, err := work()
		ctx.Submit(func(vm *goja.Runtime) {
			defer ctx.EndAsync()
			if err != nil {
				_, _ = cb(goja.Undefined(), vm.ToValue(toJSError(vm, err)), goja.Undefined())
				return
			}
			if val == nil {
				val = goja.Undefined()
			}
			_, _ = cb(goja.Undefined(), goja.Null(), val)
		})
	}()
}

// asPromise wraps work (run in its own goroutine) as a JS promise, for
// bridge surfaces documented as promise-returning rather than callback
// style (_sleep, fetch-like helpers).
func asPromise(vm *goja.Runtime, ctx *guest.Context, work func() (goja.Value, error)) goja.Value {
	p, resolve, reject := guest.NewPromise(vm)
	ctx.BeginAsync()
	go func() {
		val, err := work()
		ctx.Submit(func(vm *goja.Runtime) {
			defer ctx.EndAsync()
			if err != nil {
				reject(toJSError(vm, err))
				return
			}
			if val == nil {
				val = goja.Undefined()
			}
			resolve(val)
		})
	}()
	return vm.ToValue(p)
}

// toJSError converts a host error into a plain JS Error object with a kind
// field, without panicking (used where the guest expects an error value
// passed to a callback rather than thrown).
func toJSError(vm *goja.Runtime, err error) goja.Value {
	obj := vm.NewGoError(err)
	_ = obj.Set("kind", kindOf(err))
	return obj
}
