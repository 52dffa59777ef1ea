package bridge

import (
	"time"

	"github.com/dop251/goja"
)

// installTimers registers the single host-backed timer primitive guest
// code needs: a promise-returning sleep. setTimeout/setInterval are
// reimplemented in the bootstrap script as chains of _sleep calls; there is
// no separate host timer.
func (b *Bridge) installTimers(vm *goja.Runtime) error {
	return set(vm, "_sleep", func(call goja.FunctionCall) goja.Value {
		ms := argInt(vm, call, 0)
		return asPromise(vm, b.ctx, func() (goja.Value, error) {
			time.Sleep(time.Duration(ms) * time.Millisecond)
			return goja.Undefined(), nil
		})
	})
}
