package guest

import "github.com/dop251/goja"

// NewPromise creates a pending JS promise and the resolve/reject functions
// that settle it. Used by bridge functions that perform async work on a Go
// goroutine and report completion back via Context.Submit.
func NewPromise(vm *goja.Runtime) (*goja.Promise, func(result interface{}), func(reason interface{})) {
	return vm.NewPromise()
}
