package guest

import (
	"errors"

	"github.com/dop251/goja"

	"github.com/emberrun/sandbox/internal/domain"
)

// Throw converts a host error into a JS Error object carrying a "kind"
// field (one of the kinds in internal/domain) and panics with it, which is
// goja's mechanism for raising a catchable exception from a native
// function. Host stack traces never reach the message; only err.Error() is
// exposed as .message.
func Throw(vm *goja.Runtime, err error) {
	obj := vm.NewGoError(err)
	_ = obj.Set("kind", KindOf(err))
	panic(obj)
}

// KindOf maps err to the §7 error kind string carried on thrown/rejected
// guest-visible error objects.
func KindOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "NotFound"
	case errors.Is(err, domain.ErrPermissionDenied):
		return "PermissionDenied"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "InvalidArgument"
	case errors.Is(err, domain.ErrResourceExhausted):
		return "ResourceExhausted"
	case errors.Is(err, domain.ErrCanceled):
		return "Canceled"
	case errors.Is(err, domain.ErrModuleDenied):
		return "ModuleDenied"
	default:
		return "Internal"
	}
}
