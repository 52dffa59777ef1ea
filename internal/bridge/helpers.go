package bridge

import (
	"github.com/dop251/goja"

	"github.com/emberrun/sandbox/internal/domain"
	"github.com/emberrun/sandbox/internal/errx"
	"github.com/emberrun/sandbox/internal/guest"
)

// kindOf aliases guest.KindOf so every file in this package can tag thrown
// errors with their §7 kind without a second import line per file.
func kindOf(err error) string { return guest.KindOf(err) }

// throw panics with a JS Error carrying err's kind, goja's mechanism for
// raising a catchable exception from a native function (§4.2 error
// contract: host stack traces never cross the boundary).
func throw(vm *goja.Runtime, err error) {
	guest.Throw(vm, err)
}

// arg returns call's i-th argument, or undefined if it was not supplied.
func arg(call goja.FunctionCall, i int) goja.Value {
	return call.Argument(i)
}

// argString requires the i-th argument to be present and returns its string
// form.
func argString(vm *goja.Runtime, call goja.FunctionCall, i int) string {
	v := arg(call, i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		throw(vm, errx.With(domain.ErrInvalidArgument, ": argument %d is required", i))
	}
	return v.String()
}

// argOptString returns the i-th argument as a string, or def if absent.
func argOptString(call goja.FunctionCall, i int, def string) string {
	v := arg(call, i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return def
	}
	return v.String()
}

// argInt requires the i-th argument to be present and returns it as an int.
func argInt(vm *goja.Runtime, call goja.FunctionCall, i int) int {
	v := arg(call, i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		throw(vm, errx.With(domain.ErrInvalidArgument, ": argument %d is required", i))
	}
	return int(v.ToInteger())
}

// argOptInt returns the i-th argument as an int, or def if absent.
func argOptInt(call goja.FunctionCall, i int, def int) int {
	v := arg(call, i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return def
	}
	return int(v.ToInteger())
}

// argBytes accepts either a JS string (encoded per encoding, default utf8)
// or a byte array / ArrayBuffer-backed value and returns raw bytes,
// implementing the §4.1 "binary payload convention": bytes cross as opaque
// byte arrays, UTF-8 strings cross as strings, and the bridge performs the
// conversion.
func argBytes(vm *goja.Runtime, call goja.FunctionCall, i int, encoding string) []byte {
	v := arg(call, i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		throw(vm, errx.With(domain.ErrInvalidArgument, ": argument %d is required", i))
	}
	if b, ok := v.Export().([]byte); ok {
		return b
	}
	if ab, ok := v.Export().(goja.ArrayBuffer); ok {
		return ab.Bytes()
	}
	decoded, err := decodeString(v.String(), encoding)
	if err != nil {
		throw(vm, err)
	}
	return decoded
}

// toValue is a short alias used throughout the installers for readability.
func toValue(vm *goja.Runtime, v any) goja.Value {
	return vm.ToValue(v)
}

// callback extracts call's i-th argument as a Node-style (err, result)
// callback, or nil if one was not supplied.
func callback(call goja.FunctionCall, i int) goja.Callable {
	v := arg(call, i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil
	}
	return fn
}
