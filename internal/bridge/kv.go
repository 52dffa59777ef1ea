package bridge

import (
	"time"

	"github.com/dop251/goja"

	"github.com/emberrun/sandbox/internal/domain"
	"github.com/emberrun/sandbox/internal/errx"
)

// installKV registers the project-scoped key/value surface (§4.2 "KV
// store"), delegating every call to the KV collaborator injected at Bridge
// construction.
func (b *Bridge) installKV(vm *goja.Runtime) error {
	sets := map[string]any{
		"_kv_get": func(call goja.FunctionCall) goja.Value {
			key := argString(vm, call, 0)
			value, ok, err := b.KV.Get(b.ProjectID, key)
			if err != nil {
				throw(vm, errx.Wrap(domain.ErrInternal, err))
			}
			if !ok {
				return goja.Null()
			}
			return toValue(vm, value)
		},
		"_kv_set": func(call goja.FunctionCall) goja.Value {
			key := argString(vm, call, 0)
			value := argBytes(vm, call, 1, "")
			ttlMs := argOptInt(call, 2, 0)
			var ttl time.Duration
			if ttlMs > 0 {
				ttl = time.Duration(ttlMs) * time.Millisecond
			}
			if err := b.KV.Set(b.ProjectID, key, value, ttl); err != nil {
				throw(vm, errx.Wrap(domain.ErrInternal, err))
			}
			return goja.Undefined()
		},
		"_kv_delete": func(call goja.FunctionCall) goja.Value {
			key := argString(vm, call, 0)
			if err := b.KV.Delete(b.ProjectID, key); err != nil {
				throw(vm, errx.Wrap(domain.ErrInternal, err))
			}
			return goja.Undefined()
		},
		"_kv_has": func(call goja.FunctionCall) goja.Value {
			key := argString(vm, call, 0)
			ok, err := b.KV.Has(b.ProjectID, key)
			if err != nil {
				throw(vm, errx.Wrap(domain.ErrInternal, err))
			}
			return toValue(vm, ok)
		},
		"_kv_keys": func(call goja.FunctionCall) goja.Value {
			keys, err := b.KV.Keys(b.ProjectID)
			if err != nil {
				throw(vm, errx.Wrap(domain.ErrInternal, err))
			}
			return toValue(vm, keys)
		},
	}
	for name, fn := range sets {
		if err := set(vm, name, fn); err != nil {
			return err
		}
	}
	return nil
}
