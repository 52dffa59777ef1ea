package guest

import (
	"context"
	"testing"
	"time"

	"github.com/dop251/goja"
)

func TestContextIsolation(t *testing.T) {
	g := New(64)
	defer g.Dispose()

	c1 := g.NewContext()
	defer c1.Close()
	if _, err := c1.Run(context.Background(), time.Second, func(vm *goja.Runtime) (goja.Value, error) {
		return vm.RunString(`globalThis.leaked = 42;`)
	}); err != nil {
		t.Fatalf("run c1: %v", err)
	}

	c2 := g.NewContext()
	defer c2.Close()
	val, err := c2.Run(context.Background(), time.Second, func(vm *goja.Runtime) (goja.Value, error) {
		return vm.RunString(`typeof globalThis.leaked`)
	})
	if err != nil {
		t.Fatalf("run c2: %v", err)
	}
	if got := val.String(); got != "undefined" {
		t.Fatalf("globals leaked across contexts: typeof leaked = %q", got)
	}
}

func TestRunTimesOut(t *testing.T) {
	g := New(64)
	defer g.Dispose()
	c := g.NewContext()
	defer c.Close()

	_, err := c.Run(context.Background(), 20*time.Millisecond, func(vm *goja.Runtime) (goja.Value, error) {
		return vm.RunString(`while (true) {}`)
	})
	if err == nil {
		t.Fatalf("expected timeout error, got nil")
	}
}

func TestAsyncCompletionPumped(t *testing.T) {
	g := New(64)
	defer g.Dispose()
	c := g.NewContext()
	defer c.Close()

	val, err := c.Run(context.Background(), time.Second, func(vm *goja.Runtime) (goja.Value, error) {
		p, resolve, _ := NewPromise(vm)
		c.BeginAsync()
		go func() {
			time.Sleep(10 * time.Millisecond)
			c.Submit(func(vm *goja.Runtime) {
				resolve("done")
				c.EndAsync()
			})
		}()
		if err := vm.Set("pending", p); err != nil {
			return nil, err
		}
		return vm.RunString(`pending`)
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	promise, ok := val.Export().(*goja.Promise)
	if !ok {
		t.Fatalf("expected *goja.Promise, got %T", val.Export())
	}
	if promise.State() != goja.PromiseStateFulfilled {
		t.Fatalf("promise state = %v, want fulfilled", promise.State())
	}
}
