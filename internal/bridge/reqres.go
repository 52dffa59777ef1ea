// The request/response shape mirrors internal/executor's invocation
// payload (method, path, headers, query, params, body) and is generalised
// here into the guest-facing req/res pair §4.2 "HTTP invocation context"
// describes.
package bridge

import (
	"encoding/json"
	"mime"
	"path"
	"strings"

	"github.com/dop251/goja"

	"github.com/emberrun/sandbox/internal/domain"
	"github.com/emberrun/sandbox/internal/errx"
)

// responseState accumulates what the guest's res.* calls produced so the
// execution engine can turn it into a domain.InvokeResponse once the
// handler returns or the promise chain drains.
type responseState struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Sent       bool
}

// SetRequest builds the guest-facing request object from req and stores it
// on the Bridge; called by the execution context before running the
// handler.
func (b *Bridge) SetRequest(vm *goja.Runtime, req *domain.InvokeRequest) {
	obj := vm.NewObject()
	obj.Set("method", req.Method)
	obj.Set("url", req.URL)
	obj.Set("originalUrl", req.OriginalURL)
	obj.Set("path", req.Path)
	obj.Set("protocol", req.Protocol)
	obj.Set("hostname", req.Hostname)
	obj.Set("secure", req.Secure)
	obj.Set("ip", req.IP)
	obj.Set("ips", req.IPs)
	obj.Set("query", toValue(vm, req.Query))
	obj.Set("params", toValue(vm, req.Params))
	obj.Set("headers", toValue(vm, req.Headers))
	if len(req.Body) > 0 {
		var decoded any
		if err := json.Unmarshal(req.Body, &decoded); err == nil {
			obj.Set("body", toValue(vm, decoded))
		} else {
			obj.Set("body", string(req.Body))
		}
	} else {
		obj.Set("body", goja.Undefined())
	}
	b.Request = obj
	b.Response = &responseState{StatusCode: 200, Headers: map[string]string{}}
}

// Result converts the accumulated response state into an InvokeResponse,
// including whatever console lines were captured along the way. returnValue
// is whatever the handler returned (or goja.Undefined()): when res.send/json
// was never called, a returned value becomes the body under the status
// res.status set (default 200); neither a call nor a return value is a 500
// "no output" per the source's documented default (§9).
func (b *Bridge) Result(returnValue goja.Value) *domain.InvokeResponse {
	if b.Response.Sent {
		return &domain.InvokeResponse{
			StatusCode: b.Response.StatusCode,
			Headers:    b.Response.Headers,
			Data:       json.RawMessage(b.Response.Body),
			Logs:       b.Console,
		}
	}
	if returnValue == nil || goja.IsUndefined(returnValue) || goja.IsNull(returnValue) {
		return &domain.InvokeResponse{
			StatusCode: 500,
			Headers:    b.Response.Headers,
			Logs:       b.Console,
			Error:      "Function did not produce any output",
		}
	}
	encoded, err := json.Marshal(returnValue.Export())
	if err != nil {
		return &domain.InvokeResponse{
			StatusCode: 500,
			Headers:    b.Response.Headers,
			Logs:       b.Console,
			Error:      "Function did not produce any output",
		}
	}
	if _, ok := b.Response.Headers["content-type"]; !ok {
		b.Response.Headers["content-type"] = "application/json"
	}
	return &domain.InvokeResponse{
		StatusCode: b.Response.StatusCode,
		Headers:    b.Response.Headers,
		Data:       json.RawMessage(encoded),
		Logs:       b.Console,
	}
}

func (b *Bridge) installReqRes(vm *goja.Runtime) error {
	sets := map[string]any{
		"_req_get": func(call goja.FunctionCall) goja.Value {
			field := argString(vm, call, 0)
			if b.Request == nil {
				return goja.Undefined()
			}
			return b.Request.Get(field)
		},
		"_res_status": func(call goja.FunctionCall) goja.Value {
			b.Response.StatusCode = argInt(vm, call, 0)
			return goja.Undefined()
		},
		"_res_setHeader": func(call goja.FunctionCall) goja.Value {
			name := strings.ToLower(argString(vm, call, 0))
			value := argString(vm, call, 1)
			b.Response.Headers[name] = value
			return goja.Undefined()
		},
		"_res_getHeader": func(call goja.FunctionCall) goja.Value {
			name := strings.ToLower(argString(vm, call, 0))
			v, ok := b.Response.Headers[name]
			if !ok {
				return goja.Undefined()
			}
			return toValue(vm, v)
		},
		"_res_json": func(call goja.FunctionCall) goja.Value {
			v := arg(call, 0).Export()
			encoded, err := json.Marshal(v)
			if err != nil {
				throw(vm, errx.Wrap(domain.ErrInvalidArgument, err))
			}
			b.Response.Body = encoded
			b.Response.Headers["content-type"] = "application/json"
			b.Response.Sent = true
			return goja.Undefined()
		},
		"_res_send": func(call goja.FunctionCall) goja.Value {
			data := argBytes(vm, call, 0, "")
			b.Response.Body = data
			if _, ok := b.Response.Headers["content-type"]; !ok {
				b.Response.Headers["content-type"] = "text/plain; charset=utf-8"
			}
			b.Response.Sent = true
			return goja.Undefined()
		},
		"_res_end": func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) > 0 {
				b.Response.Body = argBytes(vm, call, 0, "")
			}
			b.Response.Sent = true
			return goja.Undefined()
		},
		"_res_sendFile": func(call goja.FunctionCall) goja.Value {
			guestPath := argString(vm, call, 0)
			data, err := b.FS.ReadFile(guestPath)
			if err != nil {
				throw(vm, err)
			}
			if _, ok := b.Response.Headers["content-type"]; !ok {
				if ct := mime.TypeByExtension(path.Ext(guestPath)); ct != "" {
					b.Response.Headers["content-type"] = ct
				} else {
					b.Response.Headers["content-type"] = "application/octet-stream"
				}
			}
			b.Response.Body = data
			b.Response.Sent = true
			return goja.Undefined()
		},
	}
	for name, fn := range sets {
		if err := set(vm, name, fn); err != nil {
			return err
		}
	}
	return nil
}
