package bridge

import (
	"net/url"

	"github.com/dop251/goja"

	"github.com/emberrun/sandbox/internal/domain"
	"github.com/emberrun/sandbox/internal/errx"
)

// installURL registers WHATWG URL parsing and a handle-backed
// URLSearchParams (§4.2 "URL & querystring"), both over stdlib net/url.
func (b *Bridge) installURL(vm *goja.Runtime) error {
	sets := map[string]any{
		"_url_parse": func(call goja.FunctionCall) goja.Value {
			raw := argString(vm, call, 0)
			u, err := url.Parse(raw)
			if err != nil {
				throw(vm, errx.Wrap(domain.ErrInvalidArgument, err))
			}
			return toValue(vm, urlRecord(u))
		},
		"_url_format": func(call goja.FunctionCall) goja.Value {
			obj := arg(call, 0).ToObject(vm)
			u := &url.URL{
				Scheme:   stringField(obj, "protocol"),
				Host:     stringField(obj, "host"),
				Path:     stringField(obj, "pathname"),
				RawQuery: stringField(obj, "search"),
				Fragment: stringField(obj, "hash"),
			}
			u.Scheme = trimColon(u.Scheme)
			if u.RawQuery != "" && u.RawQuery[0] == '?' {
				u.RawQuery = u.RawQuery[1:]
			}
			if u.Fragment != "" && u.Fragment[0] == '#' {
				u.Fragment = u.Fragment[1:]
			}
			return toValue(vm, u.String())
		},
		"_querystring_parse": func(call goja.FunctionCall) goja.Value {
			raw := argString(vm, call, 0)
			values, err := url.ParseQuery(raw)
			if err != nil {
				throw(vm, errx.Wrap(domain.ErrInvalidArgument, err))
			}
			return toValue(vm, flattenValues(values))
		},
		"_querystring_stringify": func(call goja.FunctionCall) goja.Value {
			obj := arg(call, 0).ToObject(vm)
			vals := url.Values{}
			for _, key := range obj.Keys() {
				vals.Set(key, obj.Get(key).String())
			}
			return toValue(vm, vals.Encode())
		},
		"_url_searchParamsNew": func(call goja.FunctionCall) goja.Value {
			init := argOptString(call, 0, "")
			values, _ := url.ParseQuery(init)
			return toValue(vm, b.URLSP.New(&values))
		},
		"_url_searchParamsGet": func(call goja.FunctionCall) goja.Value {
			v := mustSearchParams(vm, b, call)
			return toValue(vm, v.Get(argString(vm, call, 1)))
		},
		"_url_searchParamsGetAll": func(call goja.FunctionCall) goja.Value {
			v := mustSearchParams(vm, b, call)
			return toValue(vm, v[argString(vm, call, 1)])
		},
		"_url_searchParamsSet": func(call goja.FunctionCall) goja.Value {
			v := mustSearchParams(vm, b, call)
			v.Set(argString(vm, call, 1), argString(vm, call, 2))
			return goja.Undefined()
		},
		"_url_searchParamsAppend": func(call goja.FunctionCall) goja.Value {
			v := mustSearchParams(vm, b, call)
			v.Add(argString(vm, call, 1), argString(vm, call, 2))
			return goja.Undefined()
		},
		"_url_searchParamsDelete": func(call goja.FunctionCall) goja.Value {
			v := mustSearchParams(vm, b, call)
			v.Del(argString(vm, call, 1))
			return goja.Undefined()
		},
		"_url_searchParamsHas": func(call goja.FunctionCall) goja.Value {
			v := mustSearchParams(vm, b, call)
			return toValue(vm, v.Has(argString(vm, call, 1)))
		},
		"_url_searchParamsToString": func(call goja.FunctionCall) goja.Value {
			v := mustSearchParams(vm, b, call)
			return toValue(vm, v.Encode())
		},
		"_url_searchParamsClose": func(call goja.FunctionCall) goja.Value {
			handle := argInt(vm, call, 0)
			b.URLSP.Release(handle)
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

func mustSearchParams(vm *goja.Runtime, b *Bridge, call goja.FunctionCall) url.Values {
	handle := argInt(vm, call, 0)
	v, err := b.URLSP.Get(handle)
	if err != nil {
		throw(vm, err)
	}
	return *(v.(*url.Values))
}

func urlRecord(u *url.URL) map[string]any {
	username := ""
	password := ""
	if u.User != nil {
		username = u.User.Username()
		password, _ = u.User.Password()
	}
	return map[string]any{
		"protocol": u.Scheme + ":",
		"username": username,
		"password": password,
		"host":     u.Host,
		"hostname": u.Hostname(),
		"port":     u.Port(),
		"pathname": u.Path,
		"search":   querySuffix(u.RawQuery),
		"hash":     fragmentSuffix(u.Fragment),
		"href":     u.String(),
		"origin":   u.Scheme + "://" + u.Host,
	}
}

func querySuffix(q string) string {
	if q == "" {
		return ""
	}
	return "?" + q
}

func fragmentSuffix(f string) string {
	if f == "" {
		return ""
	}
	return "#" + f
}

func trimColon(s string) string {
	if len(s) > 0 && s[len(s)-1] == ':' {
		return s[:len(s)-1]
	}
	return s
}

func stringField(obj *goja.Object, name string) string {
	v := obj.Get(name)
	if v == nil || goja.IsUndefined(v) {
		return ""
	}
	return v.String()
}

func flattenValues(values url.Values) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if len(v) == 1 {
			out[k] = v[0]
		} else {
			out[k] = v
		}
	}
	return out
}
