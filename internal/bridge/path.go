package bridge

import (
	"path"
	"strings"

	"github.com/dop251/goja"
)

// installPath registers the POSIX path utilities (§4.2), operating purely
// on strings: no VFS confinement applies here since no host path is ever
// touched.
func (b *Bridge) installPath(vm *goja.Runtime) error {
	sets := map[string]any{
		"_path_normalize": func(call goja.FunctionCall) goja.Value {
			return toValue(vm, path.Clean(argString(vm, call, 0)))
		},
		"_path_join": func(call goja.FunctionCall) goja.Value {
			parts := make([]string, 0, len(call.Arguments))
			for i := range call.Arguments {
				parts = append(parts, argString(vm, call, i))
			}
			return toValue(vm, path.Join(parts...))
		},
		"_path_resolve": func(call goja.FunctionCall) goja.Value {
			result := "/"
			for i := range call.Arguments {
				p := argString(vm, call, i)
				if path.IsAbs(p) {
					result = p
				} else {
					result = path.Join(result, p)
				}
			}
			return toValue(vm, result)
		},
		"_path_dirname": func(call goja.FunctionCall) goja.Value {
			return toValue(vm, path.Dir(argString(vm, call, 0)))
		},
		"_path_basename": func(call goja.FunctionCall) goja.Value {
			base := path.Base(argString(vm, call, 0))
			if suffix := argOptString(call, 1, ""); suffix != "" {
				base = strings.TrimSuffix(base, suffix)
			}
			return toValue(vm, base)
		},
		"_path_extname": func(call goja.FunctionCall) goja.Value {
			return toValue(vm, path.Ext(argString(vm, call, 0)))
		},
		"_path_isAbsolute": func(call goja.FunctionCall) goja.Value {
			return toValue(vm, path.IsAbs(argString(vm, call, 0)))
		},
		"_path_relative": func(call goja.FunctionCall) goja.Value {
			from := argString(vm, call, 0)
			to := argString(vm, call, 1)
			return toValue(vm, relativePath(from, to))
		},
		"_path_parse": func(call goja.FunctionCall) goja.Value {
			p := argString(vm, call, 0)
			dir, base := path.Split(p)
			ext := path.Ext(base)
			name := strings.TrimSuffix(base, ext)
			return toValue(vm, map[string]any{
				"root": "/", "dir": strings.TrimSuffix(dir, "/"), "base": base, "ext": ext, "name": name,
			})
		},
		"_path_format": func(call goja.FunctionCall) goja.Value {
			obj := arg(call, 0).ToObject(vm)
			dir := obj.Get("dir").String()
			base := obj.Get("base").String()
			if base == "" {
				name := obj.Get("name")
				ext := obj.Get("ext")
				if name != nil {
					base = name.String()
				}
				if ext != nil {
					base += ext.String()
				}
			}
			return toValue(vm, path.Join(dir, base))
		},
		"_path_sep":   "/",
		"_path_delimiter": ":",
	}
	for name, fn := range sets {
		if err := set(vm, name, fn); err != nil {
			return err
		}
	}
	return nil
}

// relativePath computes the POSIX-style relative path from from to to.
func relativePath(from, to string) string {
	from = path.Clean(from)
	to = path.Clean(to)
	if from == to {
		return ""
	}
	fromParts := strings.Split(strings.Trim(from, "/"), "/")
	toParts := strings.Split(strings.Trim(to, "/"), "/")

	common := 0
	for common < len(fromParts) && common < len(toParts) && fromParts[common] == toParts[common] {
		common++
	}

	var segs []string
	for i := common; i < len(fromParts); i++ {
		segs = append(segs, "..")
	}
	segs = append(segs, toParts[common:]...)
	if len(segs) == 0 {
		return "."
	}
	return path.Join(segs...)
}
