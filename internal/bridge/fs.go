package bridge

import (
	"os"
	"time"

	"github.com/dop251/goja"

	"github.com/emberrun/sandbox/internal/domain"
	"github.com/emberrun/sandbox/internal/errx"
	"github.com/emberrun/sandbox/internal/vfs"
)

// installFS registers the §4.1 virtual filesystem surface, flattened under
// "_fs_*" names for the bootstrap script to compose into the guest's "fs"
// module shape.
func (b *Bridge) installFS(vm *goja.Runtime) error {
	sets := map[string]any{
		"_fs_readFileSync":  b.fsReadFileSync(vm),
		"_fs_readFile":      b.fsReadFile(vm),
		"_fs_writeFileSync": b.fsWriteFileSync(vm),
		"_fs_appendFileSync": b.fsAppendFileSync(vm),
		"_fs_readdirSync":   b.fsReaddirSync(vm),
		"_fs_statSync":      b.fsStatSync(vm),
		"_fs_lstatSync":     b.fsStatSync(vm),
		"_fs_existsSync":    b.fsExistsSync(vm),
		"_fs_accessSync":    b.fsAccessSync(vm),
		"_fs_mkdirSync":     b.fsMkdirSync(vm),
		"_fs_unlinkSync":    b.fsUnlinkSync(vm),
		"_fs_rmdirSync":     b.fsRmdirSync(vm),
		"_fs_renameSync":    b.fsRenameSync(vm),
		"_fs_copyFileSync":  b.fsCopyFileSync(vm),
		"_fs_chmodSync":     b.fsChmodSync(vm),
		"_fs_chownSync":     b.fsChownSync(vm),
		"_fs_truncateSync":  b.fsTruncateSync(vm),
		"_fs_openSync":      b.fsOpenSync(vm),
		"_fs_readSync":      b.fsReadSync(vm),
		"_fs_writeSync":     b.fsWriteSync(vm),
		"_fs_closeSync":     b.fsCloseSync(vm),
		"_fs_createReadStream":  b.fsStreamUnsupported(vm),
		"_fs_createWriteStream": b.fsStreamUnsupported(vm),
	}
	for name, fn := range sets {
		if err := set(vm, name, fn); err != nil {
			return err
		}
	}
	return nil
}

func statRecord(vm *goja.Runtime, info vfs.FileInfo) goja.Value {
	obj := vm.NewObject()
	_ = obj.Set("isFile", !info.IsDir && !info.IsSymlink)
	_ = obj.Set("isDirectory", info.IsDir)
	_ = obj.Set("isSymbolicLink", info.IsSymlink)
	_ = obj.Set("size", info.Size)
	_ = obj.Set("mode", uint32(info.Mode.Perm()))
	_ = obj.Set("mtime", info.ModTime.UTC().Format(time.RFC3339Nano))
	_ = obj.Set("atime", info.AccTime.UTC().Format(time.RFC3339Nano))
	_ = obj.Set("ctime", info.ChangeTime.UTC().Format(time.RFC3339Nano))
	return obj
}

func (b *Bridge) fsReadFileSync(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		path := argString(vm, call, 0)
		encoding := argOptString(call, 1, "")
		data, err := b.FS.ReadFile(path)
		if err != nil {
			throw(vm, err)
		}
		out, eerr := encodeBytes(data, encoding)
		if eerr != nil {
			throw(vm, eerr)
		}
		return toValue(vm, out)
	}
}

// fsReadFile is the async (callback-style) counterpart, reading off the
// goroutine pool and delivering the result back onto the driving goroutine
// (§5 "suspension points": async file I/O).
func (b *Bridge) fsReadFile(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		path := argString(vm, call, 0)
		encoding := argOptString(call, 1, "")
		cb := callback(call, 2)
		if cb == nil {
			cb = callback(call, 1)
			encoding = ""
		}
		runAsync(vm, b.ctx, cb, func() (goja.Value, error) {
			data, err := b.FS.ReadFile(path)
			if err != nil {
				return nil, err
			}
			out, eerr := encodeBytes(data, encoding)
			if eerr != nil {
				return nil, eerr
			}
			return toValue(vm, out), nil
		})
		return goja.Undefined()
	}
}

func (b *Bridge) fsWriteFileSync(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		path := argString(vm, call, 0)
		data := argBytes(vm, call, 1, argOptString(call, 2, ""))
		if err := b.FS.WriteFile(path, data, 0o644); err != nil {
			throw(vm, err)
		}
		return goja.Undefined()
	}
}

func (b *Bridge) fsAppendFileSync(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		path := argString(vm, call, 0)
		data := argBytes(vm, call, 1, argOptString(call, 2, ""))
		if err := b.FS.AppendFile(path, data, 0o644); err != nil {
			throw(vm, err)
		}
		return goja.Undefined()
	}
}

func (b *Bridge) fsReaddirSync(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		path := argString(vm, call, 0)
		entries, err := b.FS.ReadDir(path)
		if err != nil {
			throw(vm, err)
		}
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name
		}
		return toValue(vm, names)
	}
}

func (b *Bridge) fsStatSync(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		path := argString(vm, call, 0)
		info, err := b.FS.Stat(path)
		if err != nil {
			throw(vm, err)
		}
		return statRecord(vm, info)
	}
}

func (b *Bridge) fsExistsSync(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		path := argString(vm, call, 0)
		return toValue(vm, b.FS.Exists(path))
	}
}

func (b *Bridge) fsAccessSync(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		path := argString(vm, call, 0)
		if !b.FS.Exists(path) {
			throw(vm, errx.With(domain.ErrNotFound, ": %s", path))
		}
		return goja.Undefined()
	}
}

func (b *Bridge) fsMkdirSync(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		path := argString(vm, call, 0)
		if err := b.FS.Mkdir(path, 0o755); err != nil {
			throw(vm, err)
		}
		return goja.Undefined()
	}
}

func (b *Bridge) fsUnlinkSync(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		path := argString(vm, call, 0)
		if err := b.FS.Unlink(path); err != nil {
			throw(vm, err)
		}
		return goja.Undefined()
	}
}

func (b *Bridge) fsRmdirSync(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		path := argString(vm, call, 0)
		if err := b.FS.Rmdir(path); err != nil {
			throw(vm, err)
		}
		return goja.Undefined()
	}
}

func (b *Bridge) fsRenameSync(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		oldPath := argString(vm, call, 0)
		newPath := argString(vm, call, 1)
		if err := b.FS.Rename(oldPath, newPath); err != nil {
			throw(vm, err)
		}
		return goja.Undefined()
	}
}

func (b *Bridge) fsCopyFileSync(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		src := argString(vm, call, 0)
		dst := argString(vm, call, 1)
		if err := b.FS.CopyFile(src, dst); err != nil {
			throw(vm, err)
		}
		return goja.Undefined()
	}
}

func (b *Bridge) fsChmodSync(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		path := argString(vm, call, 0)
		mode := argInt(vm, call, 1)
		if err := b.FS.Chmod(path, os.FileMode(mode)); err != nil {
			throw(vm, err)
		}
		return goja.Undefined()
	}
}

func (b *Bridge) fsChownSync(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		path := argString(vm, call, 0)
		uid := argInt(vm, call, 1)
		gid := argInt(vm, call, 2)
		if err := b.FS.Chown(path, uid, gid); err != nil {
			throw(vm, err)
		}
		return goja.Undefined()
	}
}

func (b *Bridge) fsTruncateSync(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		path := argString(vm, call, 0)
		size := int64(argOptInt(call, 1, 0))
		if err := b.FS.Truncate(path, size); err != nil {
			throw(vm, err)
		}
		return goja.Undefined()
	}
}

func (b *Bridge) fsOpenSync(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		path := argString(vm, call, 0)
		flags := parseOpenFlags(argOptString(call, 1, "r"))
		fd, err := b.FDs.Open(b.FS, path, flags, 0o644)
		if err != nil {
			throw(vm, err)
		}
		return toValue(vm, fd)
	}
}

func parseOpenFlags(mode string) int {
	switch mode {
	case "r":
		return os.O_RDONLY
	case "w":
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case "a":
		return os.O_WRONLY | os.O_CREATE | os.O_APPEND
	case "r+":
		return os.O_RDWR
	case "w+":
		return os.O_RDWR | os.O_CREATE | os.O_TRUNC
	case "a+":
		return os.O_RDWR | os.O_CREATE | os.O_APPEND
	default:
		return os.O_RDONLY
	}
}

func (b *Bridge) fsReadSync(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fd := argInt(vm, call, 0)
		length := argOptInt(call, 1, 4096)
		buf := make([]byte, length)
		n, err := b.FDs.Read(fd, buf)
		if err != nil {
			throw(vm, err)
		}
		return toValue(vm, map[string]any{"bytesRead": n, "buffer": buf[:n]})
	}
}

func (b *Bridge) fsWriteSync(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fd := argInt(vm, call, 0)
		data := argBytes(vm, call, 1, "")
		n, err := b.FDs.Write(fd, data)
		if err != nil {
			throw(vm, err)
		}
		return toValue(vm, n)
	}
}

func (b *Bridge) fsCloseSync(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fd := argInt(vm, call, 0)
		if err := b.FDs.Close(fd); err != nil {
			throw(vm, err)
		}
		return goja.Undefined()
	}
}

// fsStreamUnsupported backs createReadStream/createWriteStream, explicitly
// refused per §6.4: streams are not modeled across the bridge boundary.
func (b *Bridge) fsStreamUnsupported(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		throw(vm, errx.With(domain.ErrInvalidArgument, ": not supported in isolated environment"))
		return goja.Undefined()
	}
}
