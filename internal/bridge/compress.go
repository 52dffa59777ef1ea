// Grounded on internal/observability/logsink's batch compression
// (gzip framing) for the stream-vs-oneshot split; generalised here to the
// guest-facing zlib/gzip/brotli surface required by §4.2 "Compression".
package bridge

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/dop251/goja"

	"github.com/emberrun/sandbox/internal/domain"
	"github.com/emberrun/sandbox/internal/errx"
)

func (b *Bridge) installCompress(vm *goja.Runtime) error {
	sets := map[string]any{
		"_zlib_deflateSync": func(call goja.FunctionCall) goja.Value {
			data := argBytes(vm, call, 0, "")
			out, err := deflate(data)
			if err != nil {
				throw(vm, errx.Wrap(domain.ErrInternal, err))
			}
			return toValue(vm, out)
		},
		"_zlib_inflateSync": func(call goja.FunctionCall) goja.Value {
			data := argBytes(vm, call, 0, "")
			out, err := inflate(data)
			if err != nil {
				throw(vm, errx.Wrap(domain.ErrInvalidArgument, err))
			}
			return toValue(vm, out)
		},
		"_zlib_deflateRawSync": func(call goja.FunctionCall) goja.Value {
			data := argBytes(vm, call, 0, "")
			out, err := deflateRaw(data)
			if err != nil {
				throw(vm, errx.Wrap(domain.ErrInternal, err))
			}
			return toValue(vm, out)
		},
		"_zlib_inflateRawSync": func(call goja.FunctionCall) goja.Value {
			data := argBytes(vm, call, 0, "")
			out, err := inflateRaw(data)
			if err != nil {
				throw(vm, errx.Wrap(domain.ErrInvalidArgument, err))
			}
			return toValue(vm, out)
		},
		"_zlib_gzipSync": func(call goja.FunctionCall) goja.Value {
			data := argBytes(vm, call, 0, "")
			out, err := gzipCompress(data)
			if err != nil {
				throw(vm, errx.Wrap(domain.ErrInternal, err))
			}
			return toValue(vm, out)
		},
		"_zlib_gunzipSync": func(call goja.FunctionCall) goja.Value {
			data := argBytes(vm, call, 0, "")
			out, err := gunzip(data)
			if err != nil {
				throw(vm, errx.Wrap(domain.ErrInvalidArgument, err))
			}
			return toValue(vm, out)
		},
		"_zlib_brotliCompressSync": func(call goja.FunctionCall) goja.Value {
			data := argBytes(vm, call, 0, "")
			out, err := brotliCompress(data)
			if err != nil {
				throw(vm, errx.Wrap(domain.ErrInternal, err))
			}
			return toValue(vm, out)
		},
		"_zlib_brotliDecompressSync": func(call goja.FunctionCall) goja.Value {
			data := argBytes(vm, call, 0, "")
			out, err := brotliDecompress(data)
			if err != nil {
				throw(vm, errx.Wrap(domain.ErrInvalidArgument, err))
			}
			return toValue(vm, out)
		},
		"_zlib_deflate":    b.asyncCompress(vm, deflate),
		"_zlib_inflate":    b.asyncCompress(vm, inflate),
		"_zlib_deflateRaw": b.asyncCompress(vm, deflateRaw),
		"_zlib_inflateRaw": b.asyncCompress(vm, inflateRaw),
		"_zlib_gzip":       b.asyncCompress(vm, gzipCompress),
		"_zlib_gunzip":     b.asyncCompress(vm, gunzip),

		"_zlib_createStream": func(call goja.FunctionCall) goja.Value {
			mode := argString(vm, call, 0)
			if !validStreamMode(mode) {
				throw(vm, errx.With(domain.ErrInvalidArgument, ": unknown compression stream mode %q", mode))
			}
			return toValue(vm, b.Streams.New(&compressStream{mode: mode}))
		},
		"_zlib_streamWrite": func(call goja.FunctionCall) goja.Value {
			handle := argInt(vm, call, 0)
			data := argBytes(vm, call, 1, argOptString(call, 2, ""))
			cs, err := b.streamFor(handle)
			if err != nil {
				throw(vm, err)
			}
			cs.buf.Write(data)
			return toValue(vm, true)
		},
		"_zlib_streamFlush": func(call goja.FunctionCall) goja.Value {
			handle := argInt(vm, call, 0)
			cs, err := b.streamFor(handle)
			if err != nil {
				throw(vm, err)
			}
			// A flush is only a hint to emit whatever already decodes
			// cleanly; an error here (typically incomplete input) is
			// swallowed rather than reported, since the stream may still
			// be completed successfully by a later write.
			if out, perr := cs.process(); perr == nil && len(out) > 0 {
				cs.emitData(vm, out)
			}
			return goja.Undefined()
		},
		"_zlib_streamEnd": func(call goja.FunctionCall) goja.Value {
			handle := argInt(vm, call, 0)
			if chunk := arg(call, 1); !goja.IsUndefined(chunk) && !goja.IsNull(chunk) {
				cs, err := b.streamFor(handle)
				if err == nil {
					cs.buf.Write(argBytes(vm, call, 1, ""))
				}
			}
			v, err := b.Streams.Release(handle)
			if err != nil {
				throw(vm, err)
			}
			cs := v.(*compressStream)
			out, perr := cs.process()
			if perr != nil {
				cs.emitError(vm, errx.Wrap(domain.ErrInvalidArgument, perr))
				return goja.Undefined()
			}
			if len(out) > 0 {
				cs.emitData(vm, out)
			}
			cs.emitEnd(vm)
			return goja.Undefined()
		},
		"_zlib_streamOnData": func(call goja.FunctionCall) goja.Value {
			cs, err := b.streamFor(argInt(vm, call, 0))
			if err != nil {
				throw(vm, err)
			}
			cs.onData = callback(call, 1)
			return goja.Undefined()
		},
		"_zlib_streamOnEnd": func(call goja.FunctionCall) goja.Value {
			cs, err := b.streamFor(argInt(vm, call, 0))
			if err != nil {
				throw(vm, err)
			}
			cs.onEnd = callback(call, 1)
			return goja.Undefined()
		},
		"_zlib_streamOnError": func(call goja.FunctionCall) goja.Value {
			cs, err := b.streamFor(argInt(vm, call, 0))
			if err != nil {
				throw(vm, err)
			}
			cs.onError = callback(call, 1)
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

func (b *Bridge) asyncCompress(vm *goja.Runtime, work func([]byte) ([]byte, error)) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		data := argBytes(vm, call, 0, "")
		cb := callback(call, 1)
		if cb == nil {
			throw(vm, errx.With(domain.ErrInvalidArgument, ": callback is required"))
		}
		runAsync(vm, b.ctx, cb, func() (goja.Value, error) {
			out, err := work(data)
			if err != nil {
				return nil, errx.Wrap(domain.ErrInvalidArgument, err)
			}
			return toValue(vm, out), nil
		})
		return goja.Undefined()
	}
}

func (b *Bridge) streamFor(handle int) (*compressStream, error) {
	v, err := b.Streams.Get(handle)
	if err != nil {
		return nil, err
	}
	return v.(*compressStream), nil
}

// compressStream is the handle-table entry for a stateful compression or
// decompression stream (§4.2 "Compression"), used by guest-side stream
// shims (fs streams aside, which remain unsupported per §6.4). Writes
// accumulate into buf; compress/decompress passes run over the full
// buffered input, since none of the codecs used here (stdlib flate/gzip/
// zlib, andybalholm/brotli) expose resumable decoding across partial
// chunk boundaries the way a true incremental transform would.
type compressStream struct {
	mode string
	buf  bytes.Buffer

	onData  goja.Callable
	onEnd   goja.Callable
	onError goja.Callable
}

func validStreamMode(mode string) bool {
	switch mode {
	case "deflate", "inflate", "deflateRaw", "inflateRaw", "gzip", "gunzip", "brotliCompress", "brotliDecompress":
		return true
	default:
		return false
	}
}

func (cs *compressStream) process() ([]byte, error) {
	data := cs.buf.Bytes()
	switch cs.mode {
	case "deflate":
		return deflate(data)
	case "inflate":
		return inflate(data)
	case "deflateRaw":
		return deflateRaw(data)
	case "inflateRaw":
		return inflateRaw(data)
	case "gzip":
		return gzipCompress(data)
	case "gunzip":
		return gunzip(data)
	case "brotliCompress":
		return brotliCompress(data)
	case "brotliDecompress":
		return brotliDecompress(data)
	default:
		return nil, errx.With(domain.ErrInternal, ": unreachable stream mode %q", cs.mode)
	}
}

func (cs *compressStream) emitData(vm *goja.Runtime, out []byte) {
	if cs.onData != nil {
		_, _ = cs.onData(goja.Undefined(), toValue(vm, out))
	}
}

func (cs *compressStream) emitEnd(vm *goja.Runtime) {
	if cs.onEnd != nil {
		_, _ = cs.onEnd(goja.Undefined())
	}
}

func (cs *compressStream) emitError(vm *goja.Runtime, err error) {
	if cs.onError != nil {
		_, _ = cs.onError(goja.Undefined(), toValue(vm, toJSError(vm, err)))
	}
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// deflateRaw/inflateRaw are the headerless counterpart to deflate/inflate
// (§4.2 "raw deflate/inflate"): no zlib 2-byte header or Adler-32 trailer.
func deflateRaw(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflateRaw(data []byte) ([]byte, error) {
	fr := flate.NewReader(bytes.NewReader(data))
	defer fr.Close()
	return io.ReadAll(fr)
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzip(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gr.Close()
	return io.ReadAll(gr)
}

func brotliCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	if _, err := bw.Write(data); err != nil {
		return nil, err
	}
	if err := bw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func brotliDecompress(data []byte) ([]byte, error) {
	br := brotli.NewReader(bytes.NewReader(data))
	return io.ReadAll(br)
}
