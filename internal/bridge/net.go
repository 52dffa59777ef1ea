// Grounded on internal/networkpolicy's host/CIDR
// match idiom (see internal/policy/decider.go, which carries that idiom
// forward) gating a plain net.Dial, since no sandboxed network transport
// library exists in the corpus beyond stdlib net/tls.
package bridge

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/dop251/goja"

	"github.com/emberrun/sandbox/internal/domain"
	"github.com/emberrun/sandbox/internal/errx"
)

// checkHostAllowed resolves host and asks the policy decider whether the
// connection may proceed, denying before any socket is opened.
func (b *Bridge) checkHostAllowed(host string, port int) error {
	if b.Policy == nil {
		return errx.With(domain.ErrPermissionDenied, ": no network policy configured")
	}
	var resolved net.IP
	if ip := net.ParseIP(host); ip == nil {
		ips, err := net.LookupIP(host)
		if err == nil && len(ips) > 0 {
			resolved = ips[0]
		}
	}
	return b.Policy.Allow(host, resolved, port)
}

type socketConn struct {
	conn    net.Conn
	tlsConn *tls.Conn
}

func (s *socketConn) Close() error { return s.conn.Close() }

// installNet registers policy-gated TCP/TLS sockets (§4.2 "Network"):
// connect returns a handle, read/write/end/destroy operate on it.
func (b *Bridge) installNet(vm *goja.Runtime) error {
	sets := map[string]any{
		"_net_connect": func(call goja.FunctionCall) goja.Value {
			host := argString(vm, call, 0)
			port := argInt(vm, call, 1)
			useTLS := false
			if len(call.Arguments) > 2 {
				useTLS = arg(call, 2).ToBoolean()
			}
			cb := callback(call, 3)
			if cb == nil {
				throw(vm, errx.With(domain.ErrInvalidArgument, ": callback is required"))
			}
			runAsync(vm, b.ctx, cb, func() (goja.Value, error) {
				if err := b.checkHostAllowed(host, port); err != nil {
					return nil, err
				}
				addr := net.JoinHostPort(host, itoa(port))
				d := net.Dialer{Timeout: 10 * time.Second}
				var conn net.Conn
				var tconn *tls.Conn
				var err error
				if useTLS {
					tconn, err = tls.DialWithDialer(&d, "tcp", addr, &tls.Config{ServerName: host})
					conn = tconn
				} else {
					conn, err = d.Dial("tcp", addr)
				}
				if err != nil {
					return nil, errx.Wrap(domain.ErrInternal, err)
				}
				return toValue(vm, b.Sockets.New(&socketConn{conn: conn, tlsConn: tconn})), nil
			})
			return goja.Undefined()
		},
		"_net_write": func(call goja.FunctionCall) goja.Value {
			handle := argInt(vm, call, 0)
			data := argBytes(vm, call, 1, "")
			cb := callback(call, 2)
			sc, err := b.socketFor(handle)
			if err != nil {
				throw(vm, err)
			}
			if cb == nil {
				if _, werr := sc.conn.Write(data); werr != nil {
					throw(vm, errx.Wrap(domain.ErrInternal, werr))
				}
				return goja.Undefined()
			}
			runAsync(vm, b.ctx, cb, func() (goja.Value, error) {
				if _, werr := sc.conn.Write(data); werr != nil {
					return nil, errx.Wrap(domain.ErrInternal, werr)
				}
				return goja.Undefined(), nil
			})
			return goja.Undefined()
		},
		"_net_read": func(call goja.FunctionCall) goja.Value {
			handle := argInt(vm, call, 0)
			maxBytes := argOptInt(call, 1, 65536)
			cb := callback(call, 2)
			sc, err := b.socketFor(handle)
			if err != nil {
				throw(vm, err)
			}
			if cb == nil {
				throw(vm, errx.With(domain.ErrInvalidArgument, ": callback is required"))
			}
			runAsync(vm, b.ctx, cb, func() (goja.Value, error) {
				buf := make([]byte, maxBytes)
				n, rerr := sc.conn.Read(buf)
				if rerr != nil && n == 0 {
					return nil, errx.Wrap(domain.ErrInternal, rerr)
				}
				return toValue(vm, buf[:n]), nil
			})
			return goja.Undefined()
		},
		"_net_end": func(call goja.FunctionCall) goja.Value {
			handle := argInt(vm, call, 0)
			v, err := b.Sockets.Release(handle)
			if err != nil {
				throw(vm, err)
			}
			sc := v.(*socketConn)
			sc.conn.Close()
			return goja.Undefined()
		},
		"_net_destroy": func(call goja.FunctionCall) goja.Value {
			handle := argInt(vm, call, 0)
			v, err := b.Sockets.Release(handle)
			if err != nil {
				return goja.Undefined()
			}
			sc := v.(*socketConn)
			sc.conn.Close()
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

func (b *Bridge) socketFor(handle int) (*socketConn, error) {
	v, err := b.Sockets.Get(handle)
	if err != nil {
		return nil, err
	}
	return v.(*socketConn), nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
