package bridge

import (
	"crypto/rand"

	"github.com/dop251/goja"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"

	"github.com/emberrun/sandbox/internal/domain"
	"github.com/emberrun/sandbox/internal/errx"
)

// installRandom registers cryptographically secure randomness and key
// derivation (§4.2 "Randomness & KDF"), grounded on internal/secrets'
// use of golang.org/x/crypto for key stretching.
func (b *Bridge) installRandom(vm *goja.Runtime) error {
	sets := map[string]any{
		"_crypto_randomBytes": func(call goja.FunctionCall) goja.Value {
			n := argInt(vm, call, 0)
			if n < 0 {
				throw(vm, errx.With(domain.ErrInvalidArgument, ": size must be non-negative"))
			}
			buf := make([]byte, n)
			if _, err := rand.Read(buf); err != nil {
				throw(vm, errx.Wrap(domain.ErrInternal, err))
			}
			return toValue(vm, buf)
		},
		"_crypto_randomInt": func(call goja.FunctionCall) goja.Value {
			lo := argInt(vm, call, 0)
			hi := argInt(vm, call, 1)
			if hi <= lo {
				throw(vm, errx.With(domain.ErrInvalidArgument, ": max must be greater than min"))
			}
			n, err := secureRandomInt(hi - lo)
			if err != nil {
				throw(vm, errx.Wrap(domain.ErrInternal, err))
			}
			return toValue(vm, lo+n)
		},
		"_crypto_randomUUID": func(call goja.FunctionCall) goja.Value {
			u, err := randomUUID()
			if err != nil {
				throw(vm, errx.Wrap(domain.ErrInternal, err))
			}
			return toValue(vm, u)
		},
		"_crypto_pbkdf2": func(call goja.FunctionCall) goja.Value {
			password := argBytes(vm, call, 0, "")
			salt := argBytes(vm, call, 1, "")
			iterations := argInt(vm, call, 2)
			keylen := argInt(vm, call, 3)
			digest := argOptString(call, 4, "sha256")
			h, err := hmacNewFunc(digest)
			if err != nil {
				throw(vm, err)
			}
			derived := pbkdf2.Key(password, salt, iterations, keylen, h)
			return toValue(vm, derived)
		},
		"_crypto_scrypt": func(call goja.FunctionCall) goja.Value {
			password := argBytes(vm, call, 0, "")
			salt := argBytes(vm, call, 1, "")
			keylen := argInt(vm, call, 2)
			derived, err := scrypt.Key(password, salt, 16384, 8, 1, keylen)
			if err != nil {
				throw(vm, errx.Wrap(domain.ErrInvalidArgument, err))
			}
			return toValue(vm, derived)
		},
	}
	for name, fn := range sets {
		if err := set(vm, name, fn); err != nil {
			return err
		}
	}
	return nil
}

func secureRandomInt(n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return 0, err
	}
	var v uint64
	for _, byt := range buf {
		v = v<<8 | uint64(byt)
	}
	return int(v % uint64(n)), nil
}

func randomUUID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	buf[6] = (buf[6] & 0x0f) | 0x40
	buf[8] = (buf[8] & 0x3f) | 0x80
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 36)
	dashes := map[int]bool{8: true, 13: true, 18: true, 23: true}
	si, oi := 0, 0
	for oi < 36 {
		if dashes[oi] {
			out[oi] = '-'
			oi++
			continue
		}
		out[oi] = hexdigits[buf[si]>>4]
		out[oi+1] = hexdigits[buf[si]&0x0f]
		si++
		oi += 2
	}
	return string(out), nil
}
