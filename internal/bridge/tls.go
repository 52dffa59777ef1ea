// Grounded on net.go's policy-gated dialer: this file only adds the
// metadata surface §4.2 calls out beyond plain net.connect ("TLS
// additionally exposes authorized, cipher, protocol, peerCertificate, and
// getCACertificates(store)"). Connection setup itself stays in
// installNet/_net_connect; _net_connect's useTLS argument already dials
// through crypto/tls, it was just never reachable from guest code.
package bridge

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"os"

	"github.com/dop251/goja"

	"github.com/emberrun/sandbox/internal/domain"
	"github.com/emberrun/sandbox/internal/errx"
)

func (b *Bridge) installTLS(vm *goja.Runtime) error {
	sets := map[string]any{
		"_tls_authorized": func(call goja.FunctionCall) goja.Value {
			sc, err := b.socketFor(argInt(vm, call, 0))
			if err != nil {
				throw(vm, err)
			}
			if sc.tlsConn == nil {
				throw(vm, errx.With(domain.ErrInvalidArgument, ": handle is not a TLS socket"))
			}
			state := sc.tlsConn.ConnectionState()
			return toValue(vm, len(state.VerifiedChains) > 0)
		},
		"_tls_cipher": func(call goja.FunctionCall) goja.Value {
			sc, err := b.socketFor(argInt(vm, call, 0))
			if err != nil {
				throw(vm, err)
			}
			if sc.tlsConn == nil {
				throw(vm, errx.With(domain.ErrInvalidArgument, ": handle is not a TLS socket"))
			}
			state := sc.tlsConn.ConnectionState()
			return toValue(vm, map[string]any{
				"name":    tls.CipherSuiteName(state.CipherSuite),
				"version": tlsVersionName(state.Version),
			})
		},
		"_tls_protocol": func(call goja.FunctionCall) goja.Value {
			sc, err := b.socketFor(argInt(vm, call, 0))
			if err != nil {
				throw(vm, err)
			}
			if sc.tlsConn == nil {
				throw(vm, errx.With(domain.ErrInvalidArgument, ": handle is not a TLS socket"))
			}
			return toValue(vm, tlsVersionName(sc.tlsConn.ConnectionState().Version))
		},
		"_tls_peerCertificate": func(call goja.FunctionCall) goja.Value {
			sc, err := b.socketFor(argInt(vm, call, 0))
			if err != nil {
				throw(vm, err)
			}
			if sc.tlsConn == nil {
				throw(vm, errx.With(domain.ErrInvalidArgument, ": handle is not a TLS socket"))
			}
			certs := sc.tlsConn.ConnectionState().PeerCertificates
			if len(certs) == 0 {
				return goja.Null()
			}
			return toValue(vm, encodeCertificate(certs[0]))
		},
		"_tls_getCACertificates": func(call goja.FunctionCall) goja.Value {
			store := argOptString(call, 0, "system")
			certs, cerr := systemCACertificates(store)
			if cerr != nil {
				throw(vm, cerr)
			}
			return toValue(vm, certs)
		},
	}
	for name, fn := range sets {
		if err := set(vm, name, fn); err != nil {
			return err
		}
	}
	return nil
}

func tlsVersionName(v uint16) string {
	switch v {
	case tls.VersionTLS10:
		return "TLSv1"
	case tls.VersionTLS11:
		return "TLSv1.1"
	case tls.VersionTLS12:
		return "TLSv1.2"
	case tls.VersionTLS13:
		return "TLSv1.3"
	default:
		return "unknown"
	}
}

func encodeCertificate(cert *x509.Certificate) map[string]any {
	sum := sha256.Sum256(cert.Raw)
	return map[string]any{
		"subject":        cert.Subject.String(),
		"issuer":         cert.Issuer.String(),
		"valid_from":     cert.NotBefore.UTC().Format("Jan 2 15:04:05 2006 GMT"),
		"valid_to":       cert.NotAfter.UTC().Format("Jan 2 15:04:05 2006 GMT"),
		"serialNumber":   cert.SerialNumber.Text(16),
		"fingerprint256": hex.EncodeToString(sum[:]),
		"raw":            pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}),
	}
}

// systemCAPaths are the common locations for a distro's CA bundle. Go's
// x509.CertPool gives no way to enumerate the certificates it loaded
// (Subjects() is deprecated and only returns raw DER names), so
// getCACertificates reads the bundle file directly instead of going
// through x509.SystemCertPool.
var systemCAPaths = []string{
	"/etc/ssl/certs/ca-certificates.crt", // Debian/Ubuntu
	"/etc/pki/tls/certs/ca-bundle.crt",   // RHEL/Fedora
	"/etc/ssl/ca-bundle.pem",             // openSUSE
	"/etc/ssl/cert.pem",                  // Alpine/BSD
}

func systemCACertificates(store string) ([]map[string]any, error) {
	for _, path := range systemCAPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		return parsePEMCertificates(data), nil
	}
	return nil, errx.With(domain.ErrNotFound, ": no system CA bundle found for store %q", store)
}

func parsePEMCertificates(data []byte) []map[string]any {
	var out []map[string]any
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			continue
		}
		out = append(out, encodeCertificate(cert))
	}
	return out
}
