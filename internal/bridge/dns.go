// DNS resolution uses net.Resolver for the record types it supports
// directly (A/AAAA/ANY/CNAME/MX/NS/TXT/SRV). NAPTR, PTR, and SOA have no
// net.Resolver method, so those three go out over github.com/miekg/dns's
// raw Exchange client instead, grounded on
// sandia-minimega-minimega/src/protonuke/dns.go's SetQuestion/Exchange
// usage (that repo speaks the protocol directly rather than through the
// stdlib resolver).
package bridge

import (
	"context"
	"net"
	"sync"

	"github.com/dop251/goja"
	"github.com/miekg/dns"

	"github.com/emberrun/sandbox/internal/domain"
	"github.com/emberrun/sandbox/internal/errx"
)

func (b *Bridge) installDNS(vm *goja.Runtime) error {
	resolver := net.DefaultResolver

	sets := map[string]any{
		"_dns_lookup": func(call goja.FunctionCall) goja.Value {
			host := argString(vm, call, 0)
			cb := callback(call, 1)
			if cb == nil {
				throw(vm, errx.With(domain.ErrInvalidArgument, ": callback is required"))
			}
			runAsync(vm, b.ctx, cb, func() (goja.Value, error) {
				if err := b.checkHostAllowed(host, 0); err != nil {
					return nil, err
				}
				addrs, err := resolver.LookupHost(context.Background(), host)
				if err != nil {
					return nil, errx.Wrap(domain.ErrInternal, err)
				}
				if len(addrs) == 0 {
					return nil, errx.With(domain.ErrNotFound, ": no addresses for %s", host)
				}
				return toValue(vm, addrs[0]), nil
			})
			return goja.Undefined()
		},
		"_dns_resolve": func(call goja.FunctionCall) goja.Value {
			host := argString(vm, call, 0)
			recordType := argOptString(call, 1, "A")
			cb := callback(call, 2)
			if cb == nil {
				throw(vm, errx.With(domain.ErrInvalidArgument, ": callback is required"))
			}
			runAsync(vm, b.ctx, cb, func() (goja.Value, error) {
				if err := b.checkHostAllowed(host, 0); err != nil {
					return nil, err
				}
				records, err := resolveRecords(context.Background(), resolver, defaultDNSServers(), recordType, host)
				if err != nil {
					return nil, errx.Wrap(domain.ErrInternal, err)
				}
				return toValue(vm, records), nil
			})
			return goja.Undefined()
		},
		"_dns_reverse": func(call goja.FunctionCall) goja.Value {
			ip := argString(vm, call, 0)
			cb := callback(call, 1)
			if cb == nil {
				throw(vm, errx.With(domain.ErrInvalidArgument, ": callback is required"))
			}
			runAsync(vm, b.ctx, cb, func() (goja.Value, error) {
				names, err := resolver.LookupAddr(context.Background(), ip)
				if err != nil {
					return nil, errx.Wrap(domain.ErrInternal, err)
				}
				return toValue(vm, names), nil
			})
			return goja.Undefined()
		},

		"_dns_createResolver": func(call goja.FunctionCall) goja.Value {
			return toValue(vm, b.Resolvers.New(&dnsResolver{servers: defaultDNSServers()}))
		},
		"_dns_resolverSetServers": func(call goja.FunctionCall) goja.Value {
			handle := argInt(vm, call, 0)
			v, err := b.Resolvers.Get(handle)
			if err != nil {
				throw(vm, err)
			}
			raw := arg(call, 1).Export()
			list, ok := raw.([]any)
			if !ok {
				throw(vm, errx.With(domain.ErrInvalidArgument, ": servers must be an array"))
			}
			servers := make([]string, 0, len(list))
			for _, s := range list {
				servers = append(servers, withDNSPort(toString(s)))
			}
			r := v.(*dnsResolver)
			r.mu.Lock()
			r.servers = servers
			r.mu.Unlock()
			return goja.Undefined()
		},
		"_dns_resolverResolve": func(call goja.FunctionCall) goja.Value {
			handle := argInt(vm, call, 0)
			host := argString(vm, call, 1)
			recordType := argOptString(call, 2, "A")
			cb := callback(call, 3)
			if cb == nil {
				throw(vm, errx.With(domain.ErrInvalidArgument, ": callback is required"))
			}
			v, err := b.Resolvers.Get(handle)
			if err != nil {
				throw(vm, err)
			}
			r := v.(*dnsResolver)
			queryCtx, cancel := context.WithCancel(context.Background())
			r.mu.Lock()
			r.cancel = cancel
			servers := append([]string(nil), r.servers...)
			r.mu.Unlock()
			runAsync(vm, b.ctx, cb, func() (goja.Value, error) {
				defer cancel()
				if err := b.checkHostAllowed(host, 0); err != nil {
					return nil, err
				}
				records, err := resolveRecords(queryCtx, resolver, servers, recordType, host)
				if err != nil {
					return nil, errx.Wrap(domain.ErrInternal, err)
				}
				return toValue(vm, records), nil
			})
			return goja.Undefined()
		},
		"_dns_resolverCancel": func(call goja.FunctionCall) goja.Value {
			handle := argInt(vm, call, 0)
			v, err := b.Resolvers.Get(handle)
			if err != nil {
				throw(vm, err)
			}
			r := v.(*dnsResolver)
			r.mu.Lock()
			if r.cancel != nil {
				r.cancel()
			}
			r.mu.Unlock()
			return goja.Undefined()
		},
		"_dns_resolverClose": func(call goja.FunctionCall) goja.Value {
			handle := argInt(vm, call, 0)
			_, _ = b.Resolvers.Release(handle)
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

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// dnsResolver is the handle entry backing the guest-facing Resolver class
// (§4.2 "Resolver handle with custom servers/cancellation"): it carries its
// own server list, independent of the process-wide default, and the
// context.CancelFunc of whichever query is currently in flight so a guest
// can cancel it.
type dnsResolver struct {
	mu      sync.Mutex
	servers []string
	cancel  context.CancelFunc
}

func (r *dnsResolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

func defaultDNSServers() []string {
	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || conf == nil || len(conf.Servers) == 0 {
		return []string{"8.8.8.8:53"}
	}
	out := make([]string, 0, len(conf.Servers))
	for _, s := range conf.Servers {
		out = append(out, net.JoinHostPort(s, conf.Port))
	}
	return out
}

func withDNSPort(server string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(server, "53")
}

func resolveRecords(ctx context.Context, resolver *net.Resolver, servers []string, recordType, host string) (any, error) {
	switch recordType {
	case "A", "AAAA", "ANY":
		ips, err := resolver.LookupIP(ctx, "ip", host)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(ips))
		for _, ip := range ips {
			out = append(out, ip.String())
		}
		return out, nil
	case "CNAME":
		name, err := resolver.LookupCNAME(ctx, host)
		if err != nil {
			return nil, err
		}
		return []string{name}, nil
	case "MX":
		records, err := resolver.LookupMX(ctx, host)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(records))
		for _, r := range records {
			out = append(out, map[string]any{"exchange": r.Host, "priority": r.Pref})
		}
		return out, nil
	case "NS":
		records, err := resolver.LookupNS(ctx, host)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(records))
		for _, r := range records {
			out = append(out, r.Host)
		}
		return out, nil
	case "TXT":
		return resolver.LookupTXT(ctx, host)
	case "SRV":
		_, records, err := resolver.LookupSRV(ctx, "", "", host)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(records))
		for _, r := range records {
			out = append(out, map[string]any{"name": r.Target, "port": r.Port, "priority": r.Priority, "weight": r.Weight})
		}
		return out, nil
	case "NAPTR":
		return queryNAPTR(ctx, servers, host)
	case "PTR":
		return queryPTR(ctx, servers, host)
	case "SOA":
		return querySOA(ctx, servers, host)
	default:
		return nil, errx.With(domain.ErrInvalidArgument, ": unsupported DNS record type %q", recordType)
	}
}

func rawExchange(ctx context.Context, servers []string, qtype uint16, name string) (*dns.Msg, error) {
	if len(servers) == 0 {
		servers = defaultDNSServers()
	}
	c := new(dns.Client)
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)

	var lastErr error
	for _, server := range servers {
		in, _, err := c.ExchangeContext(ctx, m, server)
		if err != nil {
			lastErr = err
			continue
		}
		if in.Rcode != dns.RcodeSuccess {
			lastErr = errx.With(domain.ErrNotFound, ": DNS server returned rcode %d for %s", in.Rcode, name)
			continue
		}
		return in, nil
	}
	if lastErr == nil {
		lastErr = errx.With(domain.ErrInternal, ": no DNS servers configured")
	}
	return nil, lastErr
}

func queryNAPTR(ctx context.Context, servers []string, host string) (any, error) {
	in, err := rawExchange(ctx, servers, dns.TypeNAPTR, host)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(in.Answer))
	for _, rr := range in.Answer {
		r, ok := rr.(*dns.NAPTR)
		if !ok {
			continue
		}
		out = append(out, map[string]any{
			"order":       r.Order,
			"preference":  r.Preference,
			"flags":       r.Flags,
			"service":     r.Service,
			"regexp":      r.Regexp,
			"replacement": r.Replacement,
		})
	}
	return out, nil
}

func queryPTR(ctx context.Context, servers []string, ip string) (any, error) {
	arpa, err := dns.ReverseAddr(ip)
	if err != nil {
		return nil, errx.Wrap(domain.ErrInvalidArgument, err)
	}
	in, err := rawExchange(ctx, servers, dns.TypePTR, arpa)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(in.Answer))
	for _, rr := range in.Answer {
		r, ok := rr.(*dns.PTR)
		if !ok {
			continue
		}
		out = append(out, r.Ptr)
	}
	return out, nil
}

func querySOA(ctx context.Context, servers []string, host string) (any, error) {
	in, err := rawExchange(ctx, servers, dns.TypeSOA, host)
	if err != nil {
		return nil, err
	}
	for _, rr := range in.Answer {
		r, ok := rr.(*dns.SOA)
		if !ok {
			continue
		}
		return map[string]any{
			"nsname":     r.Ns,
			"hostmaster": r.Mbox,
			"serial":     r.Serial,
			"refresh":    r.Refresh,
			"retry":      r.Retry,
			"expire":     r.Expire,
			"minttl":     r.Minttl,
		}, nil
	}
	return nil, errx.With(domain.ErrNotFound, ": no SOA record for %s", host)
}
