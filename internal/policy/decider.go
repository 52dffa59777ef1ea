// Package policy evaluates the ordered allow/deny rule set that governs a
// guest's outbound network access (§4.7). It is grounded on
// internal/networkpolicy (the host-match/CIDR-match helpers in
// internal/networkpolicy/egress.go), rewritten against the ordered,
// priority-ranked rule model in internal/domain/policy.go rather than a
// single EgressRules slice.
package policy

import (
	"net"
	"strings"

	"github.com/emberrun/sandbox/internal/domain"
	"github.com/emberrun/sandbox/internal/errx"
)

// Decider evaluates a project's network policy against connection attempts.
// Immutable once constructed; safe for concurrent use by many invocations.
type Decider struct {
	policy domain.NetworkPolicy
}

// New returns a Decider for policy. A zero-value NetworkPolicy (no rules at
// all) evaluates to default-deny for every destination (§8 "Network
// default-deny").
func New(p domain.NetworkPolicy) *Decider {
	return &Decider{policy: p}
}

// privateRanges are the blocks that are always denied unless an explicit
// allow rule names them (§4.7).
var privateRanges = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"127.0.0.0/8",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic("policy: invalid built-in CIDR " + c)
		}
		out = append(out, n)
	}
	return out
}

func isPrivateOrLoopback(ip net.IP) bool {
	for _, n := range privateRanges {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Allow decides whether a connection to (host, port) is permitted. host may
// be a literal IP or a hostname; when it is a hostname the caller is
// expected to have already resolved it and pass the resolved IP in
// resolvedIP (pass nil for the pre-DNS check named in §4.7 step 5, which
// only evaluates host/port rules, not CIDR rules).
func (d *Decider) Allow(host string, resolvedIP net.IP, port int) error {
	ip := net.ParseIP(host)
	if ip == nil {
		ip = resolvedIP
	}

	if ip != nil && isPrivateOrLoopback(ip) && !d.explicitlyAllowsPrivate(host, ip, port) {
		return errx.With(domain.ErrPermissionDenied, ": connections to private/loopback ranges are denied by default")
	}

	if rule, ok := firstMatch(d.policy.GlobalRules, host, ip, port); ok {
		return actionToErr(rule.Action)
	}
	if rule, ok := firstMatch(d.policy.ProjectRules, host, ip, port); ok {
		return actionToErr(rule.Action)
	}
	return errx.With(domain.ErrPermissionDenied, ": no policy rule matches %s:%d, default deny", host, port)
}

// explicitlyAllowsPrivate reports whether some allow rule - global or
// project - names this exact private destination, overriding the built-in
// private-range deny. Only host and CIDR rules name a destination; "any"
// and port rules are not considered here.
func (d *Decider) explicitlyAllowsPrivate(host string, ip net.IP, port int) bool {
	for _, rules := range [][]domain.PolicyRule{d.policy.GlobalRules, d.policy.ProjectRules} {
		named := make([]domain.PolicyRule, 0, len(rules))
		for _, r := range rules {
			if r.TargetType == domain.TargetHost || r.TargetType == domain.TargetCIDR {
				named = append(named, r)
			}
		}
		if rule, ok := firstMatch(named, host, ip, port); ok {
			return rule.Action == domain.ActionAllow
		}
	}
	return false
}

func actionToErr(action domain.RuleAction) error {
	if action == domain.ActionAllow {
		return nil
	}
	return errx.With(domain.ErrPermissionDenied, ": destination denied by policy rule")
}

// firstMatch walks rules in ascending priority order and returns the first
// one whose target covers (host, ip, port).
func firstMatch(rules []domain.PolicyRule, host string, ip net.IP, port int) (domain.PolicyRule, bool) {
	ordered := append([]domain.PolicyRule(nil), rules...)
	insertionSort(ordered)
	for _, r := range ordered {
		if matches(r, host, ip, port) {
			return r, true
		}
	}
	return domain.PolicyRule{}, false
}

// insertionSort orders by ascending Priority; rule sets are expected to be
// small (tens of entries), so this avoids pulling in sort.Slice per call on
// the hot path at negligible cost difference.
func insertionSort(rules []domain.PolicyRule) {
	for i := 1; i < len(rules); i++ {
		for j := i; j > 0 && rules[j].Priority < rules[j-1].Priority; j-- {
			rules[j], rules[j-1] = rules[j-1], rules[j]
		}
	}
}

func matches(r domain.PolicyRule, host string, ip net.IP, port int) bool {
	switch r.TargetType {
	case domain.TargetAny:
		return true
	case domain.TargetHost:
		return matchesHost(r.TargetValue, host)
	case domain.TargetCIDR:
		if ip == nil {
			return false
		}
		_, n, err := net.ParseCIDR(r.TargetValue)
		return err == nil && n.Contains(ip)
	case domain.TargetPort:
		return matchesPort(r.TargetValue, port)
	default:
		return false
	}
}

func matchesHost(rule, host string) bool {
	rule = strings.TrimSpace(rule)
	if rule == "" || host == "" {
		return false
	}
	if strings.EqualFold(rule, host) {
		return true
	}
	if strings.HasPrefix(rule, "*.") {
		return strings.HasSuffix(strings.ToLower(host), strings.ToLower(rule[1:]))
	}
	return false
}

// matchesPort accepts either an exact port ("443") or a range ("8000-9000").
func matchesPort(rule string, port int) bool {
	if lo, hi, ok := strings.Cut(rule, "-"); ok {
		loN, loErr := atoiSafe(lo)
		hiN, hiErr := atoiSafe(hi)
		return loErr && hiErr && port >= loN && port <= hiN
	}
	n, ok := atoiSafe(rule)
	return ok && n == port
}

func atoiSafe(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
