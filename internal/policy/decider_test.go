package policy

import (
	"net"
	"testing"

	"github.com/emberrun/sandbox/internal/domain"
)

func TestDefaultDenyWithEmptyPolicy(t *testing.T) {
	d := New(domain.NetworkPolicy{})
	if err := d.Allow("93.184.216.34", nil, 80); err == nil {
		t.Fatal("expected default-deny with no rules configured")
	}
}

func TestAllowRuleByHost(t *testing.T) {
	p := domain.NetworkPolicy{
		ProjectRules: []domain.PolicyRule{
			{Action: domain.ActionAllow, TargetType: domain.TargetHost, TargetValue: "example.com", Priority: 1},
		},
	}
	d := New(p)
	if err := d.Allow("example.com", net.ParseIP("93.184.216.34"), 443); err != nil {
		t.Fatalf("expected allow for example.com, got %v", err)
	}
	if err := d.Allow("other.com", net.ParseIP("1.2.3.4"), 443); err == nil {
		t.Fatal("expected deny for unmatched host")
	}
}

func TestWildcardHostSuffix(t *testing.T) {
	p := domain.NetworkPolicy{
		GlobalRules: []domain.PolicyRule{
			{Action: domain.ActionAllow, TargetType: domain.TargetHost, TargetValue: "*.example.com", Priority: 1},
		},
	}
	d := New(p)
	if err := d.Allow("api.example.com", nil, 443); err != nil {
		t.Fatalf("expected wildcard match to allow, got %v", err)
	}
	if err := d.Allow("example.com", nil, 443); err == nil {
		t.Fatal("bare apex should not match *.example.com suffix rule")
	}
}

func TestGlobalRulesEvaluatedBeforeProjectRules(t *testing.T) {
	p := domain.NetworkPolicy{
		GlobalRules:  []domain.PolicyRule{{Action: domain.ActionDeny, TargetType: domain.TargetAny, Priority: 1}},
		ProjectRules: []domain.PolicyRule{{Action: domain.ActionAllow, TargetType: domain.TargetAny, Priority: 1}},
	}
	d := New(p)
	if err := d.Allow("anything.example", net.ParseIP("8.8.8.8"), 53); err == nil {
		t.Fatal("global deny-any should win over project allow-any")
	}
}

func TestFirstMatchByPriorityWins(t *testing.T) {
	p := domain.NetworkPolicy{
		ProjectRules: []domain.PolicyRule{
			{Action: domain.ActionDeny, TargetType: domain.TargetAny, Priority: 10},
			{Action: domain.ActionAllow, TargetType: domain.TargetHost, TargetValue: "example.com", Priority: 1},
		},
	}
	d := New(p)
	if err := d.Allow("example.com", nil, 443); err != nil {
		t.Fatalf("lower-priority host-specific allow should win, got %v", err)
	}
}

func TestCIDRMatch(t *testing.T) {
	p := domain.NetworkPolicy{
		ProjectRules: []domain.PolicyRule{
			{Action: domain.ActionAllow, TargetType: domain.TargetCIDR, TargetValue: "93.184.0.0/16", Priority: 1},
		},
	}
	d := New(p)
	if err := d.Allow("93.184.216.34", net.ParseIP("93.184.216.34"), 80); err != nil {
		t.Fatalf("expected CIDR match to allow, got %v", err)
	}
	if err := d.Allow("1.2.3.4", net.ParseIP("1.2.3.4"), 80); err == nil {
		t.Fatal("expected IP outside CIDR to be denied")
	}
}

func TestPortRange(t *testing.T) {
	p := domain.NetworkPolicy{
		ProjectRules: []domain.PolicyRule{
			{Action: domain.ActionAllow, TargetType: domain.TargetHost, TargetValue: "example.com", Priority: 1},
			{Action: domain.ActionAllow, TargetType: domain.TargetPort, TargetValue: "8000-9000", Priority: 2},
		},
	}
	d := New(p)
	if err := d.Allow("example.com", nil, 443); err != nil {
		t.Fatalf("host rule should allow regardless of port, got %v", err)
	}
}

func TestPrivateRangeDeniedByDefault(t *testing.T) {
	p := domain.NetworkPolicy{
		GlobalRules: []domain.PolicyRule{
			{Action: domain.ActionAllow, TargetType: domain.TargetAny, Priority: 1},
		},
	}
	d := New(p)
	if err := d.Allow("169.254.169.254", net.ParseIP("169.254.169.254"), 80); err == nil {
		t.Fatal("link-local metadata address must be denied even with an allow-any rule")
	}
	if err := d.Allow("10.0.0.5", net.ParseIP("10.0.0.5"), 80); err == nil {
		t.Fatal("private range must be denied even with an allow-any rule")
	}
}

func TestPrivateRangeAllowedWhenExplicit(t *testing.T) {
	p := domain.NetworkPolicy{
		ProjectRules: []domain.PolicyRule{
			{Action: domain.ActionAllow, TargetType: domain.TargetCIDR, TargetValue: "10.0.0.0/8", Priority: 1},
		},
	}
	d := New(p)
	if err := d.Allow("10.0.0.5", net.ParseIP("10.0.0.5"), 80); err != nil {
		t.Fatalf("explicit allow rule for a private range should override the default deny, got %v", err)
	}
}

func TestLoopbackDeniedByDefault(t *testing.T) {
	d := New(domain.NetworkPolicy{
		GlobalRules: []domain.PolicyRule{{Action: domain.ActionAllow, TargetType: domain.TargetAny, Priority: 1}},
	})
	if err := d.Allow("127.0.0.1", net.ParseIP("127.0.0.1"), 6379); err == nil {
		t.Fatal("loopback must be denied even with an allow-any rule")
	}
	if err := d.Allow("::1", net.ParseIP("::1"), 6379); err == nil {
		t.Fatal("IPv6 loopback must be denied even with an allow-any rule")
	}
}
