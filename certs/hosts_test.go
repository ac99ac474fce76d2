package certs

import (
	"net"
	"slices"
	"testing"
)

func TestLANAddresses(t *testing.T) {
	ips, err := LANAddresses()
	if err != nil {
		t.Fatalf("LANAddresses failed: %v", err)
	}
	for _, ip := range ips {
		parsed := net.ParseIP(ip)
		if parsed == nil || parsed.To4() == nil || parsed.IsLoopback() {
			t.Errorf("unexpected address %q", ip)
		}
	}
}

func TestHosts(t *testing.T) {
	hosts, err := Hosts("bridge.local", "localhost", "")
	if err != nil {
		t.Fatalf("Hosts failed: %v", err)
	}

	for _, want := range []string{"localhost", "127.0.0.1", "bridge.local"} {
		if !slices.Contains(hosts, want) {
			t.Errorf("Hosts() = %v, missing %q", hosts, want)
		}
	}

	seen := map[string]bool{}
	for _, h := range hosts {
		if h == "" {
			t.Error("empty host in list")
		}
		if seen[h] {
			t.Errorf("duplicate host %q", h)
		}
		seen[h] = true
	}
}

func TestIPv4(t *testing.T) {
	tests := []struct {
		addr net.Addr
		want string
	}{
		{&net.IPNet{IP: net.ParseIP("192.168.1.5")}, "192.168.1.5"},
		{&net.IPAddr{IP: net.ParseIP("10.0.0.1")}, "10.0.0.1"},
		{&net.IPNet{IP: net.ParseIP("127.0.0.1")}, ""},
		{&net.IPNet{IP: net.ParseIP("fe80::1")}, ""},
	}
	for _, tt := range tests {
		if got := ipv4(tt.addr); got != tt.want {
			t.Errorf("ipv4(%v) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}
