package certs

import (
	"net"
	"slices"
)

// DefaultHosts are always present in the server certificate.
var DefaultHosts = []string{"localhost", "127.0.0.1"}

// LANAddresses returns the IPv4 addresses of every interface that is up,
// loopback excluded.
func LANAddresses() ([]string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ips []string
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ip := ipv4(addr); ip != "" {
				ips = append(ips, ip)
			}
		}
	}
	return ips, nil
}

func ipv4(addr net.Addr) string {
	var ip net.IP
	switch v := addr.(type) {
	case *net.IPNet:
		ip = v.IP
	case *net.IPAddr:
		ip = v.IP
	}
	if ip == nil || ip.To4() == nil || ip.IsLoopback() {
		return ""
	}
	return ip.String()
}

// Hosts returns the names the server certificate must cover: the defaults,
// the LAN addresses and any extra names, without duplicates. The defaults
// are still returned when interfaces cannot be listed.
func Hosts(extra ...string) ([]string, error) {
	hosts := slices.Clone(DefaultHosts)

	lan, err := LANAddresses()
	hosts = appendUnique(hosts, lan...)
	hosts = appendUnique(hosts, extra...)
	return hosts, err
}

func appendUnique(hosts []string, add ...string) []string {
	for _, h := range add {
		if h != "" && !slices.Contains(hosts, h) {
			hosts = append(hosts, h)
		}
	}
	return hosts
}
