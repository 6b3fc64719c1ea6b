package discovery

import (
	"fmt"
	"net"
)

// FallbackSubnets are tried when interface introspection finds nothing.
var FallbackSubnets = []string{"192.168.1", "192.168.0", "10.0.0", "172.16.0"}

// priorityHosts are the suffixes POS servers usually sit on; they are probed
// before the rest of the /24.
var priorityHosts = []int{1, 100, 101, 102, 103, 104, 105, 150, 200, 254}

// SubnetSource yields /24 prefixes ("192.168.1") in scan order.
type SubnetSource func() []string

// LocalSubnets returns the prefix of every up, non-loopback IPv4 interface,
// or FallbackSubnets when there is none.
func LocalSubnets() []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return append([]string(nil), FallbackSubnets...)
	}
	var out []string
	seen := map[string]bool{}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if p := prefix24(ipnet.IP); p != "" && !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	if len(out) == 0 {
		return append([]string(nil), FallbackSubnets...)
	}
	return out
}

// prefix24 returns the first three octets of a private IPv4 address.
func prefix24(ip net.IP) string {
	v4 := ip.To4()
	if v4 == nil || !v4.IsPrivate() {
		return ""
	}
	return fmt.Sprintf("%d.%d.%d", v4[0], v4[1], v4[2])
}

// HostOrder lists 1..254 with the priority suffixes first.
func HostOrder() []int {
	out := make([]int, 0, 254)
	seen := make(map[int]bool, 254)
	for _, h := range priorityHosts {
		seen[h] = true
		out = append(out, h)
	}
	for h := 1; h <= 254; h++ {
		if !seen[h] {
			out = append(out, h)
		}
	}
	return out
}
