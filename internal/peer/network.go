package peer

import (
	"net"
	"strings"
)

// cgnat is the shared address space used by carrier-grade NAT and overlay
// VPNs such as Tailscale and WARP.
var cgnat = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

var tunnelPrefixes = []string{"tun", "tap", "wg", "ppp", "utun", "warp"}

// NeedsRelay guesses whether direct connectivity is unlikely because an
// active interface is a tunnel or sits behind CGNAT.
func NeedsRelay() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if isTunnel(iface.Name) {
			return true
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if n, ok := addr.(*net.IPNet); ok && cgnat.Contains(n.IP) {
				return true
			}
		}
	}
	return false
}

func isTunnel(name string) bool {
	name = strings.ToLower(name)
	for _, p := range tunnelPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
