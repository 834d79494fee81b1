package netinfo

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/projectdiscovery/mapcidr"
)

// ErrInvalidSubnet is returned for anything that is not an IPv4 CIDR
var ErrInvalidSubnet = errors.New("invalid IPv4 subnet")

// ParseSubnet parses an IPv4 CIDR. Host bits are allowed and masked away.
func ParseSubnet(cidr string) (*net.IPNet, error) {
	_, network, err := net.ParseCIDR(strings.TrimSpace(cidr))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSubnet, cidr, err)
	}
	if network.IP.To4() == nil {
		return nil, fmt.Errorf("%w: %q is not IPv4", ErrInvalidSubnet, cidr)
	}
	return network, nil
}

// HostAddresses expands network into its usable host addresses in ascending
// order. The network and broadcast addresses are excluded except for /31 and
// /32 networks, where every address is a host.
func HostAddresses(network *net.IPNet) ([]net.IP, error) {
	ips, err := mapcidr.IPAddresses(network.String())
	if err != nil {
		return nil, fmt.Errorf("failed to expand CIDR %s: %w", network, err)
	}

	ones, _ := network.Mask.Size()
	hosts := make([]net.IP, 0, len(ips))
	for _, ipStr := range ips {
		ip := net.ParseIP(ipStr).To4()
		if ip == nil {
			continue
		}
		if ones < 31 && IsNetworkOrBroadcast(ip, network) {
			continue
		}
		hosts = append(hosts, ip)
	}
	return hosts, nil
}

// IsNetworkOrBroadcast checks if an IPv4 address is the network or broadcast
// address of network
func IsNetworkOrBroadcast(ip net.IP, network *net.IPNet) bool {
	if network == nil {
		return false
	}
	ip4 := ip.To4()
	base := network.IP.To4()
	if ip4 == nil || base == nil {
		return false
	}
	if ip4.Equal(base) {
		return true
	}

	mask := network.Mask
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	broadcast := make(net.IP, net.IPv4len)
	for i := range broadcast {
		broadcast[i] = base[i] | ^mask[i]
	}
	return ip4.Equal(broadcast)
}
