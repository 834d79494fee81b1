package netinfo

import (
	"errors"
	"net"
	"strings"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// ErrNoInterface is returned when no usable IPv4 interface exists
var ErrNoInterface = errors.New("no usable IPv4 interface found")

// virtualMarkers are substrings of adapter names that belong to hypervisors,
// tunnels and container bridges
var virtualMarkers = []string{
	"vethernet", "hyper-v", "virtualbox", "vmware", "bluetooth",
	"tap", "tun", "vpn", "docker", "veth", "br-", "virbr", "zt", "utun",
}

// Interface is an IPv4 capable network interface
type Interface struct {
	Name    string
	IP      net.IP
	Network *net.IPNet
}

// CIDR returns the network of the interface in CIDR notation
func (i Interface) CIDR() string {
	if i.Network == nil {
		return ""
	}
	return i.Network.String()
}

// ListInterfaces returns every up, non-loopback interface carrying an IPv4
// address, one entry per address
func ListInterfaces() ([]Interface, error) {
	stats, err := psnet.Interfaces()
	if err != nil {
		return nil, err
	}

	var interfaces []Interface
	for _, stat := range stats {
		if !hasFlag(stat.Flags, "up") || hasFlag(stat.Flags, "loopback") {
			continue
		}
		for _, addr := range stat.Addrs {
			ip, network, err := net.ParseCIDR(addr.Addr)
			if err != nil {
				continue
			}
			ip4 := ip.To4()
			if ip4 == nil || ip4.IsLoopback() || ip4.IsLinkLocalUnicast() {
				continue
			}
			interfaces = append(interfaces, Interface{
				Name:    stat.Name,
				IP:      ip4,
				Network: network,
			})
		}
	}
	return interfaces, nil
}

// DefaultInterface infers the interface and subnet to scan
func DefaultInterface() (Interface, error) {
	interfaces, err := ListInterfaces()
	if err != nil {
		return Interface{}, err
	}
	selected, ok := selectInterface(interfaces, outboundIP())
	if !ok {
		return Interface{}, ErrNoInterface
	}
	return selected, nil
}

// LookupInterface returns the first IPv4 entry of the named interface
func LookupInterface(name string) (Interface, error) {
	interfaces, err := ListInterfaces()
	if err != nil {
		return Interface{}, err
	}
	for _, iface := range interfaces {
		if strings.EqualFold(iface.Name, name) {
			return iface, nil
		}
	}
	return Interface{}, ErrNoInterface
}

// selectInterface prefers the physical interface holding the outbound source
// address, then the first physical interface, then anything left
func selectInterface(interfaces []Interface, outbound net.IP) (Interface, bool) {
	var physical []Interface
	for _, iface := range interfaces {
		if !IsVirtual(iface.Name) {
			physical = append(physical, iface)
		}
	}

	if outbound != nil {
		for _, iface := range physical {
			if iface.IP.Equal(outbound) {
				return iface, true
			}
		}
	}
	if len(physical) > 0 {
		return physical[0], true
	}
	if len(interfaces) > 0 {
		return interfaces[0], true
	}
	return Interface{}, false
}

// IsVirtual reports whether an adapter name looks like a virtual adapter
func IsVirtual(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range virtualMarkers {
		if strings.HasPrefix(lower, marker) || (len(marker) > 3 && strings.Contains(lower, marker)) {
			return true
		}
	}
	return false
}

// outboundIP returns the source address the kernel picks for the default
// route. No packet is sent.
func outboundIP() net.IP {
	conn, err := net.Dial("udp4", "192.0.2.1:80")
	if err != nil {
		return nil
	}
	defer func() {
		_ = conn.Close()
	}()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.To4()
	}
	return nil
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}
