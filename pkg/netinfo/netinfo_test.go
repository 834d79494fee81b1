package netinfo

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSubnet(t *testing.T) {
	network, err := ParseSubnet("192.168.1.77/24")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.0/24", network.String())

	for _, bad := range []string{"", "not-a-subnet", "192.168.1.1", "fe80::/64", "300.1.1.1/24"} {
		_, err := ParseSubnet(bad)
		assert.ErrorIs(t, err, ErrInvalidSubnet, bad)
	}
}

func TestHostAddresses(t *testing.T) {
	tests := []struct {
		cidr  string
		count int
		first string
		last  string
	}{
		{"192.168.1.0/24", 254, "192.168.1.1", "192.168.1.254"},
		{"10.0.0.0/30", 2, "10.0.0.1", "10.0.0.2"},
		{"10.0.0.4/31", 2, "10.0.0.4", "10.0.0.5"},
		{"10.0.0.9/32", 1, "10.0.0.9", "10.0.0.9"},
	}

	for _, tt := range tests {
		t.Run(tt.cidr, func(t *testing.T) {
			network, err := ParseSubnet(tt.cidr)
			require.NoError(t, err)
			hosts, err := HostAddresses(network)
			require.NoError(t, err)
			require.Len(t, hosts, tt.count)
			assert.Equal(t, tt.first, hosts[0].String())
			assert.Equal(t, tt.last, hosts[len(hosts)-1].String())
		})
	}
}

func TestIsNetworkOrBroadcast(t *testing.T) {
	_, network, _ := net.ParseCIDR("192.168.1.0/24")

	tests := []struct {
		ip   string
		want bool
	}{
		{"192.168.1.0", true},
		{"192.168.1.255", true},
		{"192.168.1.1", false},
		{"192.168.1.254", false},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNetworkOrBroadcast(net.ParseIP(tt.ip), network))
		})
	}
	assert.False(t, IsNetworkOrBroadcast(net.ParseIP("192.168.1.0"), nil))
}

func TestIsVirtual(t *testing.T) {
	virtual := []string{"vEthernet (WSL)", "VirtualBox Host-Only Network", "VMware Network Adapter VMnet8",
		"docker0", "veth1a2b3c", "br-0f1e2d", "tun0", "tap0", "Bluetooth Network Connection", "utun3"}
	physical := []string{"eth0", "wlan0", "en0", "Wi-Fi", "Ethernet", "wlp2s0", "enp0s31f6"}

	for _, name := range virtual {
		assert.True(t, IsVirtual(name), name)
	}
	for _, name := range physical {
		assert.False(t, IsVirtual(name), name)
	}
}

func TestSelectInterface(t *testing.T) {
	mk := func(name, cidr string) Interface {
		ip, network, err := net.ParseCIDR(cidr)
		require.NoError(t, err)
		return Interface{Name: name, IP: ip.To4(), Network: network}
	}
	docker := mk("docker0", "172.17.0.1/16")
	eth := mk("eth0", "10.0.0.5/24")
	wlan := mk("wlan0", "192.168.1.23/24")

	selected, ok := selectInterface([]Interface{docker, eth, wlan}, net.ParseIP("192.168.1.23"))
	require.True(t, ok)
	assert.Equal(t, "wlan0", selected.Name)
	assert.Equal(t, "192.168.1.0/24", selected.CIDR())

	selected, ok = selectInterface([]Interface{docker, eth, wlan}, nil)
	require.True(t, ok)
	assert.Equal(t, "eth0", selected.Name)

	selected, ok = selectInterface([]Interface{docker}, nil)
	require.True(t, ok)
	assert.Equal(t, "docker0", selected.Name)

	_, ok = selectInterface(nil, nil)
	assert.False(t, ok)
}
