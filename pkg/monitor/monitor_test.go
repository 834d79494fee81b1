package monitor

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/projectdiscovery/lanwatch/pkg/capture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanSource is a FrameSource over a prepared list of packets
type chanSource struct {
	packets chan gopacket.Packet
	once    sync.Once
	closed  bool
}

func newChanSource(packets []gopacket.Packet, keepOpen bool) *chanSource {
	ch := make(chan gopacket.Packet, len(packets))
	for _, packet := range packets {
		ch <- packet
	}
	if !keepOpen {
		close(ch)
	}
	return &chanSource{packets: ch}
}

func (s *chanSource) Packets() <-chan gopacket.Packet { return s.packets }

func (s *chanSource) Close() { s.once.Do(func() { s.closed = true }) }

type streamCapability struct {
	source    *chanSource
	err       error
	gotFilter string
}

func (c *streamCapability) Broadcast(ctx context.Context, iface string, targets []net.IP, timeout time.Duration, retries int) ([]capture.ARPReply, error) {
	return nil, capture.ErrCaptureUnavailable
}

func (c *streamCapability) Probe(ctx context.Context, ip net.IP, timeout time.Duration) (bool, error) {
	return false, capture.ErrCaptureUnavailable
}

func (c *streamCapability) NeighborTable() (map[string]string, error) { return nil, nil }

func (c *streamCapability) Stream(ctx context.Context, iface string, filter string) (capture.FrameSource, error) {
	c.gotFilter = filter
	if c.err != nil {
		return nil, c.err
	}
	return c.source, nil
}

func arpPacket(t *testing.T, op uint16, ip, mac string) gopacket.Packet {
	t.Helper()

	hw, err := net.ParseMAC(mac)
	require.NoError(t, err)
	eth := layers.Ethernet{
		SrcMAC:       hw,
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         op,
		SourceHwAddress:   []byte(hw),
		SourceProtAddress: []byte(net.ParseIP(ip).To4()),
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{10, 0, 0, 1},
	}
	buffer := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buffer, gopacket.SerializeOptions{FixLengths: true}, &eth, &arp))
	return gopacket.NewPacket(buffer.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
}

// deauthPacket builds a raw 802.11 deauthentication frame: frame control,
// duration, three addresses, sequence control, reason code and FCS
func deauthPacket(t *testing.T, src string) gopacket.Packet {
	t.Helper()

	hw, err := net.ParseMAC(src)
	require.NoError(t, err)

	frame := []byte{0xc0, 0x00, 0x3a, 0x01}
	frame = append(frame, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
	frame = append(frame, hw...)
	frame = append(frame, hw...)
	frame = append(frame, 0x00, 0x00)
	frame = append(frame, 0x07, 0x00)
	frame = append(frame, 0x00, 0x00, 0x00, 0x00)
	return gopacket.NewPacket(frame, layers.LayerTypeDot11, gopacket.Default)
}

func TestAddressTableObserve(t *testing.T) {
	table := NewAddressTable()

	_, changed := table.Observe("10.0.0.5", "aa:aa:aa:aa:aa:aa")
	assert.False(t, changed)

	anomaly, changed := table.Observe("10.0.0.5", "bb:bb:bb:bb:bb:bb")
	require.True(t, changed)
	assert.Equal(t, Anomaly{IP: "10.0.0.5", PreviousMAC: "aa:aa:aa:aa:aa:aa", NewMAC: "bb:bb:bb:bb:bb:bb"}, anomaly)

	_, changed = table.Observe("10.0.0.5", "bb:bb:bb:bb:bb:bb")
	assert.False(t, changed)
	assert.Equal(t, 1, table.Len())
}

func TestSpoofMonitorScenario(t *testing.T) {
	source := newChanSource([]gopacket.Packet{
		arpPacket(t, layers.ARPReply, "10.0.0.5", "aa:aa:aa:aa:aa:aa"),
		arpPacket(t, layers.ARPRequest, "10.0.0.5", "cc:cc:cc:cc:cc:cc"),
		arpPacket(t, layers.ARPReply, "10.0.0.5", "bb:bb:bb:bb:bb:bb"),
		arpPacket(t, layers.ARPReply, "10.0.0.5", "bb:bb:bb:bb:bb:bb"),
		arpPacket(t, layers.ARPReply, "10.0.0.6", "dd:dd:dd:dd:dd:dd"),
	}, false)
	capability := &streamCapability{source: source}

	anomalies := NewSpoofMonitor(capability, "eth0").Run(context.Background(), time.Minute)

	assert.Equal(t, "arp", capability.gotFilter)
	require.Len(t, anomalies, 1)
	assert.False(t, anomalies[0].Informational())
	assert.Equal(t, "10.0.0.5", anomalies[0].IP)
	assert.Equal(t, "aa:aa:aa:aa:aa:aa", anomalies[0].PreviousMAC)
	assert.Equal(t, "bb:bb:bb:bb:bb:bb", anomalies[0].NewMAC)
	assert.True(t, source.closed)
}

func TestSpoofMonitorCaptureUnavailable(t *testing.T) {
	capability := &streamCapability{err: capture.ErrCaptureDenied}

	anomalies := NewSpoofMonitor(capability, "").Run(context.Background(), time.Minute)
	require.Len(t, anomalies, 1)
	assert.True(t, anomalies[0].Informational())
}

func TestSpoofMonitorDuration(t *testing.T) {
	source := newChanSource(nil, true)
	started := time.Now()
	anomalies := NewSpoofMonitor(&streamCapability{source: source}, "eth0").Run(context.Background(), 50*time.Millisecond)
	assert.Empty(t, anomalies)
	assert.GreaterOrEqual(t, time.Since(started), 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	anomalies = NewSpoofMonitor(&streamCapability{source: newChanSource(nil, true)}, "eth0").Run(ctx, time.Hour)
	assert.Empty(t, anomalies)
}

func TestParseDeauth(t *testing.T) {
	src, ok := ParseDeauth(deauthPacket(t, "11:11:11:11:11:11"))
	require.True(t, ok)
	assert.Equal(t, "11:11:11:11:11:11", src)

	_, ok = ParseDeauth(arpPacket(t, layers.ARPReply, "10.0.0.5", "aa:aa:aa:aa:aa:aa"))
	assert.False(t, ok)
}

func TestDeauthMonitorScenario(t *testing.T) {
	var packets []gopacket.Packet
	for i := 0; i < 3; i++ {
		packets = append(packets, deauthPacket(t, "22:22:22:22:22:22"))
	}
	for i := 0; i < 7; i++ {
		packets = append(packets, deauthPacket(t, "11:11:11:11:11:11"))
	}
	packets = append(packets, arpPacket(t, layers.ARPReply, "10.0.0.5", "aa:aa:aa:aa:aa:aa"))

	monitor := NewDeauthMonitor(&streamCapability{source: newChanSource(packets, false)}, "wlan0mon")
	monitor.isLinux = func() bool { return true }

	report := monitor.Run(context.Background(), time.Minute)
	assert.Equal(t, 10, report.Total)
	require.Len(t, report.Offenders, 2)
	assert.Equal(t, Offender{MAC: "11:11:11:11:11:11", Count: 7}, report.Offenders[0])
	assert.Equal(t, Offender{MAC: "22:22:22:22:22:22", Count: 3}, report.Offenders[1])
	assert.Equal(t, []string{
		"Deauth frames total: 10",
		"Possible deauth source 11:11:11:11:11:11: 7 frames",
		"Possible deauth source 22:22:22:22:22:22: 3 frames",
	}, report.Notes)
}

func TestDeauthMonitorNoFrames(t *testing.T) {
	monitor := NewDeauthMonitor(&streamCapability{source: newChanSource(nil, false)}, "wlan0mon")
	monitor.isLinux = func() bool { return true }

	report := monitor.Run(context.Background(), time.Minute)
	assert.Zero(t, report.Total)
	assert.Empty(t, report.Offenders)
	assert.Equal(t, []string{"Deauth frames total: 0", "No deauthentication frames observed in the period."}, report.Notes)
}

func TestDeauthMonitorUnsupported(t *testing.T) {
	capability := &streamCapability{source: newChanSource(nil, false)}
	monitor := NewDeauthMonitor(capability, "wlan0mon")
	monitor.isLinux = func() bool { return false }

	report := monitor.Run(context.Background(), time.Minute)
	require.Len(t, report.Notes, 1)
	assert.Empty(t, capability.gotFilter, "no capture is attempted")

	monitor = NewDeauthMonitor(&streamCapability{err: capture.ErrCaptureUnavailable}, "wlan0mon")
	monitor.isLinux = func() bool { return true }
	report = monitor.Run(context.Background(), time.Minute)
	require.Len(t, report.Notes, 1)
	assert.Zero(t, report.Total)
}

func TestOffenderTableTop(t *testing.T) {
	table := NewOffenderTable()
	for _, src := range []string{"a", "b", "c", "d", "e", "f", "", "b", "f"} {
		table.Observe(src)
	}
	assert.Equal(t, 9, table.Total())

	top := table.Top(TopOffenders)
	require.Len(t, top, TopOffenders)
	assert.Equal(t, []Offender{
		{MAC: "b", Count: 2},
		{MAC: "f", Count: 2},
		{MAC: "a", Count: 1},
		{MAC: "c", Count: 1},
		{MAC: "d", Count: 1},
	}, top)

	all := table.Top(10)
	assert.Equal(t, Offender{MAC: UnknownSource, Count: 1}, all[len(all)-1])
}
