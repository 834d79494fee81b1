package capture

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/projectdiscovery/gologger"
)

const (
	// DefaultSnapLen is the default snapshot length for packet capture
	DefaultSnapLen = 65536
	// DefaultPromisc enables promiscuous mode by default
	DefaultPromisc = true
	// DefaultReadTimeout keeps pcap reads short so that contexts are honoured
	DefaultReadTimeout = 100 * time.Millisecond
	// DefaultInterval is the pause between two ARP requests of one sweep
	DefaultInterval = 20 * time.Millisecond
)

var broadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// Options tunes the pcap backed capability
type Options struct {
	SnapLen     int32
	Promisc     bool
	ReadTimeout time.Duration
	Interval    time.Duration
}

// DefaultOptions returns Options with sensible defaults
func DefaultOptions() *Options {
	return &Options{
		SnapLen:     DefaultSnapLen,
		Promisc:     DefaultPromisc,
		ReadTimeout: DefaultReadTimeout,
		Interval:    DefaultInterval,
	}
}

// Link is the Capability backed by libpcap, raw ICMP sockets and the OS
// neighbor table
type Link struct {
	options    *Options
	privileged bool
	seq        atomic.Uint32
}

var _ Capability = (*Link)(nil)

// New creates a Link. A nil options uses DefaultOptions.
func New(options *Options) *Link {
	if options == nil {
		options = DefaultOptions()
	}
	return &Link{
		options:    options,
		privileged: IsPrivileged(),
	}
}

// open creates a pcap handle for the named device
func (l *Link) open(device string) (*pcap.Handle, error) {
	handle, err := pcap.OpenLive(device, l.options.SnapLen, l.options.Promisc, l.options.ReadTimeout)
	if err != nil {
		return nil, classifyOpenError(err)
	}
	return handle, nil
}

// Broadcast implements Capability
func (l *Link) Broadcast(ctx context.Context, iface string, targets []net.IP, timeout time.Duration, retries int) ([]ARPReply, error) {
	if len(targets) == 0 {
		return nil, nil
	}

	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("%w: interface %s: %v", ErrCaptureUnavailable, iface, err)
	}
	srcIP := interfaceIPv4(ifi)
	if srcIP == nil {
		return nil, fmt.Errorf("%w: interface %s has no IPv4 address", ErrCaptureUnavailable, iface)
	}
	if len(ifi.HardwareAddr) != 6 {
		return nil, fmt.Errorf("%w: interface %s has no ethernet address", ErrCaptureUnavailable, iface)
	}

	handle, err := l.open(deviceFor(iface, srcIP))
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	if err := handle.SetBPFFilter("arp"); err != nil {
		gologger.Verbose().Msgf("could not set arp filter on %s: %s", iface, err)
	}

	collector := newReplyCollector(targets)
	packets := gopacket.NewPacketSource(handle, handle.LinkType()).Packets()
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			case packet, ok := <-packets:
				if !ok {
					return
				}
				collector.observe(packet)
			}
		}
	}()

	var sendErr error
	for attempt := 0; attempt <= retries; attempt++ {
		sent := 0
		for _, target := range targets {
			if ctx.Err() != nil {
				break
			}
			if collector.answered(target) {
				continue
			}
			frame, err := buildARPRequest(ifi.HardwareAddr, srcIP, target)
			if err != nil {
				sendErr = err
				continue
			}
			if err := handle.WritePacketData(frame); err != nil {
				sendErr = classifyOpenError(err)
				continue
			}
			sent++
			time.Sleep(l.options.Interval)
		}
		if sent == 0 {
			break
		}

		select {
		case <-ctx.Done():
		case <-time.After(timeout):
		}
		if ctx.Err() != nil {
			break
		}
	}

	close(stop)
	wg.Wait()

	replies := collector.replies()
	if len(replies) == 0 && sendErr != nil {
		return nil, sendErr
	}
	return replies, nil
}

// Stream implements Capability
func (l *Link) Stream(ctx context.Context, iface string, filter string) (FrameSource, error) {
	if iface == "" {
		name, err := defaultDevice()
		if err != nil {
			return nil, err
		}
		iface = name
	} else if ifi, err := net.InterfaceByName(iface); err == nil {
		if ip := interfaceIPv4(ifi); ip != nil {
			iface = deviceFor(iface, ip)
		}
	}

	handle, err := l.open(iface)
	if err != nil {
		return nil, err
	}
	if filter != "" {
		if err := handle.SetBPFFilter(filter); err != nil {
			gologger.Verbose().Msgf("could not set filter %q on %s: %s", filter, iface, err)
		}
	}
	return &pcapSource{
		handle: handle,
		source: gopacket.NewPacketSource(handle, handle.LinkType()),
	}, nil
}

// pcapSource wraps a pcap packet source
type pcapSource struct {
	handle *pcap.Handle
	source *gopacket.PacketSource
	once   sync.Once
}

func (s *pcapSource) Packets() <-chan gopacket.Packet {
	return s.source.Packets()
}

func (s *pcapSource) Close() {
	s.once.Do(s.handle.Close)
}

// deviceFor maps an interface name to its capture device name. They only
// differ on Windows where Npcap names devices \Device\NPF_{GUID}.
func deviceFor(iface string, ip net.IP) string {
	devices, err := pcap.FindAllDevs()
	if err != nil {
		return iface
	}
	for _, device := range devices {
		if device.Name == iface {
			return iface
		}
	}
	for _, device := range devices {
		for _, addr := range device.Addresses {
			if addr.IP.Equal(ip) {
				return device.Name
			}
		}
	}
	return iface
}

// defaultDevice picks the first capture device that is not loopback and has
// an address
func defaultDevice() (string, error) {
	devices, err := pcap.FindAllDevs()
	if err != nil {
		return "", classifyOpenError(err)
	}
	for _, device := range devices {
		if len(device.Addresses) == 0 {
			continue
		}
		loopback := false
		for _, addr := range device.Addresses {
			if addr.IP.IsLoopback() {
				loopback = true
				break
			}
		}
		if !loopback {
			return device.Name, nil
		}
	}
	return "", fmt.Errorf("%w: no capture device found", ErrCaptureUnavailable)
}

// buildARPRequest serializes a broadcast who-has frame for target
func buildARPRequest(srcMAC net.HardwareAddr, srcIP, target net.IP) ([]byte, error) {
	dstIP := target.To4()
	if dstIP == nil {
		return nil, fmt.Errorf("not an IPv4 address: %s", target)
	}

	eth := layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       broadcastMAC,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(srcMAC),
		SourceProtAddress: []byte(srcIP.To4()),
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte(dstIP),
	}

	buffer := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	if err := gopacket.SerializeLayers(buffer, opts, &eth, &arp); err != nil {
		return nil, fmt.Errorf("failed to serialize ARP request: %w", err)
	}
	return buffer.Bytes(), nil
}

// interfaceIPv4 returns the first IPv4 address assigned to ifi
func interfaceIPv4(ifi *net.Interface) net.IP {
	addrs, err := ifi.Addrs()
	if err != nil {
		return nil
	}
	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok {
			if ip4 := ipNet.IP.To4(); ip4 != nil {
				return ip4
			}
		}
	}
	return nil
}

// replyCollector gathers ARP replies for a fixed target set in arrival order
type replyCollector struct {
	mu      sync.Mutex
	targets map[string]struct{}
	seen    map[string]struct{}
	got     map[string]struct{}
	ordered []ARPReply
}

func newReplyCollector(targets []net.IP) *replyCollector {
	c := &replyCollector{
		targets: make(map[string]struct{}, len(targets)),
		seen:    make(map[string]struct{}),
		got:     make(map[string]struct{}),
	}
	for _, target := range targets {
		c.targets[target.String()] = struct{}{}
	}
	return c
}

// observe records packet if it is an ARP reply from one of the targets
func (c *replyCollector) observe(packet gopacket.Packet) {
	reply, ok := ParseARPReply(packet)
	if !ok {
		return
	}
	ip := reply.IP.String()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, wanted := c.targets[ip]; !wanted {
		return
	}
	key := ip + "|" + reply.MAC.String()
	if _, dup := c.seen[key]; dup {
		return
	}
	c.seen[key] = struct{}{}
	c.got[ip] = struct{}{}
	c.ordered = append(c.ordered, reply)
}

func (c *replyCollector) answered(ip net.IP) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.got[ip.String()]
	return ok
}

func (c *replyCollector) replies() []ARPReply {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ARPReply, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// ParseARPReply extracts the sender of an ARP "is-at" frame. Requests and
// non-ARP frames are rejected.
func ParseARPReply(packet gopacket.Packet) (ARPReply, bool) {
	if packet == nil {
		return ARPReply{}, false
	}
	arpLayer := packet.Layer(layers.LayerTypeARP)
	if arpLayer == nil {
		return ARPReply{}, false
	}
	arp, ok := arpLayer.(*layers.ARP)
	if !ok || arp.Operation != layers.ARPReply {
		return ARPReply{}, false
	}
	ip := net.IP(arp.SourceProtAddress).To4()
	if ip == nil || len(arp.SourceHwAddress) != 6 {
		return ARPReply{}, false
	}
	return ARPReply{
		IP:  ip,
		MAC: net.HardwareAddr(arp.SourceHwAddress),
	}, true
}
