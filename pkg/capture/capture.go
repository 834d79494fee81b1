package capture

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/gopacket"
)

var (
	// ErrCaptureUnavailable is returned when link-layer capture is not possible
	// at all (no libpcap/Npcap, unknown interface, no address on it)
	ErrCaptureUnavailable = errors.New("link-layer capture unavailable")
	// ErrCaptureDenied is returned when the operating system refused access to
	// the capture device or raw socket
	ErrCaptureDenied = errors.New("link-layer capture denied")
)

// ARPReply is a single ARP "is-at" answer received during a broadcast sweep
type ARPReply struct {
	IP  net.IP
	MAC net.HardwareAddr
}

// FrameSource is a finite stream of captured frames. The channel is closed
// when the underlying handle reaches end of stream or is closed.
type FrameSource interface {
	Packets() <-chan gopacket.Packet
	Close()
}

// Capability is the raw network access the discovery engine and the monitors
// are built on
type Capability interface {
	// Broadcast sends an ARP request for every target on iface and collects
	// the replies. Unanswered targets are retried up to retries times, each
	// attempt waiting up to timeout for answers.
	Broadcast(ctx context.Context, iface string, targets []net.IP, timeout time.Duration, retries int) ([]ARPReply, error)
	// Probe sends a single ICMP echo request and reports whether ip answered
	// within timeout
	Probe(ctx context.Context, ip net.IP, timeout time.Duration) (bool, error)
	// NeighborTable returns the operating system ARP cache as ip -> mac,
	// with lowercase colon separated hardware addresses
	NeighborTable() (map[string]string, error)
	// Stream opens a capture on iface restricted by the given BPF filter
	Stream(ctx context.Context, iface string, filter string) (FrameSource, error)
}

// IsUnavailable reports whether err means capture could not be used, either
// because it is missing or because access was denied
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrCaptureUnavailable) || errors.Is(err, ErrCaptureDenied)
}

// classifyOpenError maps an error from opening a capture handle or raw socket
// into the capture error taxonomy
func classifyOpenError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCaptureUnavailable) || errors.Is(err, ErrCaptureDenied) {
		return err
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission"),
		strings.Contains(msg, "not permitted"),
		strings.Contains(msg, "access is denied"),
		strings.Contains(msg, "access denied"):
		return fmt.Errorf("%w: %v", ErrCaptureDenied, err)
	default:
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
}
