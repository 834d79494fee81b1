// Package capture provides raw network access for host discovery and
// monitoring.
//
// Link is the default implementation:
//   - ARP who-has frames are crafted with gopacket and written to a pcap
//     handle, replies are read back from the same handle
//   - single ICMP echo probes use a raw socket when privileged, otherwise the
//     unprivileged datagram ICMP socket
//   - the operating system neighbor table is read from /proc/net/arp or `arp -a`
//   - frame streams for the monitors are pcap handles with a BPF filter
//
// Failures to open a handle or socket are reported as ErrCaptureUnavailable
// or ErrCaptureDenied so callers can fall back to other strategies.
package capture
