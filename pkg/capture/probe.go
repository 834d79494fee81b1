package capture

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

var probePayload = []byte("lanwatch-probe")

// Probe implements Capability. Privileged processes use a raw ICMP socket,
// others the unprivileged datagram ICMP socket where the kernel allows it.
func (l *Link) Probe(ctx context.Context, ip net.IP, timeout time.Duration) (bool, error) {
	target := ip.To4()
	if target == nil {
		return false, fmt.Errorf("not an IPv4 address: %s", ip)
	}

	network := "udp4"
	if l.privileged {
		network = "ip4:icmp"
	}
	conn, err := icmp.ListenPacket(network, "0.0.0.0")
	if err != nil {
		return false, classifyOpenError(err)
	}
	defer func() {
		_ = conn.Close()
	}()

	id := os.Getpid() & 0xffff
	seq := int(l.seq.Add(1) & 0xffff)
	msg := &icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   id,
			Seq:  seq,
			Data: probePayload,
		},
	}
	msgBytes, err := msg.Marshal(nil)
	if err != nil {
		return false, fmt.Errorf("failed to marshal ICMP message: %w", err)
	}

	var dst net.Addr = &net.IPAddr{IP: target}
	if network == "udp4" {
		dst = &net.UDPAddr{IP: target}
	}
	if _, err := conn.WriteTo(msgBytes, dst); err != nil {
		return false, classifyOpenError(err)
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return false, err
	}

	reply := make([]byte, 1500)
	for {
		if ctx.Err() != nil {
			return false, nil
		}
		n, peer, err := conn.ReadFrom(reply)
		if err != nil {
			// deadline reached
			return false, nil
		}
		if matchEchoReply(reply[:n], peer, target, id, seq, network == "ip4:icmp") {
			return true, nil
		}
	}
}

// matchEchoReply reports whether data is the echo reply for the given request.
// Datagram sockets rewrite the identifier so it is only checked on raw sockets.
func matchEchoReply(data []byte, peer net.Addr, target net.IP, id, seq int, checkID bool) bool {
	rm, err := icmp.ParseMessage(ipv4.ICMPTypeEchoReply.Protocol(), data)
	if err != nil || rm.Type != ipv4.ICMPTypeEchoReply {
		return false
	}
	echo, ok := rm.Body.(*icmp.Echo)
	if !ok || echo.Seq != seq {
		return false
	}
	if checkID && echo.ID != id {
		return false
	}
	return peerIP(peer).Equal(target)
}

func peerIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.IPAddr:
		return a.IP
	case *net.UDPAddr:
		return a.IP
	default:
		return nil
	}
}
