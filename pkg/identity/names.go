package identity

import (
	"context"
	"net"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/miekg/dns"
)

// CommandRunner runs an external program and returns its standard output
type CommandRunner func(ctx context.Context, name string, args ...string) (string, error)

// ExecRunner runs commands with os/exec
func ExecRunner(ctx context.Context, name string, args ...string) (string, error) {
	output, err := exec.CommandContext(ctx, name, args...).Output()
	return string(output), err
}

var (
	// NetBIOS name table rows look like "  DESKTOP-1AB2   <00>  UNIQUE   Registered"
	nbtstatName = regexp.MustCompile(`^\s*([A-Za-z0-9\-_.]+)\s+<\w\w>\s+`)
	// getent and avahi print "<ip> <name>", the name is the last token
	trailingName = regexp.MustCompile(`(?m)([A-Za-z0-9\-_.]+)\s*$`)
)

// genericNetBIOSNames are workgroup names that never identify a host
var genericNetBIOSNames = map[string]struct{}{
	"WORKGROUP": {},
	"HOME":      {},
	"MSHOME":    {},
}

// parseNbtstat returns the first NetBIOS machine name of `nbtstat -A` output
func parseNbtstat(output string) string {
	for _, line := range strings.Split(output, "\n") {
		match := nbtstatName.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if match == nil {
			continue
		}
		name := strings.TrimSpace(match[1])
		if _, generic := genericNetBIOSNames[strings.ToUpper(name)]; generic || name == "" {
			continue
		}
		return name
	}
	return ""
}

// parseTrailingName returns the name column of getent or avahi-resolve output
func parseTrailingName(output, ip string) string {
	match := trailingName.FindStringSubmatch(strings.TrimSpace(output))
	if match == nil {
		return ""
	}
	name := match[1]
	if name == "" || name == ip {
		return ""
	}
	return name
}

// queryMDNS sends a unicast PTR question for ip to the host's multicast DNS
// responder and returns the first answer
func (r *Resolver) queryMDNS(ctx context.Context, ip string) string {
	arpa, err := dns.ReverseAddr(ip)
	if err != nil {
		return ""
	}

	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)
	msg.RecursionDesired = false

	client := &dns.Client{
		Net:     "udp",
		Timeout: r.options.Timeout,
	}
	in, _, err := client.ExchangeContext(ctx, msg, net.JoinHostPort(ip, strconv.Itoa(r.options.MDNSPort)))
	if err != nil || in == nil {
		return ""
	}
	for _, rr := range in.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			if name := strings.TrimSuffix(ptr.Ptr, "."); name != "" {
				return name
			}
		}
	}
	return ""
}
