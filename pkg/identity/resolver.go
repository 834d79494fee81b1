package identity

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/projectdiscovery/gologger"
	osutils "github.com/projectdiscovery/utils/os"
)

const (
	// DefaultTimeout bounds every single name lookup
	DefaultTimeout = 3 * time.Second
	// DefaultMDNSPort is where multicast DNS responders listen
	DefaultMDNSPort = 5353
)

// Options configures a Resolver
type Options struct {
	Timeout  time.Duration
	MDNSPort int
	// DisableMDNS skips the unicast multicast DNS query
	DisableMDNS bool
	// Runner executes the platform name tools, ExecRunner when nil
	Runner CommandRunner
	// IsWindows selects the NetBIOS strategy, osutils.IsWindows when nil
	IsWindows func() bool
	// LookupAddr performs reverse DNS, net.DefaultResolver when nil
	LookupAddr func(ctx context.Context, addr string) ([]string, error)
}

// Resolver answers identity questions about hosts: names and vendors.
// Every method absorbs failures and returns an empty string instead.
type Resolver struct {
	options *Options
	vendors *VendorDB
}

// New creates a Resolver. vendors may be nil, in which case no vendor ever
// matches.
func New(options *Options, vendors *VendorDB) *Resolver {
	opts := Options{}
	if options != nil {
		opts = *options
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MDNSPort == 0 {
		opts.MDNSPort = DefaultMDNSPort
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner
	}
	if opts.IsWindows == nil {
		opts.IsWindows = osutils.IsWindows
	}
	if opts.LookupAddr == nil {
		opts.LookupAddr = net.DefaultResolver.LookupAddr
	}
	if vendors == nil {
		vendors = NewVendorDBFromMap(nil)
	}
	return &Resolver{options: &opts, vendors: vendors}
}

// Reverse returns the PTR name of ip without the trailing dot
func (r *Resolver) Reverse(ctx context.Context, ip string) string {
	ctx, cancel := context.WithTimeout(ctx, r.options.Timeout)
	defer cancel()

	names, err := r.options.LookupAddr(ctx, ip)
	if err != nil || len(names) == 0 {
		return ""
	}
	return strings.TrimSuffix(names[0], ".")
}

// ResolveExtra tries the platform name services when reverse DNS had no
// answer: NetBIOS on Windows, getent, avahi and multicast DNS elsewhere
func (r *Resolver) ResolveExtra(ctx context.Context, ip string) string {
	if r.options.IsWindows() {
		return parseNbtstat(r.run(ctx, "nbtstat", "-A", ip))
	}

	if name := parseTrailingName(r.run(ctx, "getent", "hosts", ip), ip); name != "" {
		return name
	}
	if name := parseTrailingName(r.run(ctx, "avahi-resolve", "-a", ip), ip); name != "" {
		return name
	}
	if r.options.DisableMDNS {
		return ""
	}
	return r.queryMDNS(ctx, ip)
}

// Vendor returns the organisation name for the prefix of mac
func (r *Resolver) Vendor(mac string) string {
	return r.vendors.Lookup(mac)
}

func (r *Resolver) run(ctx context.Context, name string, args ...string) string {
	ctx, cancel := context.WithTimeout(ctx, r.options.Timeout)
	defer cancel()

	output, err := r.options.Runner(ctx, name, args...)
	if err != nil {
		gologger.Debug().Msgf("%s %s: %s", name, strings.Join(args, " "), err)
		return ""
	}
	return output
}
