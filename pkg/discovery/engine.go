package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/lanwatch/pkg/capture"
	"github.com/projectdiscovery/lanwatch/pkg/enrich"
	"github.com/projectdiscovery/lanwatch/pkg/netinfo"
	"github.com/projectdiscovery/lanwatch/pkg/types"
	"github.com/rs/xid"
)

// ErrMalformedSubnet is returned when the subnet to scan cannot be parsed.
// It is the only error Discover returns.
var ErrMalformedSubnet = errors.New("malformed subnet")

// DefaultTimeout is the default ARP reply wait per attempt. The link sweep
// waits one second longer than the timeout it is given.
const DefaultTimeout = 3 * time.Second

// Resolver provides names and vendors for discovered hosts
type Resolver interface {
	enrich.Resolver
	Reverse(ctx context.Context, ip string) string
}

// DialFunc opens a TCP connection, used for the touch connections
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Options tunes both discovery strategies
type Options struct {
	// Passes is the number of link sweep passes over the whole subnet
	Passes int
	// PassInterval is the pause after each pass
	PassInterval time.Duration
	// Retries is the number of resends for unanswered ARP requests per pass
	Retries int
	// ProbeTimeout bounds each ICMP echo
	ProbeTimeout time.Duration
	// TouchPorts are dialed on responders to populate the OS neighbor table
	TouchPorts []int
	// TouchTimeout bounds each touch connection
	TouchTimeout time.Duration
	// SettleDelay lets the OS finish address resolution before the neighbor
	// table is read
	SettleDelay time.Duration
	// Concurrency bounds parallel probes and name lookups
	Concurrency int
	// Dial is used for touch connections, a net.Dialer when nil
	Dial DialFunc
}

// DefaultOptions returns the options used by the command line tool
func DefaultOptions() *Options {
	return &Options{
		Passes:       2,
		PassInterval: 300 * time.Millisecond,
		Retries:      1,
		ProbeTimeout: 600 * time.Millisecond,
		TouchPorts:   []int{80, 443, 554, 8009},
		TouchTimeout: 200 * time.Millisecond,
		SettleDelay:  500 * time.Millisecond,
		Concurrency:  64,
	}
}

// Engine discovers hosts on a subnet with a link-layer ARP sweep and falls
// back to an ICMP probe sweep when link-layer access is not available
type Engine struct {
	capability capture.Capability
	resolver   Resolver
	pipeline   *enrich.Pipeline
	options    *Options
}

// New creates an Engine. A nil options uses DefaultOptions.
func New(capability capture.Capability, resolver Resolver, options *Options) *Engine {
	if options == nil {
		options = DefaultOptions()
	}
	copied := *options
	options = &copied
	if options.Concurrency <= 0 {
		options.Concurrency = DefaultOptions().Concurrency
	}
	if options.Passes <= 0 {
		options.Passes = 1
	}
	if options.Dial == nil {
		timeout := options.TouchTimeout
		options.Dial = func(ctx context.Context, network, address string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: timeout}
			return dialer.DialContext(ctx, network, address)
		}
	}
	return &Engine{
		capability: capability,
		resolver:   resolver,
		pipeline:   enrich.New(resolver, options.Concurrency),
		options:    options,
	}
}

// sweepResult is the outcome of one strategy. Unavailable is set when the
// strategy could not run at all and the caller should try another one.
type sweepResult struct {
	Devices     []types.Device
	Unavailable error
}

// Discover returns the enriched, deduplicated inventory of subnet sorted by
// IP. timeout is the per attempt wait of the link sweep, extended by one
// second. Capture problems never surface as errors, they select the
// fallback strategy instead.
func (e *Engine) Discover(ctx context.Context, subnet, iface string, timeout time.Duration) (types.Inventory, error) {
	network, err := netinfo.ParseSubnet(subnet)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSubnet, err)
	}
	hosts, err := netinfo.HostAddresses(network)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSubnet, err)
	}
	return e.discoverHosts(ctx, network.String(), iface, hosts, timeout), nil
}

func (e *Engine) discoverHosts(ctx context.Context, subnet, iface string, hosts []net.IP, timeout time.Duration) types.Inventory {
	runID := xid.New().String()
	if len(hosts) == 0 {
		gologger.Verbose().Msgf("[%s] %s has no host addresses", runID, subnet)
		return types.Inventory{}
	}

	started := time.Now()
	gologger.Verbose().Msgf("[%s] link-layer sweep of %d hosts in %s on %s", runID, len(hosts), subnet, iface)
	result := e.linkSweep(ctx, iface, hosts, timeout+time.Second)
	if result.Unavailable != nil {
		gologger.Info().Msgf("[%s] link-layer sweep unavailable (%s), falling back to ICMP probe sweep", runID, result.Unavailable)
		result = e.probeSweep(ctx, hosts)
	}

	inventory := e.finalize(ctx, result.Devices)
	gologger.Verbose().Msgf("[%s] discovered %d devices in %s", runID, len(inventory), time.Since(started).Round(time.Millisecond))
	return inventory
}

// finalize keeps the last record per IP, enriches and sorts
func (e *Engine) finalize(ctx context.Context, devices []types.Device) types.Inventory {
	index := make(map[string]int, len(devices))
	deduped := make([]types.Device, 0, len(devices))
	for _, device := range devices {
		if i, ok := index[device.IP]; ok {
			deduped[i] = device
			continue
		}
		index[device.IP] = len(deduped)
		deduped = append(deduped, device)
	}

	e.pipeline.Run(ctx, deduped)
	types.SortByIP(deduped)
	return types.Inventory(deduped)
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
