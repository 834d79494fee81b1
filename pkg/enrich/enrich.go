// Package enrich attaches identity metadata to discovered devices: names
// from the platform name services and vendors from the hardware address.
package enrich

import (
	"context"
	"strconv"
	"strings"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/lanwatch/pkg/types"
	syncutil "github.com/projectdiscovery/utils/sync"
)

// DefaultConcurrency is the number of parallel hostname lookups
const DefaultConcurrency = 16

// Resolver is the identity lookup the pipeline depends on
type Resolver interface {
	ResolveExtra(ctx context.Context, ip string) string
	Vendor(mac string) string
}

// Pipeline runs the hostname pass followed by the vendor pass
type Pipeline struct {
	resolver    Resolver
	concurrency int
}

// New creates a Pipeline. concurrency <= 0 uses DefaultConcurrency.
func New(resolver Resolver, concurrency int) *Pipeline {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Pipeline{resolver: resolver, concurrency: concurrency}
}

// Run enriches devices in place. It never fails, a lookup miss leaves the
// device as it was.
func (p *Pipeline) Run(ctx context.Context, devices []types.Device) {
	for i := range devices {
		devices[i].MAC = types.NormalizeMAC(devices[i].MAC)
	}
	p.hostnamePass(ctx, devices)
	p.vendorPass(devices)
}

// hostnamePass resolves names for devices without one. Each goroutine owns
// one index of devices.
func (p *Pipeline) hostnamePass(ctx context.Context, devices []types.Device) {
	awg, err := syncutil.New(syncutil.WithSize(p.concurrency))
	if err != nil {
		gologger.Warning().Msgf("could not create hostname worker pool, resolving sequentially: %s", err)
		for i := range devices {
			p.resolveName(ctx, &devices[i])
		}
		return
	}

	for i := range devices {
		if devices[i].Hostname != "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		awg.Add()
		go func(device *types.Device) {
			defer awg.Done()
			p.resolveName(ctx, device)
		}(&devices[i])
	}
	awg.Wait()
}

func (p *Pipeline) resolveName(ctx context.Context, device *types.Device) {
	if device.Hostname != "" {
		return
	}
	if name := p.resolver.ResolveExtra(ctx, device.IP); name != "" {
		device.Hostname = name
		device.AddNote(types.NoteExtraName)
	}
}

func (p *Pipeline) vendorPass(devices []types.Device) {
	for i := range devices {
		device := &devices[i]
		if device.MAC == "" {
			continue
		}
		if vendor := p.resolver.Vendor(device.MAC); vendor != "" {
			device.AddNote(types.NoteVendorPrefix + vendor)
			continue
		}
		if IsLocallyAdministered(device.MAC) {
			device.AddNote(types.NotePrivateMAC)
			if strings.Contains(strings.ToLower(device.Hostname), "iphone") {
				device.AddNote(types.NoteGuessIOS)
			}
		}
	}
}

// IsLocallyAdministered reports whether bit 0x02 of the first octet is set,
// which marks randomized and other non vendor assigned addresses
func IsLocallyAdministered(mac string) bool {
	first, _, _ := strings.Cut(types.NormalizeMAC(mac), ":")
	octet, err := strconv.ParseUint(first, 16, 8)
	if err != nil {
		return false
	}
	return octet&0x02 != 0
}
