package discovery

import (
	"context"
	"net"
	"time"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/lanwatch/pkg/types"
	mapsutil "github.com/projectdiscovery/utils/maps"
	syncutil "github.com/projectdiscovery/utils/sync"
)

// linkSweep broadcasts ARP requests for every host, several passes to wake
// up dozing clients. Any capability error makes the sweep unavailable.
func (e *Engine) linkSweep(ctx context.Context, iface string, hosts []net.IP, timeout time.Duration) sweepResult {
	var devices []types.Device

	for pass := 0; pass < e.options.Passes; pass++ {
		if ctx.Err() != nil {
			break
		}
		replies, err := e.capability.Broadcast(ctx, iface, hosts, timeout, e.options.Retries)
		if err != nil {
			return sweepResult{Unavailable: err}
		}
		gologger.Verbose().Msgf("link-layer pass %d: %d replies", pass+1, len(replies))
		for _, reply := range replies {
			devices = append(devices, types.Device{
				IP:  reply.IP.String(),
				MAC: reply.MAC.String(),
			})
		}
		sleep(ctx, e.options.PassInterval)
	}

	e.reverseNames(ctx, devices)
	return sweepResult{Devices: devices}
}

// reverseNames fills hostnames by reverse DNS, one lookup per distinct IP
func (e *Engine) reverseNames(ctx context.Context, devices []types.Device) {
	names := mapsutil.NewSyncLockMap[string, string]()

	awg, err := syncutil.New(syncutil.WithSize(e.options.Concurrency))
	if err != nil {
		gologger.Warning().Msgf("could not create resolver pool: %s", err)
		return
	}

	seen := make(map[string]struct{}, len(devices))
	for _, device := range devices {
		if _, ok := seen[device.IP]; ok {
			continue
		}
		seen[device.IP] = struct{}{}

		awg.Add()
		go func(ip string) {
			defer awg.Done()
			_ = names.Set(ip, e.resolver.Reverse(ctx, ip))
		}(device.IP)
	}
	awg.Wait()

	for i := range devices {
		if name, ok := names.Get(devices[i].IP); ok {
			devices[i].Hostname = name
		}
	}
}
