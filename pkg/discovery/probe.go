package discovery

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"syscall"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/lanwatch/pkg/capture"
	"github.com/projectdiscovery/lanwatch/pkg/types"
	mapsutil "github.com/projectdiscovery/utils/maps"
	syncutil "github.com/projectdiscovery/utils/sync"
)

// probeSweep pings every host, touches the responders so the operating
// system resolves their hardware address, then joins the neighbor table.
// When ICMP itself is refused a host counts as alive if a touch port
// accepts or actively refuses the connection.
func (e *Engine) probeSweep(ctx context.Context, hosts []net.IP) sweepResult {
	// ip -> already touched
	alive := mapsutil.NewSyncLockMap[string, bool]()
	denied := mapsutil.NewSyncLockMap[string, struct{}]()

	awg, err := syncutil.New(syncutil.WithSize(e.options.Concurrency))
	if err != nil {
		return sweepResult{Unavailable: err}
	}

	for _, host := range hosts {
		if ctx.Err() != nil {
			break
		}
		awg.Add()
		go func(ip net.IP) {
			defer awg.Done()

			ok, err := e.capability.Probe(ctx, ip, e.options.ProbeTimeout)
			if err != nil {
				if !capture.IsUnavailable(err) {
					gologger.Debug().Msgf("probe %s: %s", ip, err)
					return
				}
				_ = denied.Set(ip.String(), struct{}{})
				if e.touch(ctx, ip.String()) {
					_ = alive.Set(ip.String(), true)
				}
				return
			}
			if ok {
				_ = alive.Set(ip.String(), false)
			}
		}(host)
	}
	awg.Wait()

	if deniedCount := len(denied.GetAll()); deniedCount > 0 {
		gologger.Info().Msgf("ICMP not permitted for %d hosts, used TCP liveness instead", deniedCount)
	}

	var responders []string
	for ip, touched := range alive.GetAll() {
		responders = append(responders, ip)
		if touched {
			continue
		}
		awg.Add()
		go func(ip string) {
			defer awg.Done()
			e.touch(ctx, ip)
		}(ip)
	}
	awg.Wait()

	if len(responders) == 0 {
		return sweepResult{}
	}

	sleep(ctx, e.options.SettleDelay)

	table, err := e.capability.NeighborTable()
	if err != nil {
		gologger.Warning().Msgf("could not read neighbor table: %s", err)
		table = map[string]string{}
	}

	devices := make([]types.Device, 0, len(responders))
	for _, ip := range responders {
		devices = append(devices, types.Device{
			IP:   ip,
			MAC:  table[ip],
			Note: types.NoteProbeSweep,
		})
	}
	e.reverseNames(ctx, devices)
	return sweepResult{Devices: devices}
}

// touch dials every touch port of ip and reports whether any of them
// answered, either by accepting or by refusing the connection
func (e *Engine) touch(ctx context.Context, ip string) bool {
	answered := false
	for _, port := range e.options.TouchPorts {
		if ctx.Err() != nil {
			break
		}
		dialCtx, cancel := context.WithTimeout(ctx, e.options.TouchTimeout)
		conn, err := e.options.Dial(dialCtx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
		cancel()
		if err == nil {
			_ = conn.Close()
			answered = true
			continue
		}
		if isConnectionRefused(err) {
			answered = true
		}
	}
	return answered
}

func isConnectionRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || strings.Contains(strings.ToLower(err.Error()), "refused")
}
