package runner

import (
	"context"
	"errors"
	"time"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/lanwatch/pkg/alias"
	"github.com/projectdiscovery/lanwatch/pkg/baseline"
	"github.com/projectdiscovery/lanwatch/pkg/capture"
	"github.com/projectdiscovery/lanwatch/pkg/discovery"
	"github.com/projectdiscovery/lanwatch/pkg/identity"
	"github.com/projectdiscovery/lanwatch/pkg/monitor"
	"github.com/projectdiscovery/lanwatch/pkg/netinfo"
	errorutil "github.com/projectdiscovery/utils/errors"
)

// Runner contains the internal logic of the program
type Runner struct {
	options    *Options
	capability capture.Capability
	resolver   *identity.Resolver
	output     *writer
}

// NewRunner instance
func NewRunner(options *Options) (*Runner, error) {
	vendors := identity.NewVendorDB(options.VendorDBFile)
	resolver := identity.New(&identity.Options{
		DisableMDNS: options.NoMDNS,
	}, vendors)

	return &Runner{
		options:    options,
		capability: capture.New(capture.DefaultOptions()),
		resolver:   resolver,
		output:     newWriter(options.JSON),
	}, nil
}

// Run the instance
func (r *Runner) Run(ctx context.Context) error {
	switch r.options.Mode() {
	case ModeWatchARP:
		return r.runWatchARP(ctx)
	case ModeDeauth:
		return r.runDeauth(ctx)
	case ModeVendorsUpdate:
		return r.runVendorsUpdate(ctx)
	default:
		return r.runScan(ctx)
	}
}

func (r *Runner) runScan(ctx context.Context) error {
	iface, subnet, err := r.target()
	if err != nil {
		return err
	}
	if !capture.IsPrivileged() {
		gologger.Warning().Msgf("Not running with administrator privileges, ARP sweep will likely fall back to ICMP")
	}

	discoveryOptions := discovery.DefaultOptions()
	discoveryOptions.Concurrency = r.options.Concurrency
	discoveryOptions.ProbeTimeout = time.Duration(r.options.ProbeTimeout) * time.Millisecond
	engine := discovery.New(r.capability, r.resolver, discoveryOptions)

	gologger.Info().Msgf("Scanning %s on %s", subnet, iface)
	inventory, err := engine.Discover(ctx, subnet, iface, time.Duration(r.options.Timeout)*time.Second)
	if err != nil {
		return errorutil.NewWithErr(err).Msgf("could not scan %s", subnet)
	}

	aliases := alias.Load(r.options.AliasesFile)
	if applied := aliases.Apply(inventory); applied > 0 {
		gologger.Verbose().Msgf("Applied %d aliases", applied)
	}

	previous, hadBaseline, err := baseline.Load(r.options.BaselineFile)
	if err != nil {
		gologger.Warning().Msgf("Ignoring previous baseline: %s", err)
	}
	diff := baseline.Diff(previous, inventory)

	r.output.Inventory(inventory)
	r.output.Diff(diff, hadBaseline)
	gologger.Info().Msgf("Found %d devices (%d new, %d gone)", len(inventory), len(diff.Added), len(diff.Removed))

	if ctx.Err() != nil {
		gologger.Warning().Msgf("Scan interrupted, baseline not updated")
		return nil
	}
	if r.options.NoSaveBaseline {
		return nil
	}
	if err := baseline.Save(r.options.BaselineFile, inventory); err != nil {
		return errorutil.NewWithErr(err).Msgf("could not save baseline")
	}
	gologger.Verbose().Msgf("Baseline saved to %s", r.options.BaselineFile)
	return nil
}

func (r *Runner) runWatchARP(ctx context.Context) error {
	duration := time.Duration(r.options.WatchDuration) * time.Second
	gologger.Info().Msgf("Watching ARP replies for %s", duration)

	anomalies := monitor.NewSpoofMonitor(r.capability, r.options.Interface).Run(ctx, duration)
	r.output.Anomalies(anomalies)
	return nil
}

func (r *Runner) runDeauth(ctx context.Context) error {
	duration := time.Duration(r.options.DeauthDuration) * time.Minute
	gologger.Info().Msgf("Counting deauthentication frames on %s for %s", r.options.Interface, duration)

	report := monitor.NewDeauthMonitor(r.capability, r.options.Interface).Run(ctx, duration)
	r.output.Deauth(report)
	return nil
}

func (r *Runner) runVendorsUpdate(ctx context.Context) error {
	gologger.Info().Msgf("Updating vendor database %s", r.options.VendorDBFile)
	count, err := identity.UpdateVendorDB(ctx, r.options.VendorDBURL, r.options.VendorDBFile)
	if err != nil {
		return errorutil.NewWithErr(err).Msgf("could not update vendor database")
	}
	gologger.Info().Msgf("Vendor database updated with %d prefixes", count)
	return nil
}

// target resolves the interface and subnet to scan, inferring whatever was
// not given on the command line
func (r *Runner) target() (string, string, error) {
	iface, subnet := r.options.Interface, r.options.Subnet
	if iface != "" && subnet != "" {
		return iface, subnet, nil
	}

	var (
		selected netinfo.Interface
		err      error
	)
	if iface != "" {
		selected, err = netinfo.LookupInterface(iface)
	} else {
		selected, err = netinfo.DefaultInterface()
	}
	if err != nil {
		if errors.Is(err, netinfo.ErrNoInterface) && iface != "" {
			return "", "", errorutil.NewWithErr(err).Msgf("interface %s has no IPv4 address, use -cidr", iface)
		}
		return "", "", errorutil.NewWithErr(err).Msgf("could not infer interface and subnet")
	}

	if iface == "" {
		iface = selected.Name
		gologger.Verbose().Msgf("Using interface %s (%s)", iface, selected.IP)
	}
	if subnet == "" {
		subnet = selected.CIDR()
	}
	return iface, subnet, nil
}
