package runner

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/logrusorgru/aurora/v4"
	"github.com/projectdiscovery/goflags"
	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/gologger/formatter"
	"github.com/projectdiscovery/gologger/levels"
	"github.com/projectdiscovery/lanwatch/pkg/discovery"
	"github.com/projectdiscovery/lanwatch/pkg/identity"
	"github.com/projectdiscovery/lanwatch/pkg/version"
	envutil "github.com/projectdiscovery/utils/env"
	fileutil "github.com/projectdiscovery/utils/file"
	folderutil "github.com/projectdiscovery/utils/folder"
)

var au *aurora.Aurora

var (
	defaultConfigDir = filepath.Join(folderutil.HomeDirOrDefault("."), ".lanwatch")

	InterfaceEnv = envutil.GetEnvOrDefault("LANWATCH_IFACE", "")
	SubnetEnv    = envutil.GetEnvOrDefault("LANWATCH_CIDR", "")
	BaselineEnv  = envutil.GetEnvOrDefault("LANWATCH_BASELINE", filepath.Join(defaultConfigDir, "baseline.json"))
	AliasesEnv   = envutil.GetEnvOrDefault("LANWATCH_ALIASES", filepath.Join(defaultConfigDir, "aliases.json"))
	VendorDBEnv  = envutil.GetEnvOrDefault("LANWATCH_OUI_DB", identity.DefaultVendorDBPath())
	VerboseEnv   = envutil.GetEnvOrDefault("LANWATCH_VERBOSE", "false")
)

// defaultTimeout is the -timeout default in seconds
var defaultTimeout = int(discovery.DefaultTimeout / time.Second)

// Mode is the operation selected on the command line
type Mode string

const (
	ModeScan          Mode = "scan"
	ModeWatchARP      Mode = "watch-arp"
	ModeDeauth        Mode = "deauth"
	ModeVendorsUpdate Mode = "vendors-update"
)

// Options contains the configuration options for lanwatch
type Options struct {
	Interface string
	Subnet    string

	Scan          bool
	WatchARP      bool
	Deauth        bool
	VendorsUpdate bool

	Timeout      int
	Concurrency  int
	ProbeTimeout int
	NoMDNS       bool

	WatchDuration  int
	DeauthDuration int

	BaselineFile   string
	AliasesFile    string
	VendorDBFile   string
	VendorDBURL    string
	NoSaveBaseline bool

	JSON    bool
	Verbose bool
	Silent  bool
	NoColor bool
	Version bool
}

var errMultipleModes = errors.New("only one of -scan, -watch-arp, -deauth and -vendors-update can be used")

// ParseOptions parses the command line flags provided by a user
func ParseOptions() *Options {
	options := &Options{}
	flagSet := goflags.NewFlagSet()

	flagSet.SetDescription(`lanwatch discovers hosts on the local network, diffs them against the previous run and watches for ARP spoofing and deauthentication attacks`)

	flagSet.CreateGroup("input", "Input",
		flagSet.StringVarP(&options.Interface, "interface", "i", InterfaceEnv, "network interface to use (default: inferred)"),
		flagSet.StringVarP(&options.Subnet, "cidr", "c", SubnetEnv, "subnet to scan in CIDR notation (default: network of the interface)"),
	)

	flagSet.CreateGroup("mode", "Mode",
		flagSet.BoolVar(&options.Scan, "scan", false, "discover devices and compare with the baseline (default)"),
		flagSet.BoolVarP(&options.WatchARP, "watch-arp", "wa", false, "watch ARP replies for spoofing"),
		flagSet.BoolVarP(&options.Deauth, "deauth", "da", false, "count 802.11 deauthentication frames (linux, monitor mode interface)"),
		flagSet.BoolVarP(&options.VendorsUpdate, "vendors-update", "vu", false, "download the latest IEEE vendor database"),
	)

	flagSet.CreateGroup("scan", "Scan",
		flagSet.IntVarP(&options.Timeout, "timeout", "t", defaultTimeout, "seconds to wait for ARP replies per attempt"),
		flagSet.IntVarP(&options.ProbeTimeout, "probe-timeout", "pt", 600, "milliseconds to wait for each ICMP echo reply in the fallback sweep"),
		flagSet.IntVar(&options.Concurrency, "concurrency", 64, "number of parallel probes and name lookups"),
		flagSet.BoolVarP(&options.NoMDNS, "no-mdns", "nm", false, "disable multicast DNS name lookups"),
	)

	flagSet.CreateGroup("monitor", "Monitor",
		flagSet.IntVarP(&options.WatchDuration, "watch-duration", "wd", 60, "seconds to watch ARP replies"),
		flagSet.IntVarP(&options.DeauthDuration, "deauth-duration", "dd", 5, "minutes to count deauthentication frames"),
	)

	flagSet.CreateGroup("files", "Files",
		flagSet.StringVarP(&options.BaselineFile, "baseline", "b", BaselineEnv, "baseline file of the previous scan"),
		flagSet.BoolVarP(&options.NoSaveBaseline, "no-save", "ns", false, "do not replace the baseline with the new scan"),
		flagSet.StringVarP(&options.AliasesFile, "aliases", "a", AliasesEnv, "alias file with friendly device names"),
		flagSet.StringVar(&options.VendorDBFile, "oui-db", VendorDBEnv, "vendor database (IEEE oui.csv, oui.txt or manuf)"),
		flagSet.StringVar(&options.VendorDBURL, "oui-url", identity.DefaultVendorDBURL, "vendor database download url"),
	)

	flagSet.CreateGroup("output", "Output",
		flagSet.BoolVarP(&options.JSON, "json", "j", false, "write results in JSON lines format"),
		flagSet.BoolVar(&options.Silent, "silent", false, "show only results in output"),
		flagSet.BoolVarP(&options.Verbose, "verbose", "v", envBool(VerboseEnv), "show verbose output"),
		flagSet.BoolVarP(&options.NoColor, "no-color", "nc", false, "disable output content coloring (ANSI escape codes)"),
		flagSet.BoolVar(&options.Version, "version", false, "show version of the project"),
	)

	if err := flagSet.Parse(); err != nil {
		gologger.Fatal().Msgf("%s\n", err)
	}

	// configure aurora for logging
	au = aurora.New(aurora.WithColors(true))

	options.configureOutput()

	showBanner()

	if options.Version {
		gologger.Info().Msgf("Current Version: %s\n", version.GetVersion())
		os.Exit(0)
	}

	if err := options.validateOptions(); err != nil {
		gologger.Fatal().Msgf("Program exiting: %s\n", err)
	}

	return options
}

// Mode returns the selected operation, scan when none was given
func (options *Options) Mode() Mode {
	switch {
	case options.WatchARP:
		return ModeWatchARP
	case options.Deauth:
		return ModeDeauth
	case options.VendorsUpdate:
		return ModeVendorsUpdate
	default:
		return ModeScan
	}
}

// validateOptions checks that the flags are consistent
func (options *Options) validateOptions() error {
	modes := 0
	for _, enabled := range []bool{options.Scan, options.WatchARP, options.Deauth, options.VendorsUpdate} {
		if enabled {
			modes++
		}
	}
	if modes > 1 {
		return errMultipleModes
	}
	if options.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if options.ProbeTimeout <= 0 {
		return errors.New("probe timeout must be positive")
	}
	if options.WatchDuration <= 0 || options.DeauthDuration <= 0 {
		return errors.New("monitor durations must be positive")
	}
	if options.Deauth && options.Interface == "" {
		return errors.New("deauthentication detection needs a monitor mode interface (-interface)")
	}
	if options.AliasesFile != "" && !fileutil.FileExists(options.AliasesFile) {
		gologger.Verbose().Msgf("alias file %s not found, no aliases applied", options.AliasesFile)
	}
	return nil
}

// configureOutput configures the output on the screen
func (options *Options) configureOutput() {
	// If the user desires verbose output, show verbose output
	if options.Verbose {
		gologger.DefaultLogger.SetMaxLevel(levels.LevelVerbose)
	}
	if options.NoColor {
		gologger.DefaultLogger.SetFormatter(formatter.NewCLI(true))
		au = aurora.New(aurora.WithColors(false))
	}
	if options.Silent {
		gologger.DefaultLogger.SetMaxLevel(levels.LevelSilent)
	}
}

// envBool reads a boolean environment default, false when unset or invalid
func envBool(value string) bool {
	enabled, err := strconv.ParseBool(value)
	return err == nil && enabled
}
