package monitor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/lanwatch/pkg/capture"
	osutils "github.com/projectdiscovery/utils/os"
	"github.com/rs/xid"
)

const (
	// TopOffenders is the number of sources listed in a report
	TopOffenders = 5
	// UnknownSource is counted for frames without a transmitter address
	UnknownSource = "unknown"
	// deauthFilter keeps only deauthentication management frames
	deauthFilter = "type mgt subtype deauth"
)

// Offender is a transmitter of deauthentication frames
type Offender struct {
	MAC   string `json:"mac"`
	Count int    `json:"count"`
}

// OffenderTable counts deauthentication frames per source address
type OffenderTable struct {
	counts map[string]int
	order  []string
	total  int
}

// NewOffenderTable returns an empty table
func NewOffenderTable() *OffenderTable {
	return &OffenderTable{counts: make(map[string]int)}
}

// Observe counts one frame sent by src
func (t *OffenderTable) Observe(src string) {
	if src == "" {
		src = UnknownSource
	}
	if _, ok := t.counts[src]; !ok {
		t.order = append(t.order, src)
	}
	t.counts[src]++
	t.total++
}

// Total returns the number of frames observed
func (t *OffenderTable) Total() int {
	return t.total
}

// Top returns up to n sources by descending count, ties in first seen order
func (t *OffenderTable) Top(n int) []Offender {
	offenders := make([]Offender, 0, len(t.order))
	for _, mac := range t.order {
		offenders = append(offenders, Offender{MAC: mac, Count: t.counts[mac]})
	}
	sort.SliceStable(offenders, func(i, j int) bool {
		return offenders[i].Count > offenders[j].Count
	})
	if len(offenders) > n {
		offenders = offenders[:n]
	}
	return offenders
}

// DeauthReport is the outcome of a deauthentication session
type DeauthReport struct {
	Total     int        `json:"total"`
	Offenders []Offender `json:"offenders"`
	Notes     []string   `json:"notes"`
}

// DeauthMonitor counts 802.11 deauthentication frames on a monitor mode
// interface
type DeauthMonitor struct {
	capability capture.Capability
	iface      string
	isLinux    func() bool
}

// NewDeauthMonitor creates a monitor for iface, which must be in monitor mode
func NewDeauthMonitor(capability capture.Capability, iface string) *DeauthMonitor {
	return &DeauthMonitor{
		capability: capability,
		iface:      iface,
		isLinux:    osutils.IsLinux,
	}
}

// Run captures for duration or until ctx is done. Unsupported platforms and
// capture failures produce a report with a single informational note.
func (m *DeauthMonitor) Run(ctx context.Context, duration time.Duration) DeauthReport {
	if !m.isLinux() {
		return DeauthReport{Notes: []string{"Deauthentication detection is only supported on Linux with a monitor mode interface."}}
	}

	sessionID := xid.New().String()
	source, err := m.capability.Stream(ctx, m.iface, deauthFilter)
	if err != nil {
		gologger.Verbose().Msgf("[%s] deauth capture failed: %s", sessionID, err)
		return DeauthReport{Notes: []string{fmt.Sprintf("Deauthentication capture not available on %s (%s)", m.iface, err)}}
	}
	defer source.Close()

	gologger.Verbose().Msgf("[%s] counting deauthentication frames on %s for %s", sessionID, m.iface, duration)

	table := NewOffenderTable()
	timer := time.NewTimer(duration)
	defer timer.Stop()

	packets := source.Packets()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-timer.C:
			break loop
		case packet, ok := <-packets:
			if !ok {
				break loop
			}
			if src, ok := ParseDeauth(packet); ok {
				table.Observe(src)
			}
		}
	}
	return buildReport(table)
}

func buildReport(table *OffenderTable) DeauthReport {
	report := DeauthReport{
		Total:     table.Total(),
		Offenders: table.Top(TopOffenders),
	}
	report.Notes = append(report.Notes, fmt.Sprintf("Deauth frames total: %d", report.Total))
	for _, offender := range report.Offenders {
		report.Notes = append(report.Notes, fmt.Sprintf("Possible deauth source %s: %d frames", offender.MAC, offender.Count))
	}
	if report.Total == 0 {
		report.Notes = append(report.Notes, "No deauthentication frames observed in the period.")
	}
	return report
}

// ParseDeauth returns the transmitter address of a deauthentication frame
func ParseDeauth(packet gopacket.Packet) (string, bool) {
	if packet == nil {
		return "", false
	}
	dot11Layer := packet.Layer(layers.LayerTypeDot11)
	if dot11Layer == nil {
		return "", false
	}
	dot11, ok := dot11Layer.(*layers.Dot11)
	if !ok || dot11.Type != layers.Dot11TypeMgmtDeauthentication {
		return "", false
	}
	if len(dot11.Address2) == 0 {
		return "", true
	}
	return dot11.Address2.String(), true
}
