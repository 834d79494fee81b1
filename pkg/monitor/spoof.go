package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/lanwatch/pkg/capture"
	"github.com/rs/xid"
)

// Anomaly is one finding of the spoof monitor. Informational anomalies carry
// only Info and report that the session could not observe anything.
type Anomaly struct {
	IP          string `json:"ip,omitempty"`
	PreviousMAC string `json:"previous_mac,omitempty"`
	NewMAC      string `json:"new_mac,omitempty"`
	Info        string `json:"info,omitempty"`
}

// Informational reports whether the anomaly is a session note rather than a
// detected address change
func (a Anomaly) Informational() bool {
	return a.Info != ""
}

func (a Anomaly) String() string {
	if a.Informational() {
		return a.Info
	}
	return fmt.Sprintf("suspicious ARP change: %s -> %s now %s", a.IP, a.PreviousMAC, a.NewMAC)
}

// AddressTable remembers the last hardware address claimed for every IP
type AddressTable struct {
	entries map[string]string
}

// NewAddressTable returns an empty table
func NewAddressTable() *AddressTable {
	return &AddressTable{entries: make(map[string]string)}
}

// Observe records that mac claimed ip. When ip was previously claimed by a
// different address the change is returned as an anomaly. The entry is
// always overwritten.
func (t *AddressTable) Observe(ip, mac string) (Anomaly, bool) {
	previous, seen := t.entries[ip]
	t.entries[ip] = mac
	if !seen || previous == mac {
		return Anomaly{}, false
	}
	return Anomaly{IP: ip, PreviousMAC: previous, NewMAC: mac}, true
}

// Len returns the number of known IPs
func (t *AddressTable) Len() int {
	return len(t.entries)
}

// SpoofMonitor watches ARP replies for IPs that change hardware address
type SpoofMonitor struct {
	capability capture.Capability
	iface      string
}

// NewSpoofMonitor creates a monitor listening on iface, an empty iface lets
// the capability choose a device
func NewSpoofMonitor(capability capture.Capability, iface string) *SpoofMonitor {
	return &SpoofMonitor{capability: capability, iface: iface}
}

// Run listens for duration or until ctx is done and returns the anomalies in
// the order they were detected. A capture that cannot be opened yields a
// single informational anomaly.
func (m *SpoofMonitor) Run(ctx context.Context, duration time.Duration) []Anomaly {
	sessionID := xid.New().String()

	source, err := m.capability.Stream(ctx, m.iface, "arp")
	if err != nil {
		gologger.Verbose().Msgf("[%s] ARP capture failed: %s", sessionID, err)
		return []Anomaly{{Info: fmt.Sprintf("ARP capture not available, libpcap/Npcap missing or insufficient permissions (%s)", err)}}
	}
	defer source.Close()

	gologger.Verbose().Msgf("[%s] watching ARP replies for %s", sessionID, duration)

	table := NewAddressTable()
	anomalies := []Anomaly{}
	timer := time.NewTimer(duration)
	defer timer.Stop()

	packets := source.Packets()
	for {
		select {
		case <-ctx.Done():
			return anomalies
		case <-timer.C:
			return anomalies
		case packet, ok := <-packets:
			if !ok {
				gologger.Verbose().Msgf("[%s] capture ended after %d addresses", sessionID, table.Len())
				return anomalies
			}
			reply, ok := capture.ParseARPReply(packet)
			if !ok {
				continue
			}
			if anomaly, changed := table.Observe(reply.IP.String(), reply.MAC.String()); changed {
				gologger.Warning().Msgf("[%s] %s", sessionID, anomaly)
				anomalies = append(anomalies, anomaly)
			}
		}
	}
}
