package runner

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/lanwatch/pkg/monitor"
	"github.com/projectdiscovery/lanwatch/pkg/types"
)

// jsonRecord is one line of JSON output
type jsonRecord struct {
	Type    string                `json:"type"`
	Device  *types.Device         `json:"device,omitempty"`
	Anomaly *monitor.Anomaly      `json:"anomaly,omitempty"`
	Deauth  *monitor.DeauthReport `json:"deauth,omitempty"`
}

// writer prints results to stdout, either as text or as JSON lines
type writer struct {
	mu   sync.Mutex
	json bool
}

func newWriter(jsonOutput bool) *writer {
	return &writer{json: jsonOutput}
}

func (w *writer) emit(record jsonRecord) {
	data, err := json.Marshal(record)
	if err != nil {
		gologger.Warning().Msgf("could not encode %s: %s", record.Type, err)
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	gologger.Silent().Msgf("%s", data)
}

func (w *writer) line(format string, args ...interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	gologger.Silent().Msgf(format, args...)
}

// Inventory prints every device
func (w *writer) Inventory(inventory types.Inventory) {
	for i := range inventory {
		device := inventory[i]
		if w.json {
			w.emit(jsonRecord{Type: "device", Device: &device})
			continue
		}
		w.line("%s", formatDevice(device))
	}
}

// Diff prints the delta with the previous baseline
func (w *writer) Diff(diff types.DiffResult, hadBaseline bool) {
	if !w.json {
		for _, line := range diffLines(diff, hadBaseline) {
			w.line("%s", line)
		}
		return
	}
	for i := range diff.Added {
		w.emit(jsonRecord{Type: "added", Device: &diff.Added[i]})
	}
	for i := range diff.Removed {
		w.emit(jsonRecord{Type: "removed", Device: &diff.Removed[i]})
	}
}

// diffLines renders the delta as text. Without a previous baseline every
// device is new, so only removals are listed.
func diffLines(diff types.DiffResult, hadBaseline bool) []string {
	var lines []string
	if hadBaseline {
		for _, device := range diff.Added {
			lines = append(lines, au.BrightGreen("[new]").String()+" "+formatDevice(device))
		}
	}
	for _, device := range diff.Removed {
		lines = append(lines, au.BrightRed("[gone]").String()+" "+formatDevice(device))
	}
	return lines
}

// Anomalies prints the spoof monitor findings
func (w *writer) Anomalies(anomalies []monitor.Anomaly) {
	if len(anomalies) == 0 && !w.json {
		gologger.Info().Msgf("No ARP anomalies observed")
		return
	}
	for i := range anomalies {
		anomaly := anomalies[i]
		if w.json {
			w.emit(jsonRecord{Type: "anomaly", Anomaly: &anomaly})
			continue
		}
		if anomaly.Informational() {
			w.line("%s %s", au.BrightYellow("[info]").String(), anomaly)
			continue
		}
		w.line("%s %s", au.BrightRed("[spoof]").String(), anomaly)
	}
}

// Deauth prints the deauthentication report
func (w *writer) Deauth(report monitor.DeauthReport) {
	if w.json {
		w.emit(jsonRecord{Type: "deauth", Deauth: &report})
		return
	}
	label := au.BrightGreen("[deauth]").String()
	if report.Total > 0 {
		label = au.BrightRed("[deauth]").String()
	}
	for _, note := range report.Notes {
		w.line("%s %s", label, note)
	}
}

func formatDevice(device types.Device) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-15s", device.IP))
	mac := device.MAC
	if mac == "" {
		mac = "-"
	}
	b.WriteString(fmt.Sprintf(" %-17s", mac))

	name := device.Hostname
	if device.Alias != "" {
		name = au.BrightCyan(device.Alias).String()
		if device.Hostname != "" {
			name += " (" + device.Hostname + ")"
		}
	}
	if name != "" {
		b.WriteString(" " + name)
	}
	if device.Note != "" {
		b.WriteString(" " + au.Gray(12, "["+device.Note+"]").String())
	}
	return b.String()
}
