package types

import (
	"net"
	"sort"
	"strings"
)

// Note tokens attached to a device. Report consumers match on these
// prefixes, so the exact strings must not change.
const (
	NoteVendorPrefix = "vendor:"
	NotePrivateMAC   = "mac:private"
	NoteExtraName    = "name:extra"
	NoteCustomAlias  = "alias:custom"
	NoteProbeSweep   = "icmp+os-arp"
	NoteGuessIOS     = "guess:Apple(iOS private MAC)"
)

const noteSeparator = ", "

// Device represents one host discovered on the subnet
type Device struct {
	IP       string `json:"ip"`
	MAC      string `json:"mac"`
	Hostname string `json:"hostname"`
	Note     string `json:"note"`
	Alias    string `json:"alias,omitempty"`
}

// AddNote appends a token to the note list
func (d *Device) AddNote(token string) {
	if token == "" {
		return
	}
	if d.Note == "" {
		d.Note = token
		return
	}
	d.Note += noteSeparator + token
}

// notePrefixes start every token AddNote is called with. Vendor names may
// contain the separator ("Apple, Inc."), so a piece that starts with none
// of them belongs to the previous token.
var notePrefixes = []string{
	NoteVendorPrefix,
	NotePrivateMAC,
	NoteExtraName,
	NoteCustomAlias,
	NoteProbeSweep,
	"guess:",
}

// NoteTokens returns the note split into its tokens
func (d Device) NoteTokens() []string {
	if d.Note == "" {
		return nil
	}
	parts := strings.Split(d.Note, noteSeparator)
	tokens := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		if len(tokens) > 0 && !isNoteToken(part) {
			tokens[len(tokens)-1] += noteSeparator + part
			continue
		}
		tokens = append(tokens, strings.TrimSpace(part))
	}
	return tokens
}

func isNoteToken(part string) bool {
	for _, prefix := range notePrefixes {
		if strings.HasPrefix(part, prefix) {
			return true
		}
	}
	return false
}

// HasNote reports whether any note token starts with prefix
func (d Device) HasNote(prefix string) bool {
	for _, token := range d.NoteTokens() {
		if strings.HasPrefix(token, prefix) {
			return true
		}
	}
	return false
}

// NormalizeMAC returns the lowercase colon separated form of a hardware
// address, the form used in inventories, baselines and alias tables
func NormalizeMAC(mac string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(mac), "-", ":"))
}

// Key returns the identity of the device used for baseline comparison
func (d Device) Key() DeviceKey {
	return DeviceKey{IP: d.IP, MAC: d.MAC}
}

// DeviceKey identifies a device across runs. Both fields are compared
// verbatim.
type DeviceKey struct {
	IP  string
	MAC string
}

// Inventory is the device list produced by one discovery run
type Inventory []Device

// Baseline wraps the inventory persisted by the previous run
type Baseline struct {
	Devices []Device `json:"devices"`
}

// DiffResult holds the delta between a baseline and a new inventory
type DiffResult struct {
	Added   []Device
	Removed []Device
}

// Empty reports whether nothing changed
func (r DiffResult) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0
}

// SortByIP orders devices ascending by their IPv4 octets, then by MAC
func SortByIP(devices []Device) {
	sort.SliceStable(devices, func(i, j int) bool {
		if c := CompareIP(devices[i].IP, devices[j].IP); c != 0 {
			return c < 0
		}
		return devices[i].MAC < devices[j].MAC
	})
}

// CompareIP compares two dotted-quad addresses numerically. Returns -1 if a < b,
// 0 if equal, 1 if a > b. Unparseable addresses sort after valid ones and
// fall back to string comparison among themselves.
func CompareIP(a, b string) int {
	ipA := net.ParseIP(a).To4()
	ipB := net.ParseIP(b).To4()

	switch {
	case ipA == nil && ipB == nil:
		return strings.Compare(a, b)
	case ipA == nil:
		return 1
	case ipB == nil:
		return -1
	}

	for i := 0; i < net.IPv4len; i++ {
		if ipA[i] < ipB[i] {
			return -1
		}
		if ipA[i] > ipB[i] {
			return 1
		}
	}
	return 0
}
