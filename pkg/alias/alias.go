// Package alias applies operator chosen friendly names to devices.
//
// The alias file maps hardware addresses and IPs to names:
//
//	{
//	  "by_mac": {"aa:bb:cc:dd:ee:ff": {"alias": "Living room TV"}},
//	  "by_ip":  {"192.168.1.100": {"alias": "NAS"}}
//	}
package alias

import (
	"os"
	"strings"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/lanwatch/pkg/types"
	fileutil "github.com/projectdiscovery/utils/file"
	"github.com/tidwall/gjson"
)

// Table holds aliases keyed by normalized MAC and by IP
type Table struct {
	ByMAC map[string]string
	ByIP  map[string]string
}

// NewTable returns an empty table
func NewTable() *Table {
	return &Table{
		ByMAC: map[string]string{},
		ByIP:  map[string]string{},
	}
}

// Load reads the alias file at path. A missing or broken file yields an
// empty table.
func Load(path string) *Table {
	table := NewTable()
	if path == "" || !fileutil.FileExists(path) {
		return table
	}
	data, err := os.ReadFile(path)
	if err != nil {
		gologger.Warning().Msgf("could not read aliases %s: %s", path, err)
		return table
	}
	if !gjson.ValidBytes(data) {
		gologger.Warning().Msgf("ignoring invalid alias file %s", path)
		return table
	}
	return Parse(data)
}

// Parse builds a table from the JSON alias document
func Parse(data []byte) *Table {
	table := NewTable()
	result := gjson.ParseBytes(data)

	result.Get("by_mac").ForEach(func(key, value gjson.Result) bool {
		if name := value.Get("alias").String(); name != "" {
			table.ByMAC[types.NormalizeMAC(key.String())] = name
		}
		return true
	})
	result.Get("by_ip").ForEach(func(key, value gjson.Result) bool {
		if name := value.Get("alias").String(); name != "" {
			table.ByIP[strings.TrimSpace(key.String())] = name
		}
		return true
	})
	return table
}

// Len returns the number of aliases
func (t *Table) Len() int {
	return len(t.ByMAC) + len(t.ByIP)
}

// Lookup returns the alias of a device, MAC aliases win over IP aliases
func (t *Table) Lookup(device types.Device) (string, bool) {
	if mac := types.NormalizeMAC(device.MAC); mac != "" {
		if name, ok := t.ByMAC[mac]; ok {
			return name, true
		}
	}
	name, ok := t.ByIP[device.IP]
	return name, ok
}

// Apply sets the alias of every matching device and tags it with
// alias:custom. It returns the number of devices aliased.
func (t *Table) Apply(inventory types.Inventory) int {
	applied := 0
	for i := range inventory {
		name, ok := t.Lookup(inventory[i])
		if !ok {
			continue
		}
		inventory[i].Alias = name
		inventory[i].AddNote(types.NoteCustomAlias)
		applied++
	}
	return applied
}
