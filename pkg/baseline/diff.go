package baseline

import "github.com/projectdiscovery/lanwatch/pkg/types"

// Diff compares the baseline with a new inventory by (ip, mac). A device
// whose hostname or note changed but keeps both keys is neither added nor
// removed. Both result slices are sorted by IP.
func Diff(base types.Baseline, inventory types.Inventory) types.DiffResult {
	previous := index(base.Devices)
	current := index(inventory)

	result := types.DiffResult{
		Added:   []types.Device{},
		Removed: []types.Device{},
	}
	for key, device := range current {
		if _, ok := previous[key]; !ok {
			result.Added = append(result.Added, device)
		}
	}
	for key, device := range previous {
		if _, ok := current[key]; !ok {
			result.Removed = append(result.Removed, device)
		}
	}

	types.SortByIP(result.Added)
	types.SortByIP(result.Removed)
	return result
}

// index keys devices by (ip, mac), later entries win
func index(devices []types.Device) map[types.DeviceKey]types.Device {
	out := make(map[types.DeviceKey]types.Device, len(devices))
	for _, device := range devices {
		out[device.Key()] = device
	}
	return out
}
