// Package baseline persists the device snapshot of the previous run and
// compares it with a fresh inventory.
package baseline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/projectdiscovery/lanwatch/pkg/fileio"
	"github.com/projectdiscovery/lanwatch/pkg/types"
	fileutil "github.com/projectdiscovery/utils/file"
)

// ErrCorruptBaseline is returned when the baseline file exists but cannot be
// decoded. The returned baseline is empty in that case.
var ErrCorruptBaseline = errors.New("corrupt baseline file")

// Load reads the baseline at path. found reports whether a previous run left
// a usable baseline, even one with no devices. A missing file is an empty
// baseline and not an error.
func Load(path string) (base types.Baseline, found bool, err error) {
	empty := types.Baseline{Devices: []types.Device{}}
	if !fileutil.FileExists(path) {
		return empty, false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return empty, false, fmt.Errorf("could not read baseline %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &base); err != nil {
		return empty, false, fmt.Errorf("%w %s: %v", ErrCorruptBaseline, path, err)
	}
	if base.Devices == nil {
		base.Devices = []types.Device{}
	}
	return base, true, nil
}

// Save writes inventory as the new baseline, replacing the previous file
// atomically
func Save(path string, inventory types.Inventory) error {
	devices := []types.Device(inventory)
	if devices == nil {
		devices = []types.Device{}
	}
	data, err := json.MarshalIndent(types.Baseline{Devices: devices}, "", "  ")
	if err != nil {
		return fmt.Errorf("could not encode baseline: %w", err)
	}
	if err := fileio.WriteAtomic(path, append(data, '\n')); err != nil {
		return fmt.Errorf("could not write baseline %s: %w", path, err)
	}
	return nil
}
