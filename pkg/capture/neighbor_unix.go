//go:build !windows

package capture

import (
	"fmt"
	"os"
	"os/exec"

	osutils "github.com/projectdiscovery/utils/os"
)

// readNeighborTable reads the local ARP table (Linux and macOS)
func readNeighborTable() (map[string]string, error) {
	if osutils.IsLinux() {
		data, err := os.ReadFile("/proc/net/arp")
		if err != nil {
			return nil, err
		}
		return parseProcNetARP(string(data))
	}

	output, err := exec.Command("arp", "-an").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to execute arp -an: %w", err)
	}
	return parseDarwinARP(string(output))
}
