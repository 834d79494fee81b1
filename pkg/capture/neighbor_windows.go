//go:build windows

package capture

import (
	"fmt"
	"os/exec"
)

// readNeighborTable reads the local ARP table on Windows using 'arp -a'
func readNeighborTable() (map[string]string, error) {
	output, err := exec.Command("arp", "-a").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to execute arp -a: %w", err)
	}
	return parseWindowsARP(string(output))
}
