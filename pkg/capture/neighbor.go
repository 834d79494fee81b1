package capture

import (
	"bufio"
	"net"
	"strings"

	"github.com/projectdiscovery/lanwatch/pkg/types"
)

// NeighborTable implements Capability
func (l *Link) NeighborTable() (map[string]string, error) {
	return readNeighborTable()
}

// parseProcNetARP parses the contents of /proc/net/arp
//
// Format: IP address HW type Flags HW address Mask Device
func parseProcNetARP(data string) (map[string]string, error) {
	table := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(data))

	// header
	if !scanner.Scan() {
		return table, scanner.Err()
	}

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 6 {
			continue
		}
		addNeighbor(table, fields[0], fields[3])
	}
	return table, scanner.Err()
}

// parseDarwinARP parses the output of `arp -a` on macOS and BSDs
//
//	? (192.168.1.1) at aa:bb:cc:dd:ee:ff on en0 ifscope [ethernet]
func parseDarwinARP(output string) (map[string]string, error) {
	table := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(output))

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		ipStart := strings.Index(line, "(")
		ipEnd := strings.Index(line, ")")
		if ipStart == -1 || ipEnd == -1 || ipStart >= ipEnd {
			continue
		}
		atIndex := strings.Index(line, " at ")
		if atIndex == -1 {
			continue
		}
		rest := strings.Fields(line[atIndex+4:])
		if len(rest) == 0 {
			continue
		}
		addNeighbor(table, line[ipStart+1:ipEnd], darwinMAC(rest[0]))
	}
	return table, scanner.Err()
}

// darwinMAC pads the single digit octets macOS prints (0:1a:2b:...)
func darwinMAC(mac string) string {
	parts := strings.Split(mac, ":")
	if len(parts) != 6 {
		return mac
	}
	for i, part := range parts {
		if len(part) == 1 {
			parts[i] = "0" + part
		}
	}
	return strings.Join(parts, ":")
}

// parseWindowsARP parses the output of `arp -a` on Windows
//
//	Interface: 192.168.1.100 --- 0xa
//	  Internet Address      Physical Address      Type
//	  192.168.1.1           aa-bb-cc-dd-ee-ff     dynamic
func parseWindowsARP(output string) (map[string]string, error) {
	table := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(output))

	inTable := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "Interface:") {
			inTable = false
			continue
		}
		if strings.Contains(line, "Internet Address") && strings.Contains(line, "Physical Address") {
			inTable = true
			continue
		}
		if !inTable {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		addNeighbor(table, fields[0], fields[1])
	}
	return table, scanner.Err()
}

// addNeighbor stores a valid unicast IPv4 entry
func addNeighbor(table map[string]string, ipStr, macStr string) {
	ip := net.ParseIP(ipStr).To4()
	if ip == nil {
		return
	}
	mac, err := net.ParseMAC(types.NormalizeMAC(macStr))
	if err != nil || len(mac) != 6 {
		return
	}
	switch mac.String() {
	case "00:00:00:00:00:00", "ff:ff:ff:ff:ff:ff":
		return
	}
	if mac[0]&0x01 != 0 {
		// multicast group address
		return
	}
	table[ip.String()] = mac.String()
}
