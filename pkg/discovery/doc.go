// Package discovery builds the device inventory of a subnet.
//
// The preferred strategy broadcasts ARP requests on the interface in two
// passes and turns every reply into a device. When link-layer capture is
// missing or denied the engine falls back to an ICMP probe sweep:
//   - every host receives a single echo request
//   - responders get short TCP connections so the OS resolves their address
//   - after a settle delay the OS neighbor table provides the hardware
//     addresses
//
// Both strategies end in the same finalize step: deduplicate by IP keeping
// the last record, enrich names and vendors, sort by IP.
package discovery
