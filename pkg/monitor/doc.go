// Package monitor implements time bounded anomaly detectors on top of a
// capture.Capability frame stream: the ARP spoof monitor and the 802.11
// deauthentication monitor. Each session owns its table and its capture
// handle; nothing is persisted between sessions.
package monitor
