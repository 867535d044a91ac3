//go:build !pcap
// +build !pcap

package ingest

import (
	"context"
	"fmt"
)

// ReplayPCAPFile is a stub when PCAP support is disabled.
// Build with -tags=pcap to enable replay.
func ReplayPCAPFile(ctx context.Context, pcapFile string, udpPort int, listener *UDPListener) error {
	return fmt.Errorf("PCAP support not enabled: rebuild with -tags=pcap to enable replay")
}
