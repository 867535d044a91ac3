//go:build pcap
// +build pcap

// Command pcap-replay resends captured input datagrams to a running
// gate, preserving capture pacing. Build with -tags=pcap.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

var (
	pcapFile = flag.String("pcap", "", "PCAP file to replay (required)")
	udpPort  = flag.Int("port", 9870, "UDP port filter within the capture")
	target   = flag.String("target", "127.0.0.1:9870", "Address to replay datagrams to")
	rate     = flag.Float64("rate", 1.0, "Playback rate multiplier (2.0 = twice as fast)")
)

func main() {
	flag.Parse()

	if *pcapFile == "" {
		log.Fatal("-pcap is required")
	}
	if *rate <= 0 {
		log.Fatal("-rate must be positive")
	}

	addr, err := net.ResolveUDPAddr("udp", *target)
	if err != nil {
		log.Fatalf("failed to resolve target: %v", err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		log.Fatalf("failed to dial target: %v", err)
	}
	defer conn.Close()

	handle, err := pcap.OpenOffline(*pcapFile)
	if err != nil {
		log.Fatalf("failed to open PCAP file: %v", err)
	}
	defer handle.Close()

	if err := handle.SetBPFFilter(fmt.Sprintf("udp port %d", *udpPort)); err != nil {
		log.Fatalf("failed to set BPF filter: %v", err)
	}

	source := gopacket.NewPacketSource(handle, handle.LinkType())

	var lastCapture time.Time
	sent := 0
	start := time.Now()

	for packet := range source.Packets() {
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}

		captureTime := packet.Metadata().Timestamp
		if !lastCapture.IsZero() {
			gap := captureTime.Sub(lastCapture)
			if gap > 0 {
				time.Sleep(time.Duration(float64(gap) / *rate))
			}
		}
		lastCapture = captureTime

		if _, err := conn.Write(udp.Payload); err != nil {
			log.Printf("send failed: %v", err)
			continue
		}
		sent++
	}

	log.Printf("replayed %d datagrams in %v", sent, time.Since(start))
}
