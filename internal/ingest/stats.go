package ingest

import (
	"sync"

	"github.com/banshee-data/vehicle.gate/internal/monitoring"
)

// packetStats accumulates receive counters between periodic log lines.
type packetStats struct {
	mu        sync.Mutex
	packets   uint64
	bytes     uint64
	malformed uint64
}

func (s *packetStats) addPacket(n int) {
	s.mu.Lock()
	s.packets++
	s.bytes += uint64(n)
	s.mu.Unlock()
}

func (s *packetStats) addMalformed() {
	s.mu.Lock()
	s.malformed++
	s.mu.Unlock()
}

func (s *packetStats) logStats() {
	s.mu.Lock()
	packets, bytes, malformed := s.packets, s.bytes, s.malformed
	s.mu.Unlock()
	monitoring.Logf("input stats: %d datagrams, %d bytes, %d malformed", packets, bytes, malformed)
}
