package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/vehicle.gate/internal/gate"
	"github.com/banshee-data/vehicle.gate/internal/monitoring"
)

// UDPEmitter sends each tick output to the vehicle interface as one JSON
// datagram. Sends are queued through a buffered channel so a slow or
// failing socket never stalls the tick.
type UDPEmitter struct {
	conn        *net.UDPConn
	channel     chan []byte
	logInterval time.Duration
	address     string
}

// NewUDPEmitter dials the vehicle interface address.
func NewUDPEmitter(address string, logInterval time.Duration) (*UDPEmitter, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve emit address: %w", err)
	}

	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create emit connection: %w", err)
	}

	if logInterval == 0 {
		logInterval = time.Minute
	}

	return &UDPEmitter{
		conn:        conn,
		channel:     make(chan []byte, 1000),
		logInterval: logInterval,
		address:     address,
	}, nil
}

// Start begins the send goroutine.
func (e *UDPEmitter) Start(ctx context.Context) {
	go func() {
		droppedCount := 0
		var lastError error
		ticker := time.NewTicker(e.logInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case datagram := <-e.channel:
				_, err := e.conn.Write(datagram)
				if err != nil {
					droppedCount++
					lastError = err
				}
			case <-ticker.C:
				if droppedCount > 0 && lastError != nil {
					monitoring.Logf("\033[93mDropped %d emitted commands due to errors (latest: %v)\033[0m", droppedCount, lastError)
					droppedCount = 0
					lastError = nil
				}
			}
		}
	}()

	monitoring.Logf("emitting commands to %s", e.address)
}

// Emit implements gate.Emitter.
func (e *UDPEmitter) Emit(out gate.TickOutput) {
	data, err := json.Marshal(out)
	if err != nil {
		monitoring.Logf("failed to marshal tick output: %v", err)
		return
	}
	select {
	case e.channel <- data:
	default:
		// Queue full; the next tick supersedes this one anyway.
	}
}

// Close closes the UDP connection.
func (e *UDPEmitter) Close() error {
	return e.conn.Close()
}
