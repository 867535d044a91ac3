// Package ingest receives the gate's input feeds over UDP. Each
// datagram is one JSON envelope: a type tag plus the payload for that
// input channel. The listener decodes envelopes and pushes them into
// the controller's input cache; the newest value always wins.
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

// Sink is the controller surface the listener feeds.
type Sink interface {
	UpdateAutoCommand(gate.ControlCommand)
	UpdateExternalCommand(gate.ControlCommand)
	UpdateTurnIndicator(gate.GateMode, gate.TurnIndicatorCommand)
	UpdateHazardLights(gate.GateMode, gate.HazardLightsCommand)
	UpdateGear(gate.GateMode, gate.GearCommand)
	UpdateOdometry(speed float64, stamp time.Time)
	UpdateSteering(angle float64, stamp time.Time)
	UpdateAcceleration(accel float64, stamp time.Time)
	UpdateOperationMode(gate.OperationModeState)
	UpdateUpstreamMrm(gate.UpstreamMrmState)
}

// Envelope is the wire format for one input datagram.
type Envelope struct {
	Type    string          `json:"type"`
	Source  string          `json:"source,omitempty"`
	Stamp   time.Time       `json:"stamp"`
	Payload json.RawMessage `json:"payload"`
}

// Envelope type tags.
const (
	TypeControlAuto     = "control_auto"
	TypeControlExternal = "control_external"
	TypeTurnIndicator   = "turn_indicator"
	TypeHazardLights    = "hazard_lights"
	TypeGear            = "gear"
	TypeOdometry        = "odometry"
	TypeSteering        = "steering"
	TypeAcceleration    = "acceleration"
	TypeOperationMode   = "operation_mode"
	TypeUpstreamMrm     = "upstream_mrm"
)

type scalarPayload struct {
	Value float64 `json:"value"`
}

// UDPListenerConfig configures the input listener.
type UDPListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Sink        Sink
}

// UDPListener receives input envelopes and dispatches them to the sink.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	sink        Sink
	conn        *net.UDPConn
	stats       packetStats
}

// NewUDPListener creates a listener; Start must be called to begin
// receiving.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}
	return &UDPListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		sink:        config.Sink,
	}
}

// Start listens for input datagrams until the context is cancelled.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.conn = conn
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Logf("Warning: failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}

	monitoring.Logf("input listener started on %s", l.address)

	go l.startStatsLogging(ctx)

	buffer := make([]byte, 4096)

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("input listener stopping due to context cancellation")
			return ctx.Err()
		default:
			// Read deadline lets the loop observe cancellation.
			conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

			n, addr, err := conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				monitoring.Logf("UDP read error: %v", err)
				continue
			}

			if err := l.HandleDatagram(buffer[:n]); err != nil {
				l.stats.addMalformed()
				monitoring.Logf("error handling datagram from %v: %v", addr, err)
			}
		}
	}
}

// HandleDatagram decodes one envelope and dispatches it. Exposed for the
// pcap replay path, which feeds captured payloads through the same
// dispatch.
func (l *UDPListener) HandleDatagram(datagram []byte) error {
	l.stats.addPacket(len(datagram))

	var env Envelope
	if err := json.Unmarshal(datagram, &env); err != nil {
		return fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return l.dispatch(env)
}

func (l *UDPListener) dispatch(env Envelope) error {
	switch env.Type {
	case TypeControlAuto, TypeControlExternal:
		var cmd gate.ControlCommand
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			return fmt.Errorf("bad %s payload: %w", env.Type, err)
		}
		if cmd.Stamp.IsZero() {
			cmd.Stamp = env.Stamp
		}
		if env.Type == TypeControlAuto {
			l.sink.UpdateAutoCommand(cmd)
		} else {
			l.sink.UpdateExternalCommand(cmd)
		}

	case TypeTurnIndicator:
		var cmd gate.TurnIndicatorCommand
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			return fmt.Errorf("bad turn indicator payload: %w", err)
		}
		l.sink.UpdateTurnIndicator(sourceMode(env.Source), cmd)

	case TypeHazardLights:
		var cmd gate.HazardLightsCommand
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			return fmt.Errorf("bad hazard lights payload: %w", err)
		}
		l.sink.UpdateHazardLights(sourceMode(env.Source), cmd)

	case TypeGear:
		var cmd gate.GearCommand
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			return fmt.Errorf("bad gear payload: %w", err)
		}
		l.sink.UpdateGear(sourceMode(env.Source), cmd)

	case TypeOdometry:
		var p scalarPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("bad odometry payload: %w", err)
		}
		l.sink.UpdateOdometry(p.Value, env.Stamp)

	case TypeSteering:
		var p scalarPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("bad steering payload: %w", err)
		}
		l.sink.UpdateSteering(p.Value, env.Stamp)

	case TypeAcceleration:
		var p scalarPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("bad acceleration payload: %w", err)
		}
		l.sink.UpdateAcceleration(p.Value, env.Stamp)

	case TypeOperationMode:
		var s gate.OperationModeState
		if err := json.Unmarshal(env.Payload, &s); err != nil {
			return fmt.Errorf("bad operation mode payload: %w", err)
		}
		if s.Stamp.IsZero() {
			s.Stamp = env.Stamp
		}
		l.sink.UpdateOperationMode(s)

	case TypeUpstreamMrm:
		var s gate.UpstreamMrmState
		if err := json.Unmarshal(env.Payload, &s); err != nil {
			return fmt.Errorf("bad upstream MRM payload: %w", err)
		}
		if s.Stamp.IsZero() {
			s.Stamp = env.Stamp
		}
		l.sink.UpdateUpstreamMrm(s)

	default:
		return fmt.Errorf("unknown envelope type %q", env.Type)
	}
	return nil
}

func sourceMode(source string) gate.GateMode {
	if source == "external" {
		return gate.ModeExternal
	}
	return gate.ModeAuto
}

func (l *UDPListener) startStatsLogging(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
		l.stats.logStats()
	}

	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.logStats()
		}
	}
}

// Close closes the socket.
func (l *UDPListener) Close() error {
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
