package estop

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Message is a parsed line from the emergency-stop monitor.
type Message struct {
	Kind   MessageKind
	Stamp  time.Time // heartbeat timestamp, valid for KindHeartbeat
	Reason string    // operator-supplied reason, valid for KindEstop
}

type MessageKind int

const (
	KindUnknown MessageKind = iota
	KindHeartbeat
	KindEstop
)

// Monitor command lines the gate can send back to the device.
const (
	CommandAck   = "ACK"
	CommandReset = "RST"
)

// ParseLine classifies one line from the monitor. The device speaks a
// two-message protocol: "HB,<unix_nanos>" periodically while healthy,
// and "ESTOP,<reason>" when the operator triggers a manual stop.
func ParseLine(line string) (Message, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Message{}, fmt.Errorf("empty line")
	}

	switch {
	case strings.HasPrefix(line, "HB,"):
		nanos, err := strconv.ParseInt(line[len("HB,"):], 10, 64)
		if err != nil {
			return Message{}, fmt.Errorf("malformed heartbeat %q: %w", line, err)
		}
		return Message{Kind: KindHeartbeat, Stamp: time.Unix(0, nanos)}, nil

	case strings.HasPrefix(line, "ESTOP,"):
		return Message{Kind: KindEstop, Reason: line[len("ESTOP,"):]}, nil

	case line == "ESTOP":
		return Message{Kind: KindEstop}, nil

	default:
		return Message{}, fmt.Errorf("unrecognized monitor line %q", line)
	}
}
