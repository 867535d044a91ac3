// Package estop provides the serial channel to the external
// emergency-stop monitor: a small device that emits a periodic heartbeat
// line and an ESTOP line when its operator triggers a manual stop. The
// package multiplexes the port so several consumers (the gate's heartbeat
// feed, admin debugging) can subscribe to the same line stream.
package estop

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/banshee-data/vehicle.gate/internal/httputil"
	"github.com/google/uuid"
)

var ErrWriteFailed = fmt.Errorf("failed to write to emergency stop monitor")

// Mux multiplexes one emergency-stop monitor port to multiple line
// subscribers and serializes commands written back to the device.
type Mux[T Porter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex

	lineCount uint64
}

// MuxInterface is the surface the rest of the process consumes.
type MuxInterface interface {
	// Subscribe creates a new channel receiving each line the monitor
	// emits. The returned ID identifies the channel for Unsubscribe.
	Subscribe() (string, chan string)
	// Unsubscribe removes and closes a subscriber channel.
	Unsubscribe(string)
	// SendCommand writes one command line to the monitor (ACK, RST).
	SendCommand(string) error
	// Monitor reads lines from the port and fans them out until the
	// context is cancelled or the port fails.
	Monitor(context.Context) error
	// Close closes all subscriber channels and the port.
	Close() error
	// AttachAdminRoutes mounts debugging endpoints under /debug/estop/.
	AttachAdminRoutes(*http.ServeMux)
}

// NewMux wraps an opened monitor port.
func NewMux[T Porter](port T) *Mux[T] {
	return &Mux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

// Subscribe registers a new line channel.
func (m *Mux[T]) Subscribe() (string, chan string) {
	id := uuid.NewString()
	ch := make(chan string)
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber.
func (m *Mux[T]) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// SendCommand writes one command line to the monitor device.
func (m *Mux[T]) SendCommand(command string) error {
	m.commandMu.Lock()
	defer m.commandMu.Unlock()
	if !bytes.HasSuffix([]byte(command), []byte("\n")) {
		command += "\n"
	}
	n, err := m.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads lines from the monitor port and sends them to
// subscribers. Slow subscribers are skipped rather than allowed to stall
// the read loop; the heartbeat consumer only cares about the latest line
// anyway.
func (m *Mux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(m.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking scan.Scan runs on its own goroutine so the outer loop
	// can also observe context cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				if err := scan.Err(); err != nil {
					return err
				}
				return nil
			}
			m.closingMu.Lock()
			if m.closing {
				m.closingMu.Unlock()
				return nil
			}
			m.closingMu.Unlock()

			m.subscriberMu.Lock()
			m.lineCount++
			for _, ch := range m.subscribers {
				select {
				case ch <- line:
				default:
				}
			}
			m.subscriberMu.Unlock()
		}
	}
}

// Close closes all subscriber channels and the underlying port.
func (m *Mux[T]) Close() error {
	m.closingMu.Lock()
	m.closing = true
	m.closingMu.Unlock()

	m.subscriberMu.Lock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	m.subscriberMu.Unlock()

	return m.port.Close()
}

// AttachAdminRoutes mounts debugging endpoints: a line counter and a
// manual command sender.
func (m *Mux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/estop/status", func(w http.ResponseWriter, r *http.Request) {
		m.subscriberMu.Lock()
		status := map[string]interface{}{
			"subscribers": len(m.subscribers),
			"lines_seen":  m.lineCount,
		}
		m.subscriberMu.Unlock()
		httputil.WriteJSONOK(w, status)
	})
	mux.HandleFunc("/debug/estop/send", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		cmd := r.FormValue("command")
		if cmd == "" {
			httputil.BadRequest(w, "command is required")
			return
		}
		if err := m.SendCommand(cmd); err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, map[string]string{"sent": cmd})
	})
}
