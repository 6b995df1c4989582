// Package midi connects configured MIDI ports to the event stream.
package midi

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/vizrig/vizrig/pkg/config"
	"github.com/vizrig/vizrig/pkg/event"
	"github.com/vizrig/vizrig/pkg/logger"
	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

var ErrNoOutput = errors.New("no midi output")

// backlog is how many messages are kept between two drains.
const backlog = 1024

type output struct {
	name string
	send func(midi.Message) error
}

// Hub listens to the input ports and writes to the output ports.
type Hub struct {
	log   *logger.Logger
	start time.Time

	mu     sync.Mutex
	queue  []event.Event
	outs   []output
	stops  []func()
	driver bool
}

func newHub(log *logger.Logger) *Hub {
	return &Hub{log: log.Extend(log.With().Str("m", "Midi")), start: time.Now()}
}

// Open connects every port whose name contains one of the filters.
// A port that fails to open is logged and skipped.
func Open(conf config.Midi, log *logger.Logger) *Hub {
	h := newHub(log)
	if len(conf.Inputs) == 0 && len(conf.Outputs) == 0 {
		return h
	}
	h.driver = true

	for _, in := range midi.GetInPorts() {
		name := in.String()
		if !Match(name, conf.Inputs) {
			continue
		}
		stop, err := midi.ListenTo(in, func(msg midi.Message, ms int32) {
			h.receive(name, msg, int64(ms)*1000)
		})
		if err != nil {
			h.log.Error().Err(err).Msgf("midi in %v", name)
			continue
		}
		h.stops = append(h.stops, stop)
		h.log.Info().Msgf("listening to %v", name)
	}
	for _, out := range midi.GetOutPorts() {
		name := out.String()
		if !Match(name, conf.Outputs) {
			continue
		}
		send, err := midi.SendTo(out)
		if err != nil {
			h.log.Error().Err(err).Msgf("midi out %v", name)
			continue
		}
		h.outs = append(h.outs, output{name: name, send: send})
		h.log.Info().Msgf("sending to %v", name)
	}
	return h
}

// Match tells if name contains any of the filters.
func Match(name string, filters []string) bool {
	for _, f := range filters {
		if f != "" && strings.Contains(name, f) {
			return true
		}
	}
	return false
}

// channel messages the program gets: note off/on, control and program change
func forwarded(status byte) bool {
	switch status & 0xF0 {
	case 0x80, 0x90, 0xB0, 0xC0:
		return true
	}
	return false
}

func (h *Hub) receive(device string, msg []byte, ts int64) {
	if len(msg) == 0 || !forwarded(msg[0]) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.queue) >= backlog {
		return
	}
	h.queue = append(h.queue, event.MidiEvent(event.FromBytes(device, msg, ts)))
}

// Drain returns the events received since the last call.
func (h *Hub) Drain() []event.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	q := h.queue
	h.queue = nil
	return q
}

// Send writes m to the outputs whose name contains m.Device, all of them
// when it is empty.
func (h *Hub) Send(m event.Midi) error {
	var result *multierror.Error
	sent := false
	for _, o := range h.outs {
		if m.Device != "" && !strings.Contains(o.name, m.Device) {
			continue
		}
		sent = true
		if err := o.send(m.Bytes()); err != nil {
			result = multierror.Append(result, fmt.Errorf("%v: %w", o.name, err))
		}
	}
	if !sent {
		return fmt.Errorf("%w: %q", ErrNoOutput, m.Device)
	}
	return result.ErrorOrNil()
}

func (h *Hub) Close() {
	for _, stop := range h.stops {
		stop()
	}
	h.stops, h.outs = nil, nil
	if h.driver {
		midi.CloseDriver()
	}
}
