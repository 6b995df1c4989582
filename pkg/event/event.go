// Package event defines the input events handed to the visual program
// once per frame.
package event

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/vizrig/vizrig/pkg/wire"
)

// Key is a keyboard press or release. Code is the SDL keycode.
type Key struct {
	Code      uint32 `json:"key"`
	Shift     bool   `json:"shift"`
	Alt       bool   `json:"alt"`
	Ctl       bool   `json:"ctl"`
	Down      bool   `json:"down"`
	Repeat    bool   `json:"repeat"`
	Timestamp int64  `json:"timestamp"`
}

// Frame reports decode timing of a stream after it was mixed. Both
// timestamps are rational seconds (numerator, denominator).
type Frame struct {
	Stream       string   `json:"stream"`
	RealTs       [2]int64 `json:"real_ts"`
	ContinuousTs [2]int64 `json:"continuous_ts"`
}

// Midi is a channel message from or to a device.
type Midi struct {
	Device    string `json:"device"`
	Channel   uint8  `json:"channel"`
	Kind      uint8  `json:"kind"`
	Key       uint8  `json:"key"`
	Velocity  uint8  `json:"velocity"`
	Timestamp int64  `json:"timestamp"`
}

// Status is the MIDI status byte.
func (m Midi) Status() byte { return (m.Kind & 0xF0) | (m.Channel & 0x0F) }

// Bytes is the raw message. Program change and channel pressure carry one
// data byte.
func (m Midi) Bytes() []byte {
	switch m.Kind & 0xF0 {
	case 0xC0, 0xD0:
		return []byte{m.Status(), m.Key}
	}
	return []byte{m.Status(), m.Key, m.Velocity}
}

// FromBytes decodes a raw channel message.
func FromBytes(device string, msg []byte, ts int64) Midi {
	m := Midi{Device: device, Timestamp: ts}
	if len(msg) > 0 {
		m.Channel, m.Kind = msg[0]&0x0F, msg[0]&0xF0
	}
	if len(msg) > 1 {
		m.Key = msg[1]
	}
	if len(msg) > 2 {
		m.Velocity = msg[2]
	}
	return m
}

// Log is a line written to the process log.
type Log struct {
	Message string `json:"message"`
}

// Event is one of Key, Frame, Midi, Reload or Log.
type Event struct {
	Key    *Key
	Frame  *Frame
	Midi   *Midi
	Log    *Log
	Reload bool
}

func KeyEvent(k Key) Event     { return Event{Key: &k} }
func FrameEvent(f Frame) Event { return Event{Frame: &f} }
func MidiEvent(m Midi) Event   { return Event{Midi: &m} }
func LogEvent(msg string) Event {
	return Event{Log: &Log{Message: msg}}
}
func ReloadEvent() Event { return Event{Reload: true} }

func (e Event) MarshalJSON() ([]byte, error) {
	switch {
	case e.Key != nil:
		return wire.Tag("KeyEvent", e.Key)
	case e.Frame != nil:
		return wire.Tag("FrameEvent", e.Frame)
	case e.Midi != nil:
		return wire.Tag("MidiEvent", e.Midi)
	case e.Log != nil:
		return wire.Tag("LogEvent", e.Log)
	case e.Reload:
		return wire.Tag("ReloadEvent", []struct{}{})
	}
	return nil, fmt.Errorf("%w: empty event", wire.ErrVariant)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	*e = Event{}
	tag, body, err := wire.Untag(data)
	if err != nil {
		return err
	}
	switch tag {
	case "KeyEvent":
		e.Key = &Key{}
		return json.Unmarshal(body, e.Key)
	case "FrameEvent":
		e.Frame = &Frame{}
		return json.Unmarshal(body, e.Frame)
	case "MidiEvent":
		e.Midi = &Midi{}
		return json.Unmarshal(body, e.Midi)
	case "LogEvent":
		e.Log = &Log{}
		return json.Unmarshal(body, e.Log)
	case "ReloadEvent":
		e.Reload = true
		return nil
	}
	return fmt.Errorf("%w: unknown event %q", wire.ErrVariant, tag)
}
