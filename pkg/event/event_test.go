package event

import (
	"bytes"
	"testing"

	"github.com/goccy/go-json"
)

func TestEventWireForm(t *testing.T) {
	events := []Event{
		ReloadEvent(),
		KeyEvent(Key{Code: 97, Down: true, Timestamp: 12}),
		FrameEvent(Frame{Stream: "clip1", RealTs: [2]int64{5, 1}, ContinuousTs: [2]int64{121, 24}}),
		LogEvent("hello"),
	}
	out, err := json.Marshal(events)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`{"ReloadEvent":[]}`, `"FrameEvent":{"stream":"clip1"`, `"LogEvent":{"message":"hello"}`} {
		if !bytes.Contains(out, []byte(want)) {
			t.Errorf("%s not found in %s", want, out)
		}
	}
	var back []Event
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatal(err)
	}
	if !back[0].Reload || back[1].Key.Code != 97 || back[2].Frame.ContinuousTs != [2]int64{121, 24} {
		t.Errorf("bad round trip %+v", back)
	}
}

func TestMidiBytes(t *testing.T) {
	tests := []struct {
		name string
		in   Midi
		want []byte
	}{
		{name: "note on", in: Midi{Kind: 0x90, Channel: 3, Key: 60, Velocity: 100}, want: []byte{0x93, 60, 100}},
		{name: "masks", in: Midi{Kind: 0x9F, Channel: 0x13, Key: 1, Velocity: 2}, want: []byte{0x93, 1, 2}},
		{name: "program", in: Midi{Kind: 0xC0, Channel: 1, Key: 7}, want: []byte{0xC1, 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Bytes(); !bytes.Equal(got, tt.want) {
				t.Errorf("got % x, want % x", got, tt.want)
			}
		})
	}
	m := FromBytes("pad", []byte{0xB2, 7, 64}, 1)
	if m.Kind != 0xB0 || m.Channel != 2 || m.Key != 7 || m.Velocity != 64 {
		t.Errorf("bad decode %+v", m)
	}
}
