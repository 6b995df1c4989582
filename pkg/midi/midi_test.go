package midi

import (
	"errors"
	"testing"

	"github.com/vizrig/vizrig/pkg/event"
	"github.com/vizrig/vizrig/pkg/logger"
	"gitlab.com/gomidi/midi/v2"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		filters []string
		want    bool
	}{
		{name: "Launchpad X MIDI 1", filters: []string{"Launchpad"}, want: true},
		{name: "Launchpad X MIDI 1", filters: []string{"nano", "X MIDI"}, want: true},
		{name: "IAC Driver Bus 1", filters: []string{"Launchpad"}},
		{name: "IAC Driver Bus 1", filters: []string{""}},
		{name: "IAC Driver Bus 1"},
	}
	for _, test := range tests {
		if got := Match(test.name, test.filters); got != test.want {
			t.Errorf("Match(%q, %v) = %v", test.name, test.filters, got)
		}
	}
}

func TestReceive(t *testing.T) {
	h := newHub(logger.Nop())
	h.receive("pad", []byte{0x91, 60, 100}, 5)
	h.receive("pad", []byte{0xF8}, 6) // clock
	h.receive("pad", []byte{0xC2, 7}, 7)
	h.receive("pad", nil, 8)

	got := h.Drain()
	if len(got) != 2 {
		t.Fatalf("got %d events", len(got))
	}
	on := got[0].Midi
	if on == nil || on.Device != "pad" || on.Channel != 1 || on.Kind != 0x90 || on.Key != 60 || on.Velocity != 100 || on.Timestamp != 5 {
		t.Errorf("bad note on %+v", on)
	}
	if pc := got[1].Midi; pc == nil || pc.Kind != 0xC0 || pc.Key != 7 {
		t.Errorf("bad program change %+v", pc)
	}
	if len(h.Drain()) != 0 {
		t.Error("drain did not empty the queue")
	}
}

func TestSend(t *testing.T) {
	h := newHub(logger.Nop())
	sent := map[string][][]byte{}
	out := func(name string) output {
		return output{name: name, send: func(m midi.Message) error {
			sent[name] = append(sent[name], m)
			return nil
		}}
	}
	h.outs = []output{out("Launchpad X"), out("IAC Bus")}

	if err := h.Send(event.Midi{Device: "Launchpad", Channel: 2, Kind: 0x90, Key: 36, Velocity: 127}); err != nil {
		t.Fatal(err)
	}
	if err := h.Send(event.Midi{Kind: 0xC0, Key: 3}); err != nil {
		t.Fatal(err)
	}
	if err := h.Send(event.Midi{Device: "nano"}); !errors.Is(err, ErrNoOutput) {
		t.Errorf("expected ErrNoOutput, got %v", err)
	}

	if lp := sent["Launchpad X"]; len(lp) != 2 || string(lp[0]) != string([]byte{0x92, 36, 127}) || len(lp[1]) != 2 {
		t.Errorf("launchpad got %v", lp)
	}
	if iac := sent["IAC Bus"]; len(iac) != 1 || string(iac[0]) != string([]byte{0xC0, 3}) {
		t.Errorf("iac got %v", iac)
	}
}
