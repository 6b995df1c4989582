package remote

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/vizrig/vizrig/pkg/event"
	"github.com/vizrig/vizrig/pkg/logger"
	"github.com/vizrig/vizrig/pkg/network/websocket"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %v", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRemote(t *testing.T) {
	s, err := New("127.0.0.1:0", logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	s.Run()
	defer func() { _ = s.Stop() }()

	frames := make(chan Frame, 1)
	client, err := websocket.Dial(context.Background(), "ws://"+s.Addr()+"/ws", func(_ *websocket.Conn, data []byte) {
		var f Frame
		if err := json.Unmarshal(data, &f); err == nil {
			frames <- f
		}
	}, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	waitFor(t, "client", func() bool { return s.Clients() == 1 })

	for _, ev := range []event.Event{
		event.KeyEvent(event.Key{Code: 32, Down: true}),
		event.LogEvent("not allowed"),
		event.ReloadEvent(),
	} {
		data, _ := json.Marshal(ev)
		client.Write(data)
	}
	var got []event.Event
	waitFor(t, "events", func() bool {
		got = append(got, s.Drain()...)
		return len(got) >= 2
	})
	if got[0].Key == nil || got[0].Key.Code != 32 || !got[1].Reload {
		t.Errorf("unexpected events %+v", got)
	}

	if err := s.Broadcast(Frame{Frame: 7, Hud: []string{"hi"}}); err != nil {
		t.Fatal(err)
	}
	select {
	case f := <-frames:
		if f.Frame != 7 || len(f.Hud) != 1 || f.Hud[0] != "hi" {
			t.Errorf("unexpected frame %+v", f)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no frame")
	}

	client.Close()
	<-client.Done
	waitFor(t, "disconnect", func() bool { return s.Clients() == 0 })
}
