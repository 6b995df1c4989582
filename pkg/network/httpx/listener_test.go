package httpx

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/vizrig/vizrig/pkg/logger"
)

func TestListenerCreation(t *testing.T) {
	tests := []struct {
		addr   string
		port   string
		random bool
		error  bool
	}{
		{addr: ":", random: true},
		{addr: ":0", random: true},
		{addr: "", random: true},
		{addr: "https://garbage.com:99a9a", error: true},
		{addr: "localhost:abc1", error: true},
	}

	for _, test := range tests {
		ls, err := NewListener(test.addr, false, nil)
		if test.error {
			if err == nil {
				t.Errorf("expected error, but got none")
			}
			continue
		}
		if err != nil {
			t.Errorf("unexpected error %v", err)
			continue
		}
		if port := ls.GetPort(); port <= 0 {
			t.Errorf("expected a random port, got %v", port)
		}
		_ = ls.Close()
	}
}

func TestListenerPortRoll(t *testing.T) {
	a, err := NewListener("127.0.0.1:0", false, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer a.Close()
	busy := "127.0.0.1:" + strconv.Itoa(a.GetPort())

	if _, err = NewListener(busy, false, nil); err == nil {
		t.Errorf("expected busy port error, but got none")
	}
	b, err := NewListener(busy, true, logger.Nop())
	if err != nil {
		t.Fatalf("expected no port error, but got %v", err)
	}
	if b.GetPort() == a.GetPort() {
		t.Errorf("port did not roll")
	}
	_ = b.Close()
}

func TestServer(t *testing.T) {
	s, err := NewServer("127.0.0.1:0", func(*Server) Handler {
		return NewServeMux("/x").HandleFunc("/ping", func(w ResponseWriter, _ *Request) {
			_, _ = w.Write([]byte("pong"))
		})
	}, WithLogger(logger.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	s.Run()
	defer func() { _ = s.Stop() }()

	resp, err := http.Get("http://" + s.Addr + "/x/ping")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "pong") {
		t.Errorf("got %q", body)
	}
}
