// Package remote is an optional websocket control surface. Clients see
// each frame's HUD lines and events, and may inject events of their own.
package remote

import (
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/vizrig/vizrig/pkg/event"
	"github.com/vizrig/vizrig/pkg/logger"
	"github.com/vizrig/vizrig/pkg/network/httpx"
	"github.com/vizrig/vizrig/pkg/network/websocket"
	"github.com/vizrig/vizrig/pkg/uid"
)

// backlog is how many client events are kept between two drains.
const backlog = 256

// Frame is what clients receive after every frame.
type Frame struct {
	Frame  int64         `json:"frame"`
	Hud    []string      `json:"hud,omitempty"`
	Events []event.Event `json:"events,omitempty"`
	Midi   []event.Midi  `json:"midi,omitempty"`
}

type Server struct {
	server *httpx.Server
	log    *logger.Logger

	mu      sync.Mutex
	clients map[uid.ID]*websocket.Conn
	queue   []event.Event
}

// New binds address, the socket is served at /ws.
func New(address string, log *logger.Logger) (*Server, error) {
	s := &Server{
		log:     log.Extend(log.With().Str("m", "Remote")),
		clients: make(map[uid.ID]*websocket.Conn),
	}
	serv, err := httpx.NewServer(
		address,
		func(*httpx.Server) httpx.Handler {
			return httpx.NewServeMux("").HandleFunc("/ws", s.handle)
		},
		httpx.WithLogger(s.log),
		httpx.WithWriteTimeout(0),
	)
	if err != nil {
		return nil, err
	}
	s.server = serv
	return s, nil
}

func (s *Server) Run() {
	s.log.Info().Msgf("Remote control at ws://%v/ws", s.server.Addr)
	s.server.Run()
}

func (s *Server) Stop() error {
	s.mu.Lock()
	for _, c := range s.clients {
		c.Close()
	}
	s.mu.Unlock()
	return s.server.Stop()
}

func (s *Server) Addr() string { return s.server.Addr }

func (s *Server) handle(w httpx.ResponseWriter, r *httpx.Request) {
	conn, err := websocket.Upgrade(w, r, func(c *websocket.Conn, data []byte) { s.receive(c.Id, data) }, s.log)
	if err != nil {
		s.log.Warn().Err(err).Msg("upgrade")
		return
	}
	s.mu.Lock()
	s.clients[conn.Id] = conn
	n := len(s.clients)
	s.mu.Unlock()
	s.log.Info().Msgf("client %v connected, %d total", conn.Id.Short(), n)

	go func() {
		<-conn.Done
		s.mu.Lock()
		delete(s.clients, conn.Id)
		s.mu.Unlock()
		s.log.Info().Msgf("client %v left", conn.Id.Short())
	}()
}

// receive queues Key, Midi and Reload events, anything else is refused.
func (s *Server) receive(id uid.ID, data []byte) {
	var ev event.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		s.log.Warn().Err(err).Msgf("bad message from %v", id.Short())
		return
	}
	if ev.Key == nil && ev.Midi == nil && !ev.Reload {
		s.log.Warn().Msgf("client %v may only send key, midi or reload events", id.Short())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) < backlog {
		s.queue = append(s.queue, ev)
	}
}

// Drain returns the client events received since the last call.
func (s *Server) Drain() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue
	s.queue = nil
	return q
}

// Broadcast sends f to every client, slow clients miss frames.
func (s *Server) Broadcast(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("frame %d: %w", f.Frame, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		c.Write(data)
	}
	return nil
}

// Clients is the number of connected peers.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
