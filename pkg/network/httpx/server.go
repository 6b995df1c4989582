// Package httpx runs the small HTTP servers of the engine:
// monitoring and the remote control socket.
package httpx

import (
	"errors"
	"net/http"
	"time"

	"github.com/vizrig/vizrig/pkg/logger"
)

type (
	Handler        = http.Handler
	ResponseWriter = http.ResponseWriter
	Request        = http.Request
)

// Mux is a ServeMux with every route mounted under one prefix.
type Mux struct {
	mux    *http.ServeMux
	prefix string
}

func NewServeMux(prefix string) *Mux { return &Mux{mux: http.NewServeMux(), prefix: prefix} }

func (m *Mux) Handle(route string, h Handler) *Mux {
	m.mux.Handle(m.prefix+route, h)
	return m
}

func (m *Mux) HandleFunc(route string, fn func(ResponseWriter, *Request)) *Mux {
	return m.Handle(route, http.HandlerFunc(fn))
}

func (m *Mux) ServeHTTP(w ResponseWriter, r *Request) { m.mux.ServeHTTP(w, r) }

type Server struct {
	// Addr is where local clients reach the server.
	Addr string

	srv http.Server
	ls  *Listener
	log *logger.Logger
}

// NewServer binds address right away so the real port is known before
// Run. routes gets the server to print its reachable address.
func NewServer(address string, routes func(*Server) Handler, options ...Option) (*Server, error) {
	opts := Options{
		IdleTimeout:  2 * time.Minute,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	opts.override(options...)
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}

	bind := address
	if bind == "" {
		bind = ":0"
	}
	ls, err := NewListener(bind, opts.PortRoll, opts.Logger)
	if err != nil {
		return nil, err
	}
	s := &Server{
		Addr: reachable(bind, ls.GetPort()),
		ls:   ls,
		log:  opts.Logger,
	}
	s.srv = http.Server{
		IdleTimeout:  opts.IdleTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		Handler:      routes(s),
	}
	s.log.Debug().Msgf("bound %v as %v", bind, s.Addr)
	return s, nil
}

// Run serves in the background until Stop.
func (s *Server) Run() {
	go func() {
		err := s.srv.Serve(s.ls)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msgf("serve %v", s.Addr)
		}
	}()
}

func (s *Server) Stop() error { return s.srv.Close() }

// Port is the bound port, useful with :0 addresses.
func (s *Server) Port() int { return s.ls.GetPort() }
