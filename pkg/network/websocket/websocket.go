// Package websocket wraps gorilla connections into read and write pumps.
package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vizrig/vizrig/pkg/logger"
	"github.com/vizrig/vizrig/pkg/uid"
)

const (
	maxMessageSize = 16 * 1024
	pingTime       = pongTime * 9 / 10
	pongTime       = 60 * time.Second
	writeWait      = 10 * time.Second
	// sendBacklog messages are queued for a slow peer, more are dropped
	sendBacklog = 64
)

type MessageHandler func(c *Conn, message []byte)

// Conn is a websocket peer. All reads happen in one goroutine and all
// writes in another.
type Conn struct {
	Id uid.ID

	sock     *websocket.Conn
	send     chan []byte
	quit     chan struct{}
	once     sync.Once
	pingPong bool
	log      *logger.Logger

	OnMessage MessageHandler
	// Done is closed when both pumps have stopped.
	Done chan struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	WriteBufferPool: &sync.Pool{},
}

// Upgrade makes a server side peer out of an HTTP request.
func Upgrade(w http.ResponseWriter, r *http.Request, fn MessageHandler, log *logger.Logger) (*Conn, error) {
	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newConn(sock, true, fn, log), nil
}

// Dial connects to a server.
func Dial(ctx context.Context, address string, fn MessageHandler, log *logger.Logger) (*Conn, error) {
	sock, _, err := websocket.DefaultDialer.DialContext(ctx, address, nil)
	if err != nil {
		return nil, err
	}
	return newConn(sock, false, fn, log), nil
}

func newConn(sock *websocket.Conn, pingPong bool, fn MessageHandler, log *logger.Logger) *Conn {
	id := uid.New()
	c := &Conn{
		Id:        id,
		sock:      sock,
		send:      make(chan []byte, sendBacklog),
		quit:      make(chan struct{}),
		pingPong:  pingPong,
		log:       log.Extend(log.With().Str("c", id.Short())),
		OnMessage: fn,
		Done:      make(chan struct{}),
	}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.writer() }()
	go func() { defer wg.Done(); c.reader() }()
	go func() { wg.Wait(); close(c.Done) }()
	return c
}

// reader pumps messages from the connection into OnMessage.
func (c *Conn) reader() {
	defer func() {
		c.Close()
		c.log.Debug().Msg("reader closed")
	}()
	c.sock.SetReadLimit(maxMessageSize)
	if c.pingPong {
		_ = c.sock.SetReadDeadline(time.Now().Add(pongTime))
		c.sock.SetPongHandler(func(string) error { return c.sock.SetReadDeadline(time.Now().Add(pongTime)) })
	}
	for {
		_, message, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("read")
			}
			return
		}
		if c.OnMessage != nil {
			c.OnMessage(c, message)
		}
	}
}

// writer pumps queued messages and pings into the connection.
func (c *Conn) writer() {
	var ping <-chan time.Time
	if c.pingPong {
		ticker := time.NewTicker(pingTime)
		defer ticker.Stop()
		ping = ticker.C
	}
	defer func() {
		_ = c.sock.Close()
		c.log.Debug().Msg("writer closed")
	}()
	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				c.log.Warn().Err(err).Msg("write")
				c.Close()
				return
			}
		case <-ping:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.quit:
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Conn) write(t int, data []byte) error {
	if err := c.sock.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.sock.WriteMessage(t, data)
}

// Write queues a text message. It never blocks and reports false when
// the message was dropped.
func (c *Conn) Write(data []byte) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Conn) Close() { c.once.Do(func() { close(c.quit) }) }
