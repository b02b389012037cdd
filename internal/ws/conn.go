package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"discussion-room/internal/chat"
)

const (
	sendBuffer   = 256
	pingInterval = 20 * time.Second
	writeTimeout = 10 * time.Second
	readLimit    = 16 << 10
)

// ErrSlowConsumer is returned when a client's send buffer is full.
var ErrSlowConsumer = errors.New("ws: send buffer full")

// Conn adapts a websocket to chat.Transport. Writes are queued and drained
// by WriteLoop so delivery never blocks the broadcaster.
type Conn struct {
	ws     *websocket.Conn
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

var _ chat.Transport = (*Conn)(nil)

// Accept upgrades HTTP to websocket
func Accept(w http.ResponseWriter, r *http.Request, origins []string) (*websocket.Conn, error) {
	return websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  originHosts(origins),
		CompressionMode: websocket.CompressionDisabled,
	})
}

// originHosts strips schemes so CORS origins can double as websocket origin patterns
func originHosts(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if i := strings.Index(o, "://"); i >= 0 {
			o = o[i+3:]
		}
		out = append(out, strings.TrimSuffix(o, "/"))
	}
	return out
}

// NewConn wraps an accepted websocket
func NewConn(ws *websocket.Conn) *Conn {
	if ws != nil {
		ws.SetReadLimit(readLimit)
	}
	return &Conn{
		ws:     ws,
		out:    make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
	}
}

// Deliver queues a chat event for the client.
func (c *Conn) Deliver(ev chat.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.enqueue(b)
}

// SendError queues an error frame for the client.
func (c *Conn) SendError(code, message string) error {
	b, _ := json.Marshal(errorFrame{Type: "error", Code: code, Message: message})
	return c.enqueue(b)
}

func (c *Conn) enqueue(b []byte) error {
	select {
	case <-c.closed:
		return chat.ErrConnectionClosed
	default:
	}
	select {
	case c.out <- b:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Read blocks until it receives a text/binary message
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ == websocket.MessageText || typ == websocket.MessageBinary {
			return data, nil
		}
	}
}

// WriteLoop sends outbound frames + periodic pings
// Exits when ctx is cancelled or a write fails
func (c *Conn) WriteLoop(ctx context.Context) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()

	for {
		select {
		case b := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Write(wctx, websocket.MessageText, b)
			cancel()
			if err != nil {
				c.Close(websocket.StatusInternalError, "write failed")
				return
			}
		case <-t.C:
			if err := c.ws.Ping(ctx); err != nil {
				c.Close(websocket.StatusGoingAway, "ping failed")
				return
			}
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		}
	}
}

// Close closes the websocket once; later deliveries fail
func (c *Conn) Close(code websocket.StatusCode, reason string) {
	c.once.Do(func() {
		close(c.closed)
		if c.ws != nil {
			_ = c.ws.Close(code, reason)
		}
	})
}
