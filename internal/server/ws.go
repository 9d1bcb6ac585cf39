package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/playperu/marslanding/internal/broker"
)

// WSOptions tunes the per-connection transport.
type WSOptions struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

const (
	wsReadLimit   = 4096
	wsEventBuffer = 16
)

var (
	errConnClosed = errors.New("connection closed")
	errSlowClient = errors.New("send buffer full")
)

// frame is the JSON envelope of every websocket message.
type frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type inboundFrame struct {
	Event string `json:"event"`
}

// wsConn adapts a websocket to broker.Conn. Outgoing frames are queued and
// written by writeLoop so Emit and Close never block the broker.
type wsConn struct {
	id     string
	ws     *websocket.Conn
	opts   WSOptions
	logger *slog.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool

	done chan struct{}
}

func newWSConn(ws *websocket.Conn, opts WSOptions, logger *slog.Logger) *wsConn {
	id := uuid.NewString()
	return &wsConn{
		id:     id,
		ws:     ws,
		opts:   opts,
		logger: logger.With("client_id", id),
		send:   make(chan []byte, opts.SendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Emit(event string, payload any) error {
	msg, err := json.Marshal(frame{Event: event, Data: payload})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		c.logger.Warn("send buffer full, closing slow client", "event", event)
		c.closeLocked()
		return errSlowClient
	}
}

// Close stops accepting frames. Frames already queued are still written
// before the websocket is closed.
func (c *wsConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *wsConn) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *wsConn) writeLoop(ctx context.Context) {
	defer close(c.done)
	defer c.Close()

	var ping <-chan time.Time
	if c.opts.PingInterval > 0 {
		t := time.NewTicker(c.opts.PingInterval)
		defer t.Stop()
		ping = t.C
	}

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.ws.Close(websocket.StatusNormalClosure, "")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, c.opts.WriteTimeout)
			err := c.ws.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				c.logger.Debug("websocket write failed", "error", err)
				c.ws.CloseNow()
				return
			}

		case <-ping:
			pctx, cancel := context.WithTimeout(ctx, c.opts.WriteTimeout)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				c.logger.Debug("websocket ping failed", "error", err)
				c.ws.CloseNow()
				return
			}

		case <-ctx.Done():
			c.ws.CloseNow()
			return
		}
	}
}

// readLoop forwards inbound event names to events until the websocket
// fails or is closed.
func (c *wsConn) readLoop(ctx context.Context, events chan<- string) {
	defer close(events)
	for {
		_, msg, err := c.ws.Read(ctx)
		if err != nil {
			c.logger.Debug("websocket read ended", "error", err)
			return
		}
		var f inboundFrame
		if err := json.Unmarshal(msg, &f); err != nil || f.Event == "" {
			c.logger.Debug("ignoring malformed frame", "error", err)
			continue
		}
		events <- f.Event
	}
}

func handleWS(logger *slog.Logger, b *broker.Broker, opts WSOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		hs := broker.Handshake{
			ClientType: q.Get("clientType"),
			UserInfo:   q.Get("userInfo"),
		}

		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}
		defer ws.CloseNow()
		ws.SetReadLimit(wsReadLimit)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		c := newWSConn(ws, opts, logger)
		go c.writeLoop(ctx)

		if err := b.Admit(ctx, c, hs); err != nil {
			c.logger.Debug("connection not admitted", "error", err)
			c.Close()
			<-c.done
			return
		}

		// Events are handled in order on their own goroutine so the reader
		// keeps serving pongs and close frames during cloud calls.
		events := make(chan string, wsEventBuffer)
		handled := make(chan struct{})
		go func() {
			defer close(handled)
			for ev := range events {
				b.HandleEvent(ctx, c.ID(), ev)
			}
		}()

		c.readLoop(ctx, events)
		b.Disconnect(c.ID())
		c.Close()
		<-c.done
		<-handled
	}
}
