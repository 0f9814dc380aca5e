package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	readTimeout  = 60 * time.Second // read deadline, refreshed by pongs
	pingInterval = 54 * time.Second // must stay below readTimeout
	writeTimeout = 10 * time.Second
	maxFrameSize = 64 << 10
	sendBuffer   = 256

	// per-connection rate limit; excess frames are dropped
	maxMessagesPerSecond = 50
)

// Conn is one client websocket. It implements lobby.Peer.
type Conn struct {
	id   string
	ws   *websocket.Conn
	hub  *Hub
	send chan []byte
	log  zerolog.Logger

	once sync.Once
	done chan struct{}
}

func newConn(hub *Hub, ws *websocket.Conn) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:   id,
		ws:   ws,
		hub:  hub,
		send: make(chan []byte, sendBuffer),
		log:  hub.log.With().Str("conn", id).Logger(),
		done: make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// Send encodes and queues a frame. A full queue drops the frame; a closed
// connection ignores it.
func (c *Conn) Send(typ string, data any) {
	frame, err := Encode(typ, data)
	if err != nil {
		c.log.Error().Err(err).Str("type", typ).Msg("encode")
		return
	}
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- frame:
		c.log.Debug().Str("type", typ).Msg("queued")
	case <-c.done:
	default:
		c.log.Warn().Str("type", typ).Msg("send buffer full, frame dropped")
	}
}

// Close stops both pumps. Safe to call more than once.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// readPump reads frames until the socket fails, then unregisters the
// connection from the hub.
func (c *Conn) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.Close()
	}()

	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	count := 0
	window := time.Now()
	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read")
			}
			return
		}

		if now := time.Now(); now.Sub(window) >= time.Second {
			count, window = 0, now
		}
		count++
		if count > maxMessagesPerSecond {
			continue
		}

		c.hub.dispatch(c, frame)
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeTimeout))
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug().Err(err).Msg("websocket write")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
