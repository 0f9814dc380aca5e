// internal/ws/hub.go
//
// Websocket hub for the Battleship server.
// Responsibilities:
//   - Upgrade HTTP requests and run a read/write pump pair per connection.
//   - Track open connections and broadcast lobby-wide messages.
//   - Decode client frames and dispatch them to the lobby controller.
//   - Forfeit on disconnect.
//
// Notes:
//   - Frames from one connection are dispatched in order on its read pump.
//   - Protocol errors are logged and never answered, as the client protocol
//     has no error message.

package ws

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/battleship/apps/go-server/internal/game"
	"github.com/robalobadob/battleship/apps/go-server/internal/lobby"
)

// Account is an identity established before the upgrade (e.g. from a JWT).
type Account struct {
	UserID   string
	Username string
}

// Hub owns every open connection.
type Hub struct {
	ctl      *lobby.Controller
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewHub builds a hub dispatching to ctl and registers itself as ctl's
// broadcaster. allowedOrigin is accepted in addition to same-host and
// localhost origins.
func NewHub(ctl *lobby.Controller, allowedOrigin string) *Hub {
	h := &Hub{
		ctl:   ctl,
		log:   log.With().Str("component", "ws").Logger(),
		conns: make(map[string]*Conn),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return validOrigin(r, allowedOrigin) },
	}
	ctl.SetBroadcaster(h)
	return h
}

// validOrigin accepts requests without Origin, same-host, localhost and the
// configured client origin.
func validOrigin(r *http.Request, allowed string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == allowed {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Host == r.Host {
		return true
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || strings.HasSuffix(host, ".localhost")
}

// ServeWS upgrades the request. A non-nil account binds the connection
// before any frame is read and greets it with a reg message.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, acct *Account) {
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("upgrade")
		return
	}
	c := newConn(h, wsConn)

	h.mu.Lock()
	h.conns[c.id] = c
	n := len(h.conns)
	h.mu.Unlock()
	c.log.Info().Int("open", n).Str("remote", r.RemoteAddr).Msg("connected")

	go c.writePump()

	if acct != nil {
		ctx := context.Background()
		id := h.ctl.Bind(c, acct.UserID, acct.Username)
		c.Send(lobby.EventRegister, lobby.RegResult{Name: acct.Username, Index: id})
		h.ctl.BroadcastRooms(ctx)
		h.ctl.BroadcastWinners(ctx)
	}

	go c.readPump()
}

// Broadcast implements lobby.Broadcaster.
func (h *Hub) Broadcast(typ string, data any) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.Send(typ, data)
	}
}

// Len returns the number of open connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close drops every connection; their read pumps then unregister them.
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.Close()
	}
}

func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	_, ok := h.conns[c.id]
	delete(h.conns, c.id)
	h.mu.Unlock()
	if !ok {
		return
	}
	c.log.Info().Msg("disconnected")
	h.ctl.Disconnect(context.Background(), c)
}

// dispatch decodes one frame and routes it to the controller.
func (h *Hub) dispatch(c *Conn, frame []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			c.log.Error().Interface("panic", rec).Msg("dispatch")
		}
	}()

	in, err := Decode(frame)
	if err != nil {
		c.log.Warn().Err(err).Msg("decode")
		return
	}
	if in.Type != MsgRegister { // carries a password
		c.log.Debug().Str("type", in.Type).RawJSON("data", nonEmpty(in.Data)).Msg("frame")
	}

	ctx := context.Background()
	if err := h.route(ctx, c, in); err != nil {
		lvl := zerolog.WarnLevel
		if errors.Is(err, game.ErrNotYourTurn) || errors.Is(err, game.ErrAttackNotAllowed) || errors.Is(err, game.ErrMatchNotRunning) {
			lvl = zerolog.DebugLevel
		}
		c.log.WithLevel(lvl).Err(err).Str("type", in.Type).Msg("request rejected")
	}
}

func (h *Hub) route(ctx context.Context, c *Conn, in Inbound) error {
	switch in.Type {
	case MsgRegister:
		var d RegData
		if err := in.Bind(&d); err != nil {
			return err
		}
		res, err := h.ctl.Register(ctx, c, d.Name, d.Password)
		if err != nil {
			return err
		}
		c.Send(lobby.EventRegister, res)
		h.ctl.BroadcastRooms(ctx)
		h.ctl.BroadcastWinners(ctx)
		return nil

	case MsgCreateRoom:
		_, err := h.ctl.CreateRoom(ctx, c)
		return err

	case MsgAddUserToRoom:
		var d AddUserToRoomData
		if err := in.Bind(&d); err != nil {
			return err
		}
		return h.ctl.AddUserToRoom(ctx, c, d.IndexRoom)

	case MsgSinglePlay:
		return h.ctl.SinglePlay(ctx, c)

	case MsgAddShips:
		var d AddShipsData
		if err := in.Bind(&d); err != nil {
			return err
		}
		if err := h.owns(c, d.IndexPlayer); err != nil {
			return err
		}
		return h.ctl.AddShips(ctx, d.GameID, d.IndexPlayer, d.Ships)

	case MsgAttack, MsgRandomAttack:
		var d AttackData
		if err := in.Bind(&d); err != nil {
			return err
		}
		if err := h.owns(c, d.IndexPlayer); err != nil {
			return err
		}
		target := d.Target()
		if in.Type == MsgRandomAttack {
			target = nil
		}
		_, err := h.ctl.Attack(ctx, d.GameID, d.IndexPlayer, target)
		return err

	default:
		c.log.Debug().Str("type", in.Type).Msg("unknown message type")
		return nil
	}
}

// owns checks that c is bound to player.
func (h *Hub) owns(c *Conn, player game.PlayerID) error {
	id, ok := h.ctl.PlayerOf(c)
	if !ok {
		return lobby.ErrUnknownConnection
	}
	if id != player {
		return game.ErrUnknownPlayer
	}
	return nil
}

func nonEmpty(b []byte) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}
