// internal/lobby/lobby.go
//
// Controller is the server-wide game controller.
// Responsibilities:
//   - Register-or-login of players and binding of connections to player ids.
//   - Room lifecycle: create, list open rooms, join (which creates the
//     match), single play against a bot, cleanup on finish or disconnect.
//   - Routing of add_ships / attack to the room that hosts the match.
//   - Delivery of room events to the connection bound to each player.
//   - Broadcasting update_room and update_winners to every connection.
//   - Persisting wins and match history through the account store.
//
// Locking: c.mu only guards the binding maps. It is never held while calling
// into a Room, because rooms call back into Notify under their own lock.

package lobby

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/battleship/apps/go-server/internal/game"
	"github.com/robalobadob/battleship/apps/go-server/internal/room"
	"github.com/robalobadob/battleship/apps/go-server/internal/store"
	"github.com/robalobadob/battleship/apps/go-server/internal/users"
)

var (
	ErrUnknownMatch      = errors.New("match not found")
	ErrUnknownRoom       = errors.New("room not found")
	ErrUnknownConnection = errors.New("connection is not registered")
	ErrAlreadyInRoom     = errors.New("player is already in a room")
)

// Outbound lobby-wide message types.
const (
	EventRegister      = "reg"
	EventUpdateRoom    = "update_room"
	EventUpdateWinners = "update_winners"
)

// leaderboardSize caps update_winners payloads.
const leaderboardSize = 100

// Peer is one client connection.
type Peer interface {
	ID() string
	Send(typ string, data any)
}

// Broadcaster sends a message to every open connection.
type Broadcaster interface {
	Broadcast(typ string, data any)
}

// Accounts is the persistent side of players (implemented by *users.Store).
type Accounts interface {
	Register(ctx context.Context, name, password string) (*users.User, bool, error)
	RecordWin(ctx context.Context, userID string) error
	RecordMatch(ctx context.Context, m users.MatchRecord) error
	Leaderboard(ctx context.Context, limit int) ([]users.Winner, error)
}

// Config tunes the controller.
type Config struct {
	BotDelay time.Duration
}

// RegResult is the payload of the reg response.
type RegResult struct {
	Name      string        `json:"name"`
	Index     game.PlayerID `json:"index"`
	Error     bool          `json:"error"`
	ErrorText string        `json:"errorText"`
}

// RoomUser and RoomInfo describe an open room in update_room.
type RoomUser struct {
	Name  string        `json:"name"`
	Index game.PlayerID `json:"index"`
}

type RoomInfo struct {
	RoomID    int64      `json:"roomId"`
	RoomUsers []RoomUser `json:"roomUsers"`
}

type profile struct {
	userID string
	name   string
}

// Controller owns players, connections and rooms.
type Controller struct {
	accounts  Accounts
	rooms     store.Store
	broadcast Broadcaster
	cfg       Config

	players  store.Sequence
	roomIDs  store.Sequence
	matchIDs store.Sequence

	mu        sync.RWMutex
	byAccount map[string]game.PlayerID  // user id -> player id
	profiles  map[game.PlayerID]profile // human players only
	conns     map[string]game.PlayerID  // peer id -> player id
	online    map[game.PlayerID]Peer    // player id -> bound peer
}

// New constructs a Controller. bc may be nil until SetBroadcaster is called.
func New(accounts Accounts, rooms store.Store, bc Broadcaster, cfg Config) *Controller {
	return &Controller{
		accounts:  accounts,
		rooms:     rooms,
		broadcast: bc,
		cfg:       cfg,
		byAccount: make(map[string]game.PlayerID),
		profiles:  make(map[game.PlayerID]profile),
		conns:     make(map[string]game.PlayerID),
		online:    make(map[game.PlayerID]Peer),
	}
}

// SetBroadcaster wires the transport after construction.
func (c *Controller) SetBroadcaster(bc Broadcaster) { c.broadcast = bc }

// ------------------------------ players ------------------------------------

// Register logs peer in under name, creating the account on first use. A
// password mismatch is reported in the result, not as an error.
func (c *Controller) Register(ctx context.Context, peer Peer, name, password string) (RegResult, error) {
	u, _, err := c.accounts.Register(ctx, name, password)
	switch {
	case errors.Is(err, users.ErrInvalidPassword):
		res := RegResult{Name: name, Error: true, ErrorText: "Invalid password!"}
		if u != nil {
			res.Name, res.Index = u.Username, c.playerFor(u)
		}
		return res, nil
	case errors.Is(err, users.ErrInvalidInput):
		return RegResult{Name: name, Error: true, ErrorText: "Name and password are required"}, nil
	case err != nil:
		return RegResult{}, fmt.Errorf("register %q: %w", name, err)
	}

	id := c.Bind(peer, u.ID, u.Username)
	log.Info().Str("user", u.Username).Int64("player", int64(id)).Str("conn", peer.ID()).Msg("registered")
	return RegResult{Name: u.Username, Index: id}, nil
}

// Bind attaches peer to an already authenticated account and returns the
// account's player id. A newer connection replaces an older one.
func (c *Controller) Bind(peer Peer, userID, name string) game.PlayerID {
	id := c.playerFor(&users.User{ID: userID, Username: name})
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles[id] = profile{userID: userID, name: name}
	c.conns[peer.ID()] = id
	c.online[id] = peer
	return id
}

// playerFor returns the process-wide player id of an account, allocating one
// on first sight.
func (c *Controller) playerFor(u *users.User) game.PlayerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.byAccount[u.ID]; ok {
		return id
	}
	id := game.PlayerID(c.players.Next())
	c.byAccount[u.ID] = id
	c.profiles[id] = profile{userID: u.ID, name: u.Username}
	return id
}

// PlayerOf returns the player bound to peer.
func (c *Controller) PlayerOf(peer Peer) (game.PlayerID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.conns[peer.ID()]
	return id, ok
}

func (c *Controller) nameOf(id game.PlayerID) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.profiles[id].name
}

func (c *Controller) mustPlayer(peer Peer) (game.PlayerID, error) {
	id, ok := c.PlayerOf(peer)
	if !ok {
		return 0, ErrUnknownConnection
	}
	return id, nil
}

// -------------------------------- rooms ------------------------------------

// CreateRoom opens a room hosted by peer's player. A player may host or sit
// in at most one room at a time.
func (c *Controller) CreateRoom(ctx context.Context, peer Peer) (*room.Room, error) {
	player, err := c.mustPlayer(peer)
	if err != nil {
		return nil, err
	}
	if c.seatedAnywhere(ctx, player, true) {
		return nil, ErrAlreadyInRoom
	}

	r := c.newRoom(game.Seat{ID: player})
	if err := c.rooms.Save(ctx, r); err != nil {
		r.Close()
		return nil, err
	}
	log.Info().Int64("room", r.ID).Int64("player", int64(player)).Msg("room created")
	c.BroadcastRooms(ctx)
	return r, nil
}

// AvailableRooms lists rooms waiting for a second player.
func (c *Controller) AvailableRooms(ctx context.Context) []RoomInfo {
	out := []RoomInfo{}
	for _, r := range c.rooms.List(ctx) {
		if !r.Open() {
			continue
		}
		info := RoomInfo{RoomID: r.ID}
		for _, s := range r.Seats() {
			info.RoomUsers = append(info.RoomUsers, RoomUser{Name: c.nameOf(s.ID), Index: s.ID})
		}
		out = append(out, info)
	}
	return out
}

// AddUserToRoom seats peer's player in roomID and creates the match. Any
// other open room of the player is closed.
func (c *Controller) AddUserToRoom(ctx context.Context, peer Peer, roomID int64) error {
	player, err := c.mustPlayer(peer)
	if err != nil {
		return err
	}
	r, err := c.rooms.Get(ctx, roomID)
	if err != nil {
		return fmt.Errorf("%w: %d", ErrUnknownRoom, roomID)
	}
	if r.Has(player) || c.seatedAnywhere(ctx, player, false) {
		return ErrAlreadyInRoom
	}
	if err := r.Join(game.Seat{ID: player}); err != nil {
		return err
	}
	if err := r.CreateMatch(c.matchIDs.Next()); err != nil {
		return err
	}
	if err := c.rooms.Save(ctx, r); err != nil {
		return err
	}
	c.dropOpenRooms(ctx, player, r.ID)
	c.BroadcastRooms(ctx)
	return nil
}

// SinglePlay starts a match between peer's player and a bot.
func (c *Controller) SinglePlay(ctx context.Context, peer Peer) error {
	player, err := c.mustPlayer(peer)
	if err != nil {
		return err
	}
	if c.seatedAnywhere(ctx, player, false) {
		return ErrAlreadyInRoom
	}

	bot := game.Seat{ID: game.PlayerID(c.players.Next()), Bot: true}
	r := c.newRoom(game.Seat{ID: player})
	if err := r.Join(bot); err != nil {
		r.Close()
		return err
	}
	if err := r.CreateMatch(c.matchIDs.Next()); err != nil {
		r.Close()
		return err
	}
	if err := c.rooms.Save(ctx, r); err != nil {
		r.Close()
		return err
	}
	c.dropOpenRooms(ctx, player, r.ID)
	c.BroadcastRooms(ctx)
	return nil
}

func (c *Controller) newRoom(host game.Seat) *room.Room {
	return room.New(c.roomIDs.Next(), host, room.Options{
		Notifier: c,
		Wins:     c,
		BotDelay: c.cfg.BotDelay,
		OnFinish: c.onRoomFinished,
	})
}

// seatedAnywhere reports whether player sits in a room with a live match,
// or, when includeOpen is set, in any room at all.
func (c *Controller) seatedAnywhere(ctx context.Context, player game.PlayerID, includeOpen bool) bool {
	for _, r := range c.rooms.List(ctx) {
		if !r.Has(player) {
			continue
		}
		if includeOpen || r.MatchID() != 0 {
			return true
		}
	}
	return false
}

// dropOpenRooms removes player's open rooms other than keep.
func (c *Controller) dropOpenRooms(ctx context.Context, player game.PlayerID, keep int64) {
	for _, r := range c.rooms.List(ctx) {
		if r.ID == keep || !r.Open() || !r.Has(player) {
			continue
		}
		_ = c.rooms.Delete(ctx, r.ID)
		r.Close()
	}
}

// ------------------------------- matches -----------------------------------

// AddShips registers player's layout for matchID.
func (c *Controller) AddShips(ctx context.Context, matchID int64, player game.PlayerID, specs []game.ShipSpec) error {
	r, err := c.rooms.ByMatch(ctx, matchID)
	if err != nil {
		return fmt.Errorf("%w: %d", ErrUnknownMatch, matchID)
	}
	return r.SubmitLayout(player, specs)
}

// Attack forwards an attack. A nil target requests a random cell.
func (c *Controller) Attack(ctx context.Context, matchID int64, player game.PlayerID, target *game.Position) (game.AttackOutcome, error) {
	r, err := c.rooms.ByMatch(ctx, matchID)
	if err != nil {
		return game.AttackOutcome{}, fmt.Errorf("%w: %d", ErrUnknownMatch, matchID)
	}
	return r.SubmitAttack(player, target)
}

// Snapshot returns the status of a live match.
func (c *Controller) Snapshot(ctx context.Context, matchID int64) (game.Snapshot, error) {
	r, err := c.rooms.ByMatch(ctx, matchID)
	if err != nil {
		return game.Snapshot{}, fmt.Errorf("%w: %d", ErrUnknownMatch, matchID)
	}
	snap, ok := r.Snapshot()
	if !ok {
		return game.Snapshot{}, fmt.Errorf("%w: %d", ErrUnknownMatch, matchID)
	}
	return snap, nil
}

// Disconnect unbinds peer and forfeits whatever its player was doing. A peer
// that was replaced by a newer connection only loses its binding.
func (c *Controller) Disconnect(ctx context.Context, peer Peer) {
	c.mu.Lock()
	player, ok := c.conns[peer.ID()]
	delete(c.conns, peer.ID())
	current := ok && c.online[player] == peer
	if current {
		delete(c.online, player)
	}
	c.mu.Unlock()
	if !current {
		return
	}

	changed := false
	for _, r := range c.rooms.List(ctx) {
		if !r.Has(player) {
			continue
		}
		changed = true
		if r.MatchID() == 0 {
			_ = c.rooms.Delete(ctx, r.ID)
			r.Close()
			continue
		}
		if _, err := r.HandleDisconnect(player); err != nil {
			log.Warn().Err(err).Int64("room", r.ID).Msg("disconnect")
		}
	}
	if changed {
		c.BroadcastRooms(ctx)
	}
}

// onRoomFinished removes the room, stores the match history and refreshes
// the lobby.
func (c *Controller) onRoomFinished(r *room.Room, out game.FinishOutcome) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = c.rooms.Delete(ctx, r.ID)
	r.Close()

	if out.WasRunning && out.Winner != game.NoPlayer {
		c.recordHistory(ctx, r, out)
	}
	c.BroadcastRooms(ctx)
	c.BroadcastWinners(ctx)
}

func (c *Controller) recordHistory(ctx context.Context, r *room.Room, out game.FinishOutcome) {
	snap, ok := r.Snapshot()
	if !ok {
		return
	}
	rec := users.MatchRecord{
		MatchID:    snap.ID,
		StartedAt:  r.StartedAt(),
		FinishedAt: time.Now(),
		Forfeit:    snap.Kills[out.Winner] < snap.ShipsQuantity,
	}
	for _, s := range snap.Seats {
		if s.Bot {
			rec.VsBot = true
			continue
		}
		c.mu.RLock()
		uid := c.profiles[s.ID].userID
		c.mu.RUnlock()
		if s.ID == out.Winner {
			rec.WinnerID = uid
		} else {
			rec.LoserID = uid
		}
	}
	if err := c.accounts.RecordMatch(ctx, rec); err != nil {
		log.Warn().Err(err).Int64("match", snap.ID).Msg("record match")
	}
}

// ------------------------------ delivery -----------------------------------

// Notify implements room.Notifier by sending to the player's bound peer.
func (c *Controller) Notify(player game.PlayerID, ev room.Event) {
	c.mu.RLock()
	peer := c.online[player]
	c.mu.RUnlock()
	if peer == nil {
		log.Debug().Int64("player", int64(player)).Str("type", ev.Type).Msg("player offline, event dropped")
		return
	}
	peer.Send(ev.Type, ev.Data)
}

// RecordWin implements room.WinRecorder.
func (c *Controller) RecordWin(ctx context.Context, player game.PlayerID) error {
	c.mu.RLock()
	p, ok := c.profiles[player]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no account for player %d", player)
	}
	return c.accounts.RecordWin(ctx, p.userID)
}

// Winners returns the leaderboard.
func (c *Controller) Winners(ctx context.Context) ([]users.Winner, error) {
	return c.accounts.Leaderboard(ctx, leaderboardSize)
}

// BroadcastRooms sends update_room to every connection.
func (c *Controller) BroadcastRooms(ctx context.Context) {
	if c.broadcast == nil {
		return
	}
	c.broadcast.Broadcast(EventUpdateRoom, c.AvailableRooms(ctx))
}

// BroadcastWinners sends update_winners to every connection.
func (c *Controller) BroadcastWinners(ctx context.Context) {
	if c.broadcast == nil {
		return
	}
	w, err := c.Winners(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("load winners")
		return
	}
	c.broadcast.Broadcast(EventUpdateWinners, w)
}
