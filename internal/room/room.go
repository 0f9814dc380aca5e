// internal/room/room.go
//
// A Room binds two seats (human or bot) to one game.Match and turns every
// match transition into outbound events.
// Responsibilities:
//   - Seat a host and a guest, then create the match (bot fleets are
//     generated here) and send create_game to the humans.
//   - Forward layouts; start the match once both are in and announce
//     start_game + turn.
//   - Enforce turn ownership on attacks, fan out attack/turn/finish events
//     and record wins for human winners.
//   - Drive the bot with a single cancellable delayed move.
//   - Forfeit on disconnect.
//
// Notes:
//   - Every Match call and the events it produces happen under Room.mu, so
//     events for one match are delivered in order.
//   - Win recording and the finish hook run after the lock is released; they
//     may do I/O or call back into the lobby.

package room

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/battleship/apps/go-server/internal/game"
)

var (
	ErrRoomFull      = errors.New("room is full")
	ErrAlreadySeated = errors.New("player is already seated in this room")
	ErrNoMatch       = errors.New("room has no match yet")
)

// DefaultBotDelay is the pause before the bot takes its move.
const DefaultBotDelay = time.Second

// Notifier delivers an event to one player. Delivery is fire-and-forget.
type Notifier interface {
	Notify(player game.PlayerID, ev Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(player game.PlayerID, ev Event)

func (f NotifierFunc) Notify(player game.PlayerID, ev Event) { f(player, ev) }

// WinRecorder persists a win for a human player.
type WinRecorder interface {
	RecordWin(ctx context.Context, player game.PlayerID) error
}

// Options configures a Room. Zero values fall back to defaults.
type Options struct {
	Notifier Notifier
	Wins     WinRecorder
	BotDelay time.Duration
	Rand     *rand.Rand

	// OnFinish runs once when the match ends, by win or forfeit.
	OnFinish func(r *Room, out game.FinishOutcome)
}

// Room is one table: up to two seats and, once paired, a match.
type Room struct {
	ID int64

	mu       sync.Mutex
	seats    []game.Seat
	match    *game.Match
	notifier Notifier
	wins     WinRecorder
	onFinish func(*Room, game.FinishOutcome)
	rng      *rand.Rand
	log      zerolog.Logger

	botDelay time.Duration
	botTimer *time.Timer
	botGen   uint64
	done     bool // finish already handled

	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// New opens a room with host in the first seat.
func New(id int64, host game.Seat, opts Options) *Room {
	if opts.BotDelay <= 0 {
		opts.BotDelay = DefaultBotDelay
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if opts.Notifier == nil {
		opts.Notifier = NotifierFunc(func(game.PlayerID, Event) {})
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Room{
		ID:       id,
		seats:    []game.Seat{host},
		notifier: opts.Notifier,
		wins:     opts.Wins,
		onFinish: opts.OnFinish,
		rng:      opts.Rand,
		log:      log.With().Int64("room", id).Logger(),
		botDelay: opts.BotDelay,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Join seats a second participant.
func (r *Room) Join(seat game.Seat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.seats {
		if s.ID == seat.ID {
			return ErrAlreadySeated
		}
	}
	if len(r.seats) >= 2 {
		return ErrRoomFull
	}
	r.seats = append(r.seats, seat)
	return nil
}

// Seats returns a copy of the current seats in join order.
func (r *Room) Seats() []game.Seat {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]game.Seat(nil), r.seats...)
}

// Open reports whether the room is waiting for a second player.
func (r *Room) Open() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seats) < 2 && r.match == nil
}

// Has reports whether player holds a seat.
func (r *Room) Has(player game.PlayerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.seats {
		if s.ID == player {
			return true
		}
	}
	return false
}

// MatchID returns the id of the room's match, or 0 before CreateMatch.
func (r *Room) MatchID() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.match == nil {
		return 0
	}
	return r.match.ID
}

// CreateMatch builds the match for a full room. Bot seats get a random
// fleet registered immediately; human seats receive create_game.
func (r *Room) CreateMatch(matchID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.match != nil {
		return game.ErrAlreadyStarted
	}
	if len(r.seats) != 2 {
		return fmt.Errorf("create match: %d seats", len(r.seats))
	}

	m := game.NewMatch(matchID, r.seats[0], r.seats[1], r.rng)
	for _, s := range r.seats {
		if !s.Bot {
			continue
		}
		specs, err := game.RandomFleet(r.rng, m.GridSize)
		if err != nil {
			return fmt.Errorf("bot fleet: %w", err)
		}
		if err := m.RegisterLayout(s.ID, specs); err != nil {
			return fmt.Errorf("bot layout: %w", err)
		}
	}
	r.match = m
	r.log = r.log.With().Int64("match", matchID).Logger()

	for _, s := range r.seats {
		if s.Bot {
			continue
		}
		r.notifier.Notify(s.ID, Event{Type: EventCreateGame, Data: CreateGame{IDGame: matchID, IDPlayer: s.ID}})
	}
	r.log.Info().Interface("seats", r.seats).Msg("match created")
	return nil
}

// SubmitLayout registers player's ships and starts the match when both
// layouts are present.
func (r *Room) SubmitLayout(player game.PlayerID, specs []game.ShipSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.match == nil {
		return ErrNoMatch
	}
	if err := r.match.RegisterLayout(player, specs); err != nil {
		return err
	}
	if !r.match.CanStart() {
		return nil
	}
	if err := r.match.Start(); err != nil {
		return err
	}

	r.startedAt = time.Now()
	first := r.match.CurrentPlayer()
	for _, s := range r.seats {
		if s.Bot {
			continue
		}
		r.notifier.Notify(s.ID, Event{Type: EventStartGame, Data: StartGame{
			Ships:              r.match.Layout(s.ID),
			CurrentPlayerIndex: first,
		}})
	}
	r.broadcastLocked(Event{Type: EventTurn, Data: Turn{CurrentPlayer: first}})
	r.log.Info().Int64("first", int64(first)).Msg("match started")
	r.maybeScheduleBotLocked()
	return nil
}

// SubmitAttack resolves an attack by player. A nil target asks for a random
// cell. Requests from the wrong player or outside a running match are
// rejected without any event. An illegal target is reported as
// game.ErrAttackNotAllowed after the current turn has been re-announced.
func (r *Room) SubmitAttack(player game.PlayerID, target *game.Position) (game.AttackOutcome, error) {
	r.mu.Lock()
	out, fin, err := r.attackLocked(player, target)
	r.mu.Unlock()

	if fin != nil {
		r.finalize(*fin)
	}
	return out, err
}

func (r *Room) attackLocked(player game.PlayerID, target *game.Position) (game.AttackOutcome, *game.FinishOutcome, error) {
	if r.match == nil || !r.match.Started() {
		return game.AttackOutcome{}, nil, game.ErrMatchNotRunning
	}
	if player != r.match.CurrentPlayer() {
		return game.AttackOutcome{}, nil, game.ErrNotYourTurn
	}

	out, err := r.match.Attack(target)
	if err != nil {
		if errors.Is(err, game.ErrAttackNotAllowed) {
			r.log.Debug().Err(err).Int64("player", int64(player)).Msg("attack rejected")
			r.broadcastLocked(Event{Type: EventTurn, Data: Turn{CurrentPlayer: r.match.CurrentPlayer()}})
			r.maybeScheduleBotLocked()
		}
		return out, nil, err
	}

	for _, res := range out.Results {
		r.broadcastLocked(Event{Type: EventAttack, Data: Attack{
			Position:      res.Position,
			CurrentPlayer: out.Attacker,
			Status:        res.Status,
		}})
	}
	r.broadcastLocked(Event{Type: EventTurn, Data: Turn{CurrentPlayer: out.NextPlayer}})

	if out.Finished {
		r.broadcastLocked(Event{Type: EventFinish, Data: Finish{WinPlayer: out.Winner}})
		r.finishLocked()
		fin := game.FinishOutcome{Finished: true, Winner: out.Winner, WasRunning: true}
		return out, &fin, nil
	}
	r.maybeScheduleBotLocked()
	return out, nil, nil
}

// HandleDisconnect forfeits the match on behalf of player. A running match
// is awarded to the other seat and announced with finish; a match that never
// started ends silently. Without a match the call is a no-op.
func (r *Room) HandleDisconnect(player game.PlayerID) (game.FinishOutcome, error) {
	r.mu.Lock()
	if r.match == nil {
		r.mu.Unlock()
		return game.FinishOutcome{}, nil
	}
	already := r.done
	out, err := r.match.Forfeit(player)
	if err != nil || already {
		r.mu.Unlock()
		return out, err
	}
	if out.WasRunning {
		for _, s := range r.seats {
			if s.Bot || s.ID == player {
				continue
			}
			r.notifier.Notify(s.ID, Event{Type: EventFinish, Data: Finish{WinPlayer: out.Winner}})
		}
	}
	r.finishLocked()
	r.mu.Unlock()

	r.log.Info().Int64("player", int64(player)).Bool("running", out.WasRunning).Msg("player left")
	r.finalize(out)
	return out, nil
}

// finishLocked marks the room done and stops the bot.
func (r *Room) finishLocked() {
	r.done = true
	r.stopBotLocked()
}

// finalize records the win and runs the finish hook. Called without r.mu.
func (r *Room) finalize(out game.FinishOutcome) {
	if out.Winner != game.NoPlayer && r.wins != nil && !r.isBot(out.Winner) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.wins.RecordWin(ctx, out.Winner); err != nil {
			r.log.Warn().Err(err).Int64("player", int64(out.Winner)).Msg("record win")
		}
		cancel()
	}
	r.log.Info().Int64("winner", int64(out.Winner)).Msg("match finished")
	if r.onFinish != nil {
		r.onFinish(r, out)
	}
}

func (r *Room) isBot(p game.PlayerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.seats {
		if s.ID == p {
			return s.Bot
		}
	}
	return false
}

// Close cancels any pending bot move. The room is unusable afterwards.
func (r *Room) Close() {
	r.cancel()
	r.mu.Lock()
	r.stopBotLocked()
	r.mu.Unlock()
}

// StartedAt returns when both layouts were in and play began, or the zero
// time if the match never started.
func (r *Room) StartedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startedAt
}

// Snapshot returns the match view, or false before the match exists.
func (r *Room) Snapshot() (game.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.match == nil {
		return game.Snapshot{}, false
	}
	return r.match.Snapshot(), true
}

// broadcastLocked sends ev to every human seat.
func (r *Room) broadcastLocked(ev Event) {
	for _, s := range r.seats {
		if !s.Bot {
			r.notifier.Notify(s.ID, ev)
		}
	}
}
