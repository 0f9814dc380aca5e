// internal/game/engine.go
//
// Match state machine for a single two-seat Battleship game.
// Responsibilities:
//   - Collect both seats' ship layouts (Pending).
//   - Start: pick the first mover at random, build ships and per-defender
//     board matrices (InProgress).
//   - Resolve attacks against the current defender's board, apply the turn
//     rule and detect the winner (Finished).
//   - Forfeit on disconnect.
//
// Notes:
//   - A Match is not safe for concurrent use; the owning room serializes
//     every call.
//   - Randomness (first mover, random attacks) comes from an injectable
//     *rand.Rand so tests can be deterministic.
package game

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

var (
	ErrAttackNotAllowed = errors.New("attack not allowed")
	ErrNotYourTurn      = errors.New("not your turn")
	ErrMatchNotRunning  = errors.New("match is not in progress")
	ErrAlreadyStarted   = errors.New("match already started")
	ErrNotReady         = errors.New("both layouts are required to start")
	ErrUnknownPlayer    = errors.New("player is not seated in this match")
)

// Cell is one defender cell.
type Cell struct {
	IsShip bool
	InGame bool  // false once resolved by an attack or revealed as buffer
	Ship   *Ship // set when IsShip
}

// Board is a defender's cell matrix indexed [y][x].
type Board [][]Cell

// At returns the cell at p. p must be in bounds.
func (b Board) At(p Position) *Cell { return &b[p.Y][p.X] }

// Match holds the state of one game between two seats.
type Match struct {
	ID       int64
	GridSize int

	seats   [2]Seat
	current PlayerID
	layouts map[PlayerID][]ShipSpec
	ships   map[PlayerID][]*Ship
	boards  map[PlayerID]Board
	kills   map[PlayerID]int

	shipsQuantity int
	started       bool
	everStarted   bool
	finished      bool
	winner        PlayerID

	rng *rand.Rand
}

// NewMatch constructs a pending match between seats a and b.
// A nil rng uses a randomly seeded PCG source.
func NewMatch(id int64, a, b Seat, rng *rand.Rand) *Match {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Match{
		ID:       id,
		GridSize: GridSize,
		seats:    [2]Seat{a, b},
		layouts:  make(map[PlayerID][]ShipSpec, 2),
		ships:    make(map[PlayerID][]*Ship, 2),
		boards:   make(map[PlayerID]Board, 2),
		kills:    make(map[PlayerID]int, 2),
		rng:      rng,
	}
}

// RegisterLayout stores a seat's raw ship specs. Registering twice for the
// same seat overwrites the earlier layout. Specs are only checked to lie on
// the board; overlap and adjacency are the submitter's responsibility.
func (m *Match) RegisterLayout(player PlayerID, specs []ShipSpec) error {
	if m.started || m.finished {
		return ErrAlreadyStarted
	}
	if !m.seated(player) {
		return ErrUnknownPlayer
	}
	for _, spec := range specs {
		if _, err := NewShip(spec, m.GridSize); err != nil {
			return err
		}
	}
	m.layouts[player] = append([]ShipSpec(nil), specs...)
	return nil
}

// CanStart reports whether both seats have registered a layout.
func (m *Match) CanStart() bool {
	if m.started || m.finished {
		return false
	}
	for _, s := range m.seats {
		if _, ok := m.layouts[s.ID]; !ok {
			return false
		}
	}
	return true
}

// Start picks the first mover and builds both boards.
func (m *Match) Start() error {
	if m.started || m.finished {
		return ErrAlreadyStarted
	}
	if !m.CanStart() {
		return ErrNotReady
	}

	m.current = m.seats[m.rng.IntN(2)].ID
	for _, s := range m.seats {
		m.kills[s.ID] = 0

		ships := make([]*Ship, 0, len(m.layouts[s.ID]))
		for _, spec := range m.layouts[s.ID] {
			ship, err := NewShip(spec, m.GridSize)
			if err != nil {
				return fmt.Errorf("seat %d: %w", s.ID, err)
			}
			ships = append(ships, ship)
		}
		m.ships[s.ID] = ships
		m.boards[s.ID] = buildBoard(ships, m.GridSize)
	}
	m.shipsQuantity = len(m.ships[m.seats[0].ID])
	m.started, m.everStarted = true, true
	return nil
}

// buildBoard tests every cell against every ship's parts and buffer.
func buildBoard(ships []*Ship, gridSize int) Board {
	b := make(Board, gridSize)
	for y := 0; y < gridSize; y++ {
		b[y] = make([]Cell, gridSize)
		for x := 0; x < gridSize; x++ {
			p := Position{X: x, Y: y}
			c := Cell{InGame: true}
			for _, s := range ships {
				if s.Occupies(p) {
					c.IsShip, c.Ship = true, s
					break
				}
			}
			b[y][x] = c
		}
	}
	return b
}

// Attack resolves a shot by the current player against the other seat.
// A nil target picks a random unresolved cell. Attacking a resolved or
// off-board cell returns ErrAttackNotAllowed without changing any state.
func (m *Match) Attack(target *Position) (AttackOutcome, error) {
	if !m.started || m.finished {
		return AttackOutcome{}, ErrMatchNotRunning
	}
	attacker := m.current
	defender := m.opponent(attacker)
	board := m.boards[defender]

	var p Position
	if target == nil {
		open := m.openCells(defender)
		if len(open) == 0 {
			return AttackOutcome{}, ErrAttackNotAllowed
		}
		p = open[m.rng.IntN(len(open))]
	} else {
		p = *target
	}
	if !p.In(m.GridSize) || !board.At(p).InGame {
		return AttackOutcome{}, fmt.Errorf("%w: %s", ErrAttackNotAllowed, p)
	}

	var (
		results []AttackResult
		status  Status
	)
	cell := board.At(p)
	switch {
	case cell.IsShip && cell.Ship != nil && !cell.Ship.Killed():
		if cell.Ship.Shot(p) {
			status = StatusKilled
			for _, part := range cell.Ship.Parts {
				board.At(part).InGame = false
				results = append(results, AttackResult{Position: part, Status: StatusKilled})
			}
			for _, sea := range cell.Ship.Sea {
				board.At(sea).InGame = false
				results = append(results, AttackResult{Position: sea, Status: StatusMiss})
			}
			m.kills[attacker]++
		} else {
			status = StatusShot
			cell.InGame = false
			results = append(results, AttackResult{Position: p, Status: StatusShot})
		}
	default:
		status = StatusMiss
		cell.InGame = false
		results = append(results, AttackResult{Position: p, Status: StatusMiss})
	}

	if PassesTurn(status) {
		m.current = defender
	}
	m.checkFinished()

	return AttackOutcome{
		Attacker:   attacker,
		Results:    results,
		NextPlayer: m.current,
		Finished:   m.finished,
		Winner:     m.winner,
	}, nil
}

// checkFinished declares the first seat (in seat order) whose kill count has
// reached the fleet size the winner.
func (m *Match) checkFinished() {
	if m.finished || m.shipsQuantity == 0 {
		return
	}
	for _, s := range m.seats {
		if m.kills[s.ID] >= m.shipsQuantity {
			m.finished = true
			m.started = false
			m.winner = s.ID
			return
		}
	}
}

// Forfeit ends the match because player left. A running match is awarded to
// the other seat; a pending one ends without a winner. Calling Forfeit on a
// finished match reports the existing result.
func (m *Match) Forfeit(player PlayerID) (FinishOutcome, error) {
	if !m.seated(player) {
		return FinishOutcome{}, ErrUnknownPlayer
	}
	if m.finished {
		return FinishOutcome{Finished: true, Winner: m.winner}, nil
	}
	running := m.started
	m.finished = true
	m.started = false
	if running {
		m.winner = m.opponent(player)
	}
	return FinishOutcome{Finished: true, Winner: m.winner, WasRunning: running}, nil
}

// State reports the lifecycle stage.
func (m *Match) State() State {
	switch {
	case m.finished:
		return StateFinished
	case m.started:
		return StateInProgress
	default:
		return StatePending
	}
}

func (m *Match) Seats() [2]Seat          { return m.seats }
func (m *Match) CurrentPlayer() PlayerID { return m.current }
func (m *Match) Started() bool           { return m.started }
func (m *Match) EverStarted() bool       { return m.everStarted }
func (m *Match) Finished() bool          { return m.finished }
func (m *Match) Winner() PlayerID        { return m.winner }
func (m *Match) Kills(p PlayerID) int    { return m.kills[p] }
func (m *Match) ShipsQuantity() int      { return m.shipsQuantity }

// Layout returns a copy of the specs player registered.
func (m *Match) Layout(player PlayerID) []ShipSpec {
	return append([]ShipSpec(nil), m.layouts[player]...)
}

// Board returns player's own board (the one the opponent attacks).
func (m *Match) Board(player PlayerID) Board { return m.boards[player] }

// Seat returns the seat for player.
func (m *Match) Seat(player PlayerID) (Seat, bool) {
	for _, s := range m.seats {
		if s.ID == player {
			return s, true
		}
	}
	return Seat{}, false
}

// Snapshot returns a pull-style view of the match.
func (m *Match) Snapshot() Snapshot {
	kills := make(map[PlayerID]int, 2)
	for _, s := range m.seats {
		kills[s.ID] = m.kills[s.ID]
	}
	return Snapshot{
		ID:            m.ID,
		State:         m.State().String(),
		Seats:         m.seats,
		Started:       m.started,
		Finished:      m.finished,
		Winner:        m.winner,
		CurrentPlayer: m.current,
		Kills:         kills,
		ShipsQuantity: m.shipsQuantity,
	}
}

func (m *Match) seated(p PlayerID) bool {
	_, ok := m.Seat(p)
	return ok
}

func (m *Match) opponent(p PlayerID) PlayerID {
	if m.seats[0].ID == p {
		return m.seats[1].ID
	}
	return m.seats[0].ID
}

// openCells lists the defender's unresolved cells in row-major order.
func (m *Match) openCells(defender PlayerID) []Position {
	board := m.boards[defender]
	open := make([]Position, 0, m.GridSize*m.GridSize)
	for y := range board {
		for x := range board[y] {
			if board[y][x].InGame {
				open = append(open, Position{X: x, Y: y})
			}
		}
	}
	return open
}
