// internal/game/types.go
//
// Core type definitions for the Battleship match engine.
// Defines:
//   - Position, Direction, Kind: board coordinates and ship shapes.
//   - ShipSpec: a ship layout entry as submitted by clients (and produced
//     by the fleet generator for bot seats).
//   - Status: per-cell result of an attack (miss/shot/killed).
//   - PlayerID / Seat: numeric player identity with an explicit bot tag.
//   - AttackResult, AttackOutcome, FinishOutcome, Snapshot: values handed
//     back to the orchestration layer.

package game

import "fmt"

// GridSize is the fixed board edge length.
const GridSize = 10

// Position is a board cell. X grows to the right, Y grows downwards.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// In reports whether p lies inside a gridSize x gridSize board.
func (p Position) In(gridSize int) bool {
	return p.X >= 0 && p.X < gridSize && p.Y >= 0 && p.Y < gridSize
}

func (p Position) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

// Direction is the orientation of a ship.
type Direction int

const (
	Horizontal Direction = iota // increases X
	Vertical                    // increases Y
)

func (d Direction) String() string {
	switch d {
	case Horizontal:
		return "horizontal"
	case Vertical:
		return "vertical"
	default:
		return "unknown"
	}
}

// Kind names a ship class. Values are the wire names used by clients.
type Kind string

const (
	KindBattleship Kind = "huge"
	KindCruiser    Kind = "large"
	KindDestroyer  Kind = "medium"
	KindSubmarine  Kind = "small"
)

// Size returns the number of cells a ship of kind k occupies, or 0.
func (k Kind) Size() int {
	switch k {
	case KindBattleship:
		return 4
	case KindCruiser:
		return 3
	case KindDestroyer:
		return 2
	case KindSubmarine:
		return 1
	default:
		return 0
	}
}

// ShipSpec is a raw layout entry: {position, direction, length, type}.
// Direction true means vertical.
type ShipSpec struct {
	Position  Position `json:"position"`
	Direction bool     `json:"direction"`
	Length    int      `json:"length"`
	Type      Kind     `json:"type"`
}

// Orientation converts the wire boolean into a Direction.
func (s ShipSpec) Orientation() Direction {
	if s.Direction {
		return Vertical
	}
	return Horizontal
}

// Status is the evaluation result for a single attacked cell.
type Status string

const (
	StatusMiss   Status = "miss"
	StatusShot   Status = "shot"
	StatusKilled Status = "killed"
)

// PlayerID is a process-wide numeric player identity. Zero means "nobody".
type PlayerID int64

// NoPlayer is the zero PlayerID, used when a match has no winner.
const NoPlayer PlayerID = 0

// Seat is one participant of a match.
type Seat struct {
	ID  PlayerID `json:"id"`
	Bot bool     `json:"bot"`
}

// AttackResult is one resolved cell of an attack.
type AttackResult struct {
	Position Position `json:"position"`
	Status   Status   `json:"status"`
}

// AttackOutcome is what a single Attack call produced.
type AttackOutcome struct {
	Attacker   PlayerID       `json:"attacker"`
	Results    []AttackResult `json:"results"`
	NextPlayer PlayerID       `json:"nextPlayer"`
	Finished   bool           `json:"finished"`
	Winner     PlayerID       `json:"winner,omitempty"`
}

// FinishOutcome is returned by Forfeit.
type FinishOutcome struct {
	Finished   bool     `json:"finished"`
	Winner     PlayerID `json:"winner,omitempty"`
	WasRunning bool     `json:"-"`
}

// State is the lifecycle stage of a match.
type State int

const (
	StatePending State = iota
	StateInProgress
	StateFinished
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInProgress:
		return "in_progress"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Snapshot is a pull-style view of a match.
type Snapshot struct {
	ID            int64            `json:"id"`
	State         string           `json:"state"`
	Seats         [2]Seat          `json:"seats"`
	Started       bool             `json:"started"`
	Finished      bool             `json:"finished"`
	Winner        PlayerID         `json:"winner,omitempty"`
	CurrentPlayer PlayerID         `json:"currentPlayer,omitempty"`
	Kills         map[PlayerID]int `json:"kills"`
	ShipsQuantity int              `json:"shipsQuantity"`
}
