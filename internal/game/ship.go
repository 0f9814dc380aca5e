package game

import (
	"errors"
	"fmt"
)

// ErrInvalidLayout is returned when a ship spec cannot be placed on the board.
var ErrInvalidLayout = errors.New("invalid ship layout")

// Ship is a placed ship with its buffer ("sea") cells and hit state.
type Ship struct {
	Kind  Kind
	Parts []Position // occupied cells, from the start cell along the direction
	Sea   []Position // buffer cells that must stay empty, revealed on kill

	hit    []bool
	hits   int
	killed bool
}

// BuildShip computes the cells of a ship of the given size starting at start
// and extending along dir, plus its buffer. Cells outside the board are
// dropped from the buffer; the parts themselves are not bounds-checked here
// (see NewShip).
func BuildShip(kind Kind, size int, start Position, dir Direction, gridSize int) *Ship {
	s := &Ship{
		Kind:  kind,
		Parts: make([]Position, 0, size),
		Sea:   make([]Position, 0, 2*size+6),
		hit:   make([]bool, size),
	}

	// step moves along the ship, side moves across it.
	step, side := Position{X: 1}, Position{Y: 1}
	if dir == Vertical {
		step, side = Position{Y: 1}, Position{X: 1}
	}
	at := func(p Position, along, across int) Position {
		return Position{
			X: p.X + along*step.X + across*side.X,
			Y: p.Y + along*step.Y + across*side.Y,
		}
	}
	addSea := func(p Position) {
		if p.In(gridSize) {
			s.Sea = append(s.Sea, p)
		}
	}

	for i := 0; i < size; i++ {
		p := at(start, i, 0)
		s.Parts = append(s.Parts, p)

		addSea(at(p, 0, -1))
		addSea(at(p, 0, 1))
		if i == 0 {
			addSea(at(p, -1, -1))
			addSea(at(p, -1, 0))
			addSea(at(p, -1, 1))
		}
		if i == size-1 {
			addSea(at(p, 1, -1))
			addSea(at(p, 1, 0))
			addSea(at(p, 1, 1))
		}
	}
	return s
}

// NewShip builds a ship from a raw spec and rejects specs that do not fit
// on the board. Overlap and adjacency between ships are not checked.
func NewShip(spec ShipSpec, gridSize int) (*Ship, error) {
	size := spec.Length
	if size <= 0 {
		size = spec.Type.Size()
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: ship %q has no size", ErrInvalidLayout, spec.Type)
	}
	s := BuildShip(spec.Type, size, spec.Position, spec.Orientation(), gridSize)
	for _, p := range s.Parts {
		if !p.In(gridSize) {
			return nil, fmt.Errorf("%w: %s %s at %s leaves the board",
				ErrInvalidLayout, spec.Type, spec.Orientation(), spec.Position)
		}
	}
	return s, nil
}

// Size is the number of occupied cells.
func (s *Ship) Size() int { return len(s.Parts) }

// Killed reports whether every part has been hit.
func (s *Ship) Killed() bool { return s.killed }

// Hits is the number of distinct parts hit so far.
func (s *Ship) Hits() int { return s.hits }

// Occupies reports whether p is one of the ship's parts.
func (s *Ship) Occupies(p Position) bool { return s.partIndex(p) >= 0 }

// Borders reports whether p is one of the ship's buffer cells.
func (s *Ship) Borders(p Position) bool {
	for _, q := range s.Sea {
		if q == p {
			return true
		}
	}
	return false
}

// Shot marks the part at p as hit and reports whether the ship is now killed.
// Hitting the same part twice counts once; a killed ship stays killed.
func (s *Ship) Shot(p Position) bool {
	if s.killed {
		return true
	}
	if i := s.partIndex(p); i >= 0 && !s.hit[i] {
		s.hit[i] = true
		s.hits++
	}
	if s.hits >= len(s.Parts) {
		s.killed = true
	}
	return s.killed
}

// Spec converts the ship back into its wire representation.
func (s *Ship) Spec() ShipSpec {
	vertical := len(s.Parts) > 1 && s.Parts[1].Y != s.Parts[0].Y
	return ShipSpec{
		Position:  s.Parts[0],
		Direction: vertical,
		Length:    len(s.Parts),
		Type:      s.Kind,
	}
}

func (s *Ship) partIndex(p Position) int {
	for i, q := range s.Parts {
		if q == p {
			return i
		}
	}
	return -1
}
