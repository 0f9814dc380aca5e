// internal/game/fleet.go
//
// Random fleet placement for computer-controlled seats.
//
// Ships are placed one at a time, largest first. Each attempt picks an
// orientation and an anchor cell; an anchor that overflows the board is
// resampled along the constrained axis only. The candidate cells are then
// checked against a scratch board of isShip/isSea flags; any collision
// rejects the attempt and the ship starts over from the orientation choice.
// Accepted ships mark their parts as isShip and their buffer as isSea, which
// is what keeps later ships from touching earlier ones.
//
// Retries are bounded: after MaxShipAttempts rejections for a single ship the
// scratch board is wiped and the whole fleet restarts. After MaxFleetRestarts
// restarts the placer gives up with ErrPlacementExhausted.

package game

import (
	"errors"
	"math/rand/v2"
)

// ErrPlacementExhausted is returned when no legal fleet was found within the
// retry budget.
var ErrPlacementExhausted = errors.New("fleet placement exhausted retries")

const (
	defaultMaxShipAttempts  = 500
	defaultMaxFleetRestarts = 100
)

// FleetEntry is one ship of the fixed fleet.
type FleetEntry struct {
	Kind Kind
	Size int
}

// DefaultFleet is the classic 1x4, 2x3, 3x2, 4x1 fleet, largest first.
var DefaultFleet = []FleetEntry{
	{KindBattleship, 4},
	{KindCruiser, 3}, {KindCruiser, 3},
	{KindDestroyer, 2}, {KindDestroyer, 2}, {KindDestroyer, 2},
	{KindSubmarine, 1}, {KindSubmarine, 1}, {KindSubmarine, 1}, {KindSubmarine, 1},
}

// Placer generates random legal fleets.
type Placer struct {
	Rand             *rand.Rand
	GridSize         int
	Fleet            []FleetEntry
	MaxShipAttempts  int
	MaxFleetRestarts int
}

// NewPlacer returns a Placer for the default fleet on a gridSize board.
// A nil rng uses a randomly seeded PCG source.
func NewPlacer(rng *rand.Rand, gridSize int) *Placer {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Placer{
		Rand:             rng,
		GridSize:         gridSize,
		Fleet:            DefaultFleet,
		MaxShipAttempts:  defaultMaxShipAttempts,
		MaxFleetRestarts: defaultMaxFleetRestarts,
	}
}

// RandomFleet places the default fleet on an empty gridSize board.
func RandomFleet(rng *rand.Rand, gridSize int) ([]ShipSpec, error) {
	return NewPlacer(rng, gridSize).Place()
}

// scratchCell is the placement-time view of a board cell.
type scratchCell struct {
	isShip bool
	isSea  bool
}

// Place returns one ShipSpec per fleet entry, in fleet order.
func (pl *Placer) Place() ([]ShipSpec, error) {
	for restart := 0; restart <= pl.MaxFleetRestarts; restart++ {
		if specs, ok := pl.tryFleet(); ok {
			return specs, nil
		}
	}
	return nil, ErrPlacementExhausted
}

// tryFleet attempts a full fleet on a fresh scratch board.
func (pl *Placer) tryFleet() ([]ShipSpec, bool) {
	n := pl.GridSize
	cells := make([]scratchCell, n*n)
	specs := make([]ShipSpec, 0, len(pl.Fleet))

	for _, entry := range pl.Fleet {
		ship, ok := pl.placeShip(cells, entry)
		if !ok {
			return nil, false
		}
		for _, p := range ship.Parts {
			cells[p.Y*n+p.X].isShip = true
		}
		for _, p := range ship.Sea {
			cells[p.Y*n+p.X].isSea = true
		}
		specs = append(specs, ship.Spec())
	}
	return specs, true
}

// placeShip looks for a legal spot for one ship within MaxShipAttempts.
func (pl *Placer) placeShip(cells []scratchCell, entry FleetEntry) (*Ship, bool) {
	n := pl.GridSize
	if entry.Size > n {
		return nil, false
	}
	for attempt := 0; attempt < pl.MaxShipAttempts; attempt++ {
		dir := Horizontal
		if pl.Rand.IntN(2) == 0 {
			dir = Vertical
		}
		x, y := pl.Rand.IntN(n), pl.Rand.IntN(n)
		if dir == Horizontal {
			for x+entry.Size > n {
				x = pl.Rand.IntN(n)
			}
		} else {
			for y+entry.Size > n {
				y = pl.Rand.IntN(n)
			}
		}

		ship := BuildShip(entry.Kind, entry.Size, Position{X: x, Y: y}, dir, n)
		free := true
		for _, p := range ship.Parts {
			c := cells[p.Y*n+p.X]
			if c.isShip || c.isSea {
				free = false
				break
			}
		}
		if free {
			return ship, true
		}
	}
	return nil, false
}
