package game

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice PlayerID = 1
	bob   PlayerID = 2
)

// fixedFleet is a legal fleet laid out in rows 0, 2, 4 and 6.
func fixedFleet() []ShipSpec {
	return []ShipSpec{
		{Position: Position{0, 0}, Length: 4, Type: KindBattleship},
		{Position: Position{0, 2}, Length: 3, Type: KindCruiser},
		{Position: Position{4, 2}, Length: 3, Type: KindCruiser},
		{Position: Position{0, 4}, Length: 2, Type: KindDestroyer},
		{Position: Position{3, 4}, Length: 2, Type: KindDestroyer},
		{Position: Position{6, 4}, Length: 2, Type: KindDestroyer},
		{Position: Position{0, 6}, Length: 1, Type: KindSubmarine},
		{Position: Position{2, 6}, Length: 1, Type: KindSubmarine},
		{Position: Position{4, 6}, Length: 1, Type: KindSubmarine},
		{Position: Position{6, 6}, Length: 1, Type: KindSubmarine},
	}
}

// startedMatch returns a running match where alice moves first.
func startedMatch(t *testing.T) *Match {
	t.Helper()
	m := NewMatch(7, Seat{ID: alice}, Seat{ID: bob}, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, m.RegisterLayout(alice, fixedFleet()))
	require.False(t, m.CanStart())
	require.NoError(t, m.RegisterLayout(bob, fixedFleet()))
	require.True(t, m.CanStart())
	require.NoError(t, m.Start())
	m.current = alice
	return m
}

// dumpBoard renders a defender board: '#' live ship, 'x' resolved ship,
// '.' open water, 'o' resolved water.
func dumpBoard(b Board) string {
	var sb strings.Builder
	for y := range b {
		for x := range b[y] {
			c := b[y][x]
			switch {
			case c.IsShip && c.InGame:
				sb.WriteByte('#')
			case c.IsShip:
				sb.WriteByte('x')
			case c.InGame:
				sb.WriteByte('.')
			default:
				sb.WriteByte('o')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func at(x, y int) *Position { return &Position{X: x, Y: y} }

func TestMatch_Lifecycle(t *testing.T) {
	m := NewMatch(1, Seat{ID: alice}, Seat{ID: bob, Bot: true}, nil)
	assert.Equal(t, StatePending, m.State())

	_, err := m.Attack(nil)
	require.ErrorIs(t, err, ErrMatchNotRunning)
	require.ErrorIs(t, m.Start(), ErrNotReady)
	require.ErrorIs(t, m.RegisterLayout(99, fixedFleet()), ErrUnknownPlayer)

	require.NoError(t, m.RegisterLayout(alice, fixedFleet()[:1]))
	require.NoError(t, m.RegisterLayout(alice, fixedFleet()), "second submission overwrites")
	require.NoError(t, m.RegisterLayout(bob, fixedFleet()))
	require.NoError(t, m.Start())

	assert.Equal(t, StateInProgress, m.State())
	assert.Contains(t, []PlayerID{alice, bob}, m.CurrentPlayer())
	assert.Equal(t, 10, m.ShipsQuantity())
	assert.Equal(t, 0, m.Kills(alice))
	assert.Len(t, m.Layout(alice), 10)
	require.ErrorIs(t, m.RegisterLayout(alice, fixedFleet()), ErrAlreadyStarted)
	require.ErrorIs(t, m.Start(), ErrAlreadyStarted)
}

func TestMatch_RegisterRejectsOffBoardSpec(t *testing.T) {
	m := NewMatch(1, Seat{ID: alice}, Seat{ID: bob}, nil)
	bad := append(fixedFleet(), ShipSpec{Position: Position{9, 9}, Length: 2, Type: KindDestroyer})
	require.ErrorIs(t, m.RegisterLayout(alice, bad), ErrInvalidLayout)
	assert.False(t, m.CanStart())
}

func TestMatch_BoardMatrix(t *testing.T) {
	m := startedMatch(t)
	b := m.Board(bob)
	ships := 0
	for y := range b {
		for x := range b[y] {
			require.True(t, b[y][x].InGame)
			if b[y][x].IsShip {
				ships++
				require.NotNil(t, b[y][x].Ship)
			}
		}
	}
	assert.Equal(t, 20, ships)
}

func TestMatch_ShotKeepsTurn(t *testing.T) {
	m := startedMatch(t)

	out, err := m.Attack(at(0, 0))
	require.NoError(t, err)
	assert.Equal(t, []AttackResult{{Position{0, 0}, StatusShot}}, out.Results)
	assert.Equal(t, alice, out.NextPlayer)
	assert.Equal(t, alice, m.CurrentPlayer())
	assert.False(t, m.Board(bob).At(Position{0, 0}).InGame)
	assert.Equal(t, 0, m.Kills(alice))
}

func TestMatch_MissPassesTurn(t *testing.T) {
	m := startedMatch(t)

	out, err := m.Attack(at(9, 9))
	require.NoError(t, err)
	assert.Equal(t, []AttackResult{{Position{9, 9}, StatusMiss}}, out.Results)
	assert.Equal(t, bob, out.NextPlayer)
	assert.Equal(t, alice, out.Attacker)

	// bob now attacks alice's board
	out, err = m.Attack(at(9, 9))
	require.NoError(t, err)
	assert.Equal(t, bob, out.Attacker)
	assert.Equal(t, alice, m.CurrentPlayer())
}

func TestMatch_SinkSubmarineRevealsBuffer(t *testing.T) {
	m := startedMatch(t)

	out, err := m.Attack(at(2, 6))
	require.NoError(t, err)
	t.Logf("bob's board after sinking (2,6):\n%s", dumpBoard(m.Board(bob)))

	var killed, missed int
	for _, r := range out.Results {
		switch r.Status {
		case StatusKilled:
			killed++
			assert.Equal(t, Position{2, 6}, r.Position)
		case StatusMiss:
			missed++
			assert.False(t, m.Board(bob).At(r.Position).InGame)
		default:
			t.Fatalf("unexpected status %s", r.Status)
		}
	}
	assert.Equal(t, 1, killed)
	assert.Equal(t, 8, missed)
	assert.Equal(t, 1, m.Kills(alice))
	assert.Equal(t, alice, m.CurrentPlayer(), "sinking keeps the turn")

	_, err = m.Attack(at(1, 5))
	require.ErrorIs(t, err, ErrAttackNotAllowed, "revealed buffer is no longer a target")
}

func TestMatch_SinkMultiPartShip(t *testing.T) {
	m := startedMatch(t)

	_, err := m.Attack(at(3, 4))
	require.NoError(t, err)
	out, err := m.Attack(at(4, 4))
	require.NoError(t, err)

	var parts []Position
	for _, r := range out.Results {
		if r.Status == StatusKilled {
			parts = append(parts, r.Position)
		}
	}
	assert.ElementsMatch(t, []Position{{3, 4}, {4, 4}}, parts)
	assert.Len(t, out.Results, 2+10)
	assert.Equal(t, 1, m.Kills(alice))
}

func TestMatch_RepeatedAttackNotAllowed(t *testing.T) {
	m := startedMatch(t)

	_, err := m.Attack(at(0, 0))
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = m.Attack(at(0, 0))
		require.ErrorIs(t, err, ErrAttackNotAllowed)
		assert.Equal(t, 0, m.Kills(alice))
		assert.Equal(t, alice, m.CurrentPlayer())
	}

	_, err = m.Attack(at(-1, 3))
	require.ErrorIs(t, err, ErrAttackNotAllowed)
	_, err = m.Attack(at(3, GridSize))
	require.ErrorIs(t, err, ErrAttackNotAllowed)
}

func TestMatch_WinOnLastKill(t *testing.T) {
	m := startedMatch(t)

	var last AttackOutcome
	for _, spec := range fixedFleet() {
		s, err := NewShip(spec, GridSize)
		require.NoError(t, err)
		for _, p := range s.Parts {
			require.False(t, m.Finished(), "finished before the last ship")
			out, err := m.Attack(&p)
			require.NoError(t, err, "attack %s", p)
			last = out
		}
	}

	assert.True(t, last.Finished)
	assert.Equal(t, alice, last.Winner)
	assert.Equal(t, 10, m.Kills(alice))
	assert.True(t, m.Finished())
	assert.False(t, m.Started())
	assert.True(t, m.EverStarted())
	assert.Equal(t, StateFinished, m.State())

	_, err := m.Attack(nil)
	require.ErrorIs(t, err, ErrMatchNotRunning)
}

func TestMatch_RandomPlayInvariants(t *testing.T) {
	for seed := uint64(0); seed < 25; seed++ {
		rng := rand.New(rand.NewPCG(seed, 99))
		a, err := RandomFleet(rng, GridSize)
		require.NoError(t, err)
		b, err := RandomFleet(rng, GridSize)
		require.NoError(t, err)

		m := NewMatch(int64(seed), Seat{ID: alice}, Seat{ID: bob, Bot: true}, rng)
		require.NoError(t, m.RegisterLayout(alice, a))
		require.NoError(t, m.RegisterLayout(bob, b))
		require.NoError(t, m.Start())

		for turn := 0; !m.Finished(); turn++ {
			require.Less(t, turn, 400, "seed %d did not finish", seed)
			before := m.CurrentPlayer()
			out, err := m.Attack(nil)
			require.NoError(t, err)

			hit := false
			for _, r := range out.Results {
				hit = hit || r.Status != StatusMiss
			}
			if hit {
				require.Equal(t, before, m.CurrentPlayer(), "seed %d: hit must keep the turn", seed)
			} else {
				require.NotEqual(t, before, m.CurrentPlayer(), "seed %d: miss must pass the turn", seed)
			}
			require.LessOrEqual(t, m.Kills(alice)+m.Kills(bob), 2*m.ShipsQuantity())
			if m.Winner() != NoPlayer {
				require.True(t, m.Finished())
			}
		}
		require.True(t, m.EverStarted())
		require.Contains(t, []PlayerID{alice, bob}, m.Winner(), fmt.Sprintf("seed %d", seed))
		require.Equal(t, 10, m.Kills(m.Winner()))
	}
}

func TestMatch_ForfeitWhileRunning(t *testing.T) {
	m := startedMatch(t)

	out, err := m.Forfeit(alice)
	require.NoError(t, err)
	assert.True(t, out.Finished)
	assert.True(t, out.WasRunning)
	assert.Equal(t, bob, out.Winner)
	assert.True(t, m.Finished())

	again, err := m.Forfeit(bob)
	require.NoError(t, err)
	assert.Equal(t, bob, again.Winner, "forfeit on a finished match is a no-op")
	assert.False(t, again.WasRunning)
}

func TestMatch_ForfeitBeforeStart(t *testing.T) {
	m := NewMatch(1, Seat{ID: alice}, Seat{ID: bob}, nil)
	require.NoError(t, m.RegisterLayout(alice, fixedFleet()))

	out, err := m.Forfeit(bob)
	require.NoError(t, err)
	assert.True(t, out.Finished)
	assert.False(t, out.WasRunning)
	assert.Equal(t, NoPlayer, out.Winner)
	assert.False(t, m.CanStart())

	_, err = m.Forfeit(42)
	require.ErrorIs(t, err, ErrUnknownPlayer)
}

func TestMatch_Snapshot(t *testing.T) {
	m := startedMatch(t)
	_, err := m.Attack(at(6, 6))
	require.NoError(t, err)

	snap := m.Snapshot()
	assert.Equal(t, int64(7), snap.ID)
	assert.Equal(t, "in_progress", snap.State)
	assert.True(t, snap.Started)
	assert.False(t, snap.Finished)
	assert.Equal(t, alice, snap.CurrentPlayer)
	assert.Equal(t, map[PlayerID]int{alice: 1, bob: 0}, snap.Kills)
}

func TestPassesTurn(t *testing.T) {
	assert.True(t, PassesTurn(StatusMiss))
	assert.False(t, PassesTurn(StatusShot))
	assert.False(t, PassesTurn(StatusKilled))
}
