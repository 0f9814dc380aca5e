package lobby

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/battleship/apps/go-server/internal/database"
	"github.com/robalobadob/battleship/apps/go-server/internal/game"
	"github.com/robalobadob/battleship/apps/go-server/internal/room"
	"github.com/robalobadob/battleship/apps/go-server/internal/store"
	"github.com/robalobadob/battleship/apps/go-server/internal/users"
)

type msg struct {
	typ  string
	data any
}

type fakePeer struct {
	id   string
	mu   sync.Mutex
	msgs []msg
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(typ string, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg{typ, data})
}

func (p *fakePeer) of(typ string) []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []any
	for _, m := range p.msgs {
		if m.typ == typ {
			out = append(out, m.data)
		}
	}
	return out
}

type fakeHub struct {
	mu   sync.Mutex
	msgs []msg
}

func (h *fakeHub) Broadcast(typ string, data any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msg{typ, data})
}

func (h *fakeHub) last(typ string) any {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.msgs) - 1; i >= 0; i-- {
		if h.msgs[i].typ == typ {
			return h.msgs[i].data
		}
	}
	return nil
}

type fixture struct {
	ctl   *Controller
	hub   *fakeHub
	users *users.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "lobby.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	us := users.NewStore(db)
	hub := &fakeHub{}
	ctl := New(us, store.NewMemoryStore(), hub, Config{BotDelay: time.Millisecond})
	return &fixture{ctl: ctl, hub: hub, users: us}
}

func (f *fixture) register(t *testing.T, name string) (*fakePeer, game.PlayerID) {
	t.Helper()
	p := &fakePeer{id: "conn-" + name}
	res, err := f.ctl.Register(context.Background(), p, name, "pw-"+name)
	require.NoError(t, err)
	require.False(t, res.Error, res.ErrorText)
	return p, res.Index
}

func matchOf(t *testing.T, p *fakePeer) int64 {
	t.Helper()
	cg := p.of(room.EventCreateGame)
	require.NotEmpty(t, cg)
	return cg[len(cg)-1].(room.CreateGame).IDGame
}

func randomFleet(t *testing.T, seed uint64) []game.ShipSpec {
	t.Helper()
	specs, err := game.RandomFleet(rand.New(rand.NewPCG(seed, 7)), game.GridSize)
	require.NoError(t, err)
	return specs
}

func TestRegister_LoginAndWrongPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p1, id := f.register(t, "alice")
	assert.NotZero(t, id)
	got, ok := f.ctl.PlayerOf(p1)
	require.True(t, ok)
	assert.Equal(t, id, got)

	p2 := &fakePeer{id: "other"}
	res, err := f.ctl.Register(ctx, p2, "alice", "pw-alice")
	require.NoError(t, err)
	assert.Equal(t, id, res.Index, "one player id per account")

	res, err = f.ctl.Register(ctx, &fakePeer{id: "x"}, "alice", "nope")
	require.NoError(t, err)
	assert.True(t, res.Error)
	assert.Equal(t, "Invalid password!", res.ErrorText)
	assert.Equal(t, "alice", res.Name)
	_, ok = f.ctl.PlayerOf(&fakePeer{id: "x"})
	assert.False(t, ok)
}

func TestCreateRoom_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctl.CreateRoom(ctx, &fakePeer{id: "anon"})
	require.ErrorIs(t, err, ErrUnknownConnection)

	p, id := f.register(t, "alice")
	r, err := f.ctl.CreateRoom(ctx, p)
	require.NoError(t, err)
	_, err = f.ctl.CreateRoom(ctx, p)
	require.ErrorIs(t, err, ErrAlreadyInRoom)

	rooms := f.ctl.AvailableRooms(ctx)
	require.Len(t, rooms, 1)
	assert.Equal(t, RoomInfo{RoomID: r.ID, RoomUsers: []RoomUser{{Name: "alice", Index: id}}}, rooms[0])
	assert.Equal(t, rooms, f.hub.last(EventUpdateRoom))

	require.ErrorIs(t, f.ctl.AddUserToRoom(ctx, p, r.ID), ErrAlreadyInRoom)
	require.ErrorIs(t, f.ctl.AddUserToRoom(ctx, p, 999), ErrUnknownRoom)
}

func TestAddUserToRoom_CreatesMatchAndDropsOtherRooms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, aliceID := f.register(t, "alice")
	bob, bobID := f.register(t, "bob")
	r, err := f.ctl.CreateRoom(ctx, alice)
	require.NoError(t, err)
	_, err = f.ctl.CreateRoom(ctx, bob)
	require.NoError(t, err)
	require.Len(t, f.ctl.AvailableRooms(ctx), 2)

	require.NoError(t, f.ctl.AddUserToRoom(ctx, bob, r.ID))
	assert.Empty(t, f.ctl.AvailableRooms(ctx), "joined room is full and bob's own room is gone")

	mid := matchOf(t, alice)
	assert.Equal(t, mid, matchOf(t, bob))
	assert.Equal(t, room.CreateGame{IDGame: mid, IDPlayer: aliceID}, alice.of(room.EventCreateGame)[0])
	assert.Equal(t, room.CreateGame{IDGame: mid, IDPlayer: bobID}, bob.of(room.EventCreateGame)[0])

	snap, err := f.ctl.Snapshot(ctx, mid)
	require.NoError(t, err)
	assert.Equal(t, "pending", snap.State)

	require.ErrorIs(t, f.ctl.SinglePlay(ctx, bob), ErrAlreadyInRoom)
}

func TestMatch_PlayedToTheEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, aliceID := f.register(t, "alice")
	bob, bobID := f.register(t, "bob")
	r, err := f.ctl.CreateRoom(ctx, alice)
	require.NoError(t, err)
	require.NoError(t, f.ctl.AddUserToRoom(ctx, bob, r.ID))
	mid := matchOf(t, alice)

	_, err = f.ctl.Attack(ctx, mid, aliceID, nil)
	require.ErrorIs(t, err, game.ErrMatchNotRunning)

	require.NoError(t, f.ctl.AddShips(ctx, mid, aliceID, randomFleet(t, 1)))
	require.NoError(t, f.ctl.AddShips(ctx, mid, bobID, randomFleet(t, 2)))
	require.Len(t, alice.of(room.EventStartGame), 1)
	require.Len(t, bob.of(room.EventStartGame), 1)

	var winner game.PlayerID
	for i := 0; i < 400 && winner == game.NoPlayer; i++ {
		snap, err := f.ctl.Snapshot(ctx, mid)
		require.NoError(t, err)
		out, err := f.ctl.Attack(ctx, mid, snap.CurrentPlayer, nil)
		require.NoError(t, err)
		winner = out.Winner
	}
	require.Contains(t, []game.PlayerID{aliceID, bobID}, winner)

	fin := alice.of(room.EventFinish)
	require.Len(t, fin, 1)
	assert.Equal(t, room.Finish{WinPlayer: winner}, fin[0])

	_, err = f.ctl.Snapshot(ctx, mid)
	require.ErrorIs(t, err, ErrUnknownMatch, "finished rooms are removed")

	name := map[game.PlayerID]string{aliceID: "alice", bobID: "bob"}[winner]
	winners := f.hub.last(EventUpdateWinners).([]users.Winner)
	require.NotEmpty(t, winners)
	assert.Equal(t, users.Winner{Name: name, Wins: 1}, winners[0])

	u, err := f.users.FindByUsername(ctx, name)
	require.NoError(t, err)
	hist, err := f.users.RecentMatches(ctx, u.ID, 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "won", hist[0].Result)
	assert.False(t, hist[0].Forfeit)
	assert.Equal(t, 1, u.GamesPlayed)
}

func TestSinglePlay_AgainstBot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, aliceID := f.register(t, "alice")
	_, err := f.ctl.CreateRoom(ctx, alice)
	require.NoError(t, err)
	require.NoError(t, f.ctl.SinglePlay(ctx, alice))
	assert.Empty(t, f.ctl.AvailableRooms(ctx), "single play closes the open room")

	mid := matchOf(t, alice)
	require.NoError(t, f.ctl.AddShips(ctx, mid, aliceID, randomFleet(t, 3)))
	require.Len(t, alice.of(room.EventStartGame), 1)

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) && len(alice.of(room.EventFinish)) == 0 {
		snap, err := f.ctl.Snapshot(ctx, mid)
		if err != nil {
			break // removed after finish
		}
		if snap.CurrentPlayer == aliceID && !snap.Finished {
			_, _ = f.ctl.Attack(ctx, mid, aliceID, nil)
			continue
		}
		time.Sleep(time.Millisecond)
	}
	require.Eventually(t, func() bool { return len(alice.of(room.EventFinish)) == 1 }, 5*time.Second, 5*time.Millisecond)

	winner := alice.of(room.EventFinish)[0].(room.Finish).WinPlayer
	u, err := f.users.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	if winner == aliceID {
		assert.Equal(t, 1, u.Wins)
	} else {
		assert.Equal(t, 0, u.Wins)
	}
	require.Eventually(t, func() bool {
		hist, err := f.users.RecentMatches(ctx, u.ID, 0)
		return err == nil && len(hist) == 1 && hist[0].VsBot
	}, 5*time.Second, 5*time.Millisecond)
}

func TestDisconnect_ForfeitsRunningMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, aliceID := f.register(t, "alice")
	bob, bobID := f.register(t, "bob")
	r, err := f.ctl.CreateRoom(ctx, alice)
	require.NoError(t, err)
	require.NoError(t, f.ctl.AddUserToRoom(ctx, bob, r.ID))
	mid := matchOf(t, alice)
	require.NoError(t, f.ctl.AddShips(ctx, mid, aliceID, randomFleet(t, 1)))
	require.NoError(t, f.ctl.AddShips(ctx, mid, bobID, randomFleet(t, 2)))

	f.ctl.Disconnect(ctx, alice)

	require.Len(t, bob.of(room.EventFinish), 1)
	assert.Equal(t, room.Finish{WinPlayer: bobID}, bob.of(room.EventFinish)[0])
	_, err = f.ctl.Snapshot(ctx, mid)
	require.ErrorIs(t, err, ErrUnknownMatch)

	u, err := f.users.FindByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, u.Wins)
	hist, err := f.users.RecentMatches(ctx, u.ID, 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.True(t, hist[0].Forfeit)

	_, ok := f.ctl.PlayerOf(alice)
	assert.False(t, ok)
}

func TestDisconnect_OpenRoomAndStaleConnection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, _ := f.register(t, "alice")
	_, err := f.ctl.CreateRoom(ctx, alice)
	require.NoError(t, err)

	// a second login takes over; closing the first connection changes nothing
	fresh := &fakePeer{id: "fresh"}
	_, err = f.ctl.Register(ctx, fresh, "alice", "pw-alice")
	require.NoError(t, err)
	f.ctl.Disconnect(ctx, alice)
	require.Len(t, f.ctl.AvailableRooms(ctx), 1)

	f.ctl.Disconnect(ctx, fresh)
	assert.Empty(t, f.ctl.AvailableRooms(ctx))
}

func TestUnknownMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.ctl.AddShips(ctx, 42, 1, nil)
	require.ErrorIs(t, err, ErrUnknownMatch)
	_, err = f.ctl.Attack(ctx, 42, 1, &game.Position{})
	require.ErrorIs(t, err, ErrUnknownMatch)
	_, err = f.ctl.Snapshot(ctx, 42)
	require.ErrorIs(t, err, ErrUnknownMatch)
}

func TestWinners_IncludesEveryAccount(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.register(t, fmt.Sprintf("player%d", i))
	}
	w, err := f.ctl.Winners(context.Background())
	require.NoError(t, err)
	assert.Len(t, w, 3)
}
