package room

import (
	"time"

	"github.com/robalobadob/battleship/apps/go-server/internal/game"
)

// maybeScheduleBotLocked arms the bot's move timer when the bot holds the
// turn of a running match. At most one move is pending per room.
func (r *Room) maybeScheduleBotLocked() {
	if r.match == nil || !r.match.Started() || r.done || r.ctx.Err() != nil {
		return
	}
	seat, ok := r.match.Seat(r.match.CurrentPlayer())
	if !ok || !seat.Bot {
		return
	}
	r.stopBotLocked()
	r.botGen++
	gen := r.botGen
	r.botTimer = time.AfterFunc(r.botDelay, func() { r.botMove(gen, seat.ID) })
}

// stopBotLocked cancels a pending bot move. A timer that already fired is
// neutralised by the generation bump.
func (r *Room) stopBotLocked() {
	if r.botTimer != nil {
		r.botTimer.Stop()
		r.botTimer = nil
	}
	r.botGen++
}

// botMove plays one random attack for bot, if the room still expects it.
func (r *Room) botMove(gen uint64, bot game.PlayerID) {
	r.mu.Lock()
	if gen != r.botGen || r.done || r.ctx.Err() != nil {
		r.mu.Unlock()
		return
	}
	r.botTimer = nil
	_, fin, err := r.attackLocked(bot, nil)
	r.mu.Unlock()

	if err != nil {
		r.log.Warn().Err(err).Int64("bot", int64(bot)).Msg("bot move")
	}
	if fin != nil {
		r.finalize(*fin)
	}
}
