package room

import "github.com/robalobadob/battleship/apps/go-server/internal/game"

// Outbound event types, named as the client protocol expects them.
const (
	EventCreateGame = "create_game"
	EventStartGame  = "start_game"
	EventTurn       = "turn"
	EventAttack     = "attack"
	EventFinish     = "finish"
)

// Event is one message pushed to a seated player.
type Event struct {
	Type string
	Data any
}

// CreateGame tells a player which match it was seated in and under which id.
type CreateGame struct {
	IDGame   int64         `json:"idGame"`
	IDPlayer game.PlayerID `json:"idPlayer"`
}

// StartGame carries the receiver's own layout and the first mover.
type StartGame struct {
	Ships              []game.ShipSpec `json:"ships"`
	CurrentPlayerIndex game.PlayerID   `json:"currentPlayerIndex"`
}

type Turn struct {
	CurrentPlayer game.PlayerID `json:"currentPlayer"`
}

// Attack reports one resolved cell. CurrentPlayer is the attacker.
type Attack struct {
	Position      game.Position `json:"position"`
	CurrentPlayer game.PlayerID `json:"currentPlayer"`
	Status        game.Status   `json:"status"`
}

type Finish struct {
	WinPlayer game.PlayerID `json:"winPlayer"`
}
