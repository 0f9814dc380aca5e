// internal/ws/protocol.go
//
// Wire format of the websocket protocol.
//
// Every frame is a JSON envelope {"type": ..., "data": ..., "id": 0}. The
// data field is itself JSON-encoded into a string; the server always sends
// it that way and accepts either a string or a plain object from clients.
// String values inside data that hold a JSON object or array are decoded in
// place, at any depth.

package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/robalobadob/battleship/apps/go-server/internal/game"
)

// Inbound message types.
const (
	MsgRegister      = "reg"
	MsgCreateRoom    = "create_room"
	MsgAddUserToRoom = "add_user_to_room"
	MsgAddShips      = "add_ships"
	MsgAttack        = "attack"
	MsgRandomAttack  = "randomAttack"
	MsgSinglePlay    = "single_play"
)

var ErrBadFrame = errors.New("malformed frame")

// Envelope is the outer frame.
type Envelope struct {
	Type string `json:"type"`
	Data string `json:"data"`
	ID   int    `json:"id"`
}

// Inbound is a decoded client frame. Data is plain JSON with nested JSON
// strings already unwrapped.
type Inbound struct {
	Type string
	Data json.RawMessage
}

type RegData struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type AddUserToRoomData struct {
	IndexRoom int64 `json:"indexRoom"`
}

type AddShipsData struct {
	GameID      int64           `json:"gameId"`
	Ships       []game.ShipSpec `json:"ships"`
	IndexPlayer game.PlayerID   `json:"indexPlayer"`
}

// AttackData carries optional coordinates; randomAttack omits them.
type AttackData struct {
	GameID      int64         `json:"gameId"`
	X           *int          `json:"x"`
	Y           *int          `json:"y"`
	IndexPlayer game.PlayerID `json:"indexPlayer"`
}

// Target returns the attacked cell, or nil when either coordinate is absent.
func (a AttackData) Target() *game.Position {
	if a.X == nil || a.Y == nil {
		return nil
	}
	return &game.Position{X: *a.X, Y: *a.Y}
}

// Encode builds an outbound frame.
func Encode(typ string, data any) ([]byte, error) {
	inner, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	return json.Marshal(Envelope{Type: typ, Data: string(inner), ID: 0})
}

// Decode parses a client frame.
func Decode(frame []byte) (Inbound, error) {
	var raw struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(frame, &raw); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if raw.Type == "" {
		return Inbound{}, fmt.Errorf("%w: missing type", ErrBadFrame)
	}
	data, err := unwrap(raw.Data)
	if err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	return Inbound{Type: raw.Type, Data: data}, nil
}

// Bind decodes in.Data into v.
func (in Inbound) Bind(v any) error {
	if len(in.Data) == 0 {
		return fmt.Errorf("%w: %s has no data", ErrBadFrame, in.Type)
	}
	if err := json.Unmarshal(in.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadFrame, in.Type, err)
	}
	return nil
}

// unwrap returns raw with every JSON-in-a-string value replaced by the value
// it encodes.
func unwrap(raw json.RawMessage) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(expand(v))
}

func expand(v any) any {
	switch t := v.(type) {
	case string:
		s := bytes.TrimSpace([]byte(t))
		if len(s) > 0 && (s[0] == '{' || s[0] == '[') && json.Valid(s) {
			var inner any
			if err := json.Unmarshal(s, &inner); err == nil {
				return expand(inner)
			}
		}
		return t
	case map[string]any:
		for k, e := range t {
			t[k] = expand(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = expand(e)
		}
		return t
	default:
		return v
	}
}
