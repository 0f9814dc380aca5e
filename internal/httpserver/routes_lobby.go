// internal/httpserver/routes_lobby.go
//
// Read-only HTTP views of the lobby plus the websocket entry point.
//   - GET /winners       → leaderboard (same payload as update_winners)
//   - GET /rooms         → rooms waiting for a second player
//   - GET /matches/{id}  → status of a live match
//   - GET /ws            → websocket upgrade (mounted outside the JSON group)
//
// All game actions happen over the websocket; these endpoints only observe.

package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/battleship/apps/go-server/internal/lobby"
	"github.com/robalobadob/battleship/apps/go-server/internal/ws"
)

// mountLobby registers the lobby views.
func (s *Server) mountLobby(r chi.Router) {
	r.Get("/winners", s.handleWinners)
	r.Get("/rooms", s.handleRooms)
	r.Get("/matches/{id}", s.handleMatch)
}

func (s *Server) handleWinners(w http.ResponseWriter, r *http.Request) {
	list, err := s.lobby.Winners(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("winners")
		http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(list)
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(s.lobby.AvailableRooms(r.Context()))
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, `{"error":"invalid_id"}`, http.StatusBadRequest)
		return
	}
	snap, err := s.lobby.Snapshot(r.Context(), id)
	if err != nil {
		if errors.Is(err, lobby.ErrUnknownMatch) {
			http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
			return
		}
		http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(snap)
}

// handleWS upgrades the connection. A logged-in user is bound immediately;
// anonymous sockets register with a reg frame.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	var acct *ws.Account
	if me := userFrom(r.Context()); me != nil {
		acct = &ws.Account{UserID: me.ID, Username: me.Username}
	}
	s.hub.ServeWS(w, r, acct)
}
