// internal/handlers/api.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/asimov-arena/playground/internal/auth"
	"github.com/asimov-arena/playground/internal/broker"
	"github.com/asimov-arena/playground/internal/database"
	"github.com/asimov-arena/playground/internal/middleware"
	"github.com/asimov-arena/playground/internal/models"
	"github.com/asimov-arena/playground/internal/tournament"
)

// APIServer exposes the thin REST read paths plus registration endpoints,
// all backed by the same in-memory stores the websocket side uses. Store is
// optional; when present, registrations are persisted best effort.
type APIServer struct {
	Log         *logrus.Logger
	Broker      *broker.Broker
	Bots        *auth.BotRegistry
	Tournaments *tournament.Manager
	Store       *database.Store
}

// Routes builds the full HTTP handler, websocket endpoint included.
func (s *APIServer) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/arena/ws", ArenaWSHandler(s.Log, s.Broker, s.Bots))
	mux.HandleFunc("GET /rooms", s.listRooms)
	mux.HandleFunc("GET /players", s.listPlayers)
	mux.HandleFunc("GET /bots", s.listBots)
	mux.HandleFunc("POST /bots", s.createBot)
	mux.HandleFunc("POST /tournaments", s.createTournament)
	mux.HandleFunc("POST /tournaments/{id}/players", s.enrollParticipant)
	mux.HandleFunc("GET /tournaments/{id}/matches", s.listMatches)
	return middleware.LogMiddleware(s.Log)(mux)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type roomRow struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Game       string `json:"game"`
	MaxPlayers int    `json:"maxplayers"`
	Players    int    `json:"players"`
	Status     string `json:"status"`
}

func (s *APIServer) listRooms(w http.ResponseWriter, r *http.Request) {
	rows := make([]roomRow, 0)
	for _, room := range s.Broker.Rooms.Lobby() {
		rows = append(rows, roomRow{
			ID:         room.ID.String(),
			Name:       room.Name,
			Game:       room.Game,
			MaxPlayers: room.MaxPlayers,
			Players:    s.Broker.Rooms.JoinedCount(room.ID),
			Status:     string(room.Status),
		})
	}
	writeJSON(w, http.StatusOK, rows)
}

type playerRow struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	GameRole string `json:"gamerole,omitempty"`
	Joined   bool   `json:"joined"`
}

func (s *APIServer) listPlayers(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(r.URL.Query().Get("room"))
	if err != nil {
		http.Error(w, "invalid or missing room query parameter", http.StatusBadRequest)
		return
	}
	if _, ok := s.Broker.Rooms.Snapshot(roomID); !ok {
		http.Error(w, "no such room", http.StatusNotFound)
		return
	}
	rows := make([]playerRow, 0)
	for _, p := range s.Broker.Rooms.PlayersOf(roomID) {
		rows = append(rows, playerRow{
			ID:       p.ID.String(),
			Name:     p.Name,
			GameRole: p.GameRole,
			Joined:   p.Joined,
		})
	}
	writeJSON(w, http.StatusOK, rows)
}

type botRow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (s *APIServer) listBots(w http.ResponseWriter, r *http.Request) {
	rows := make([]botRow, 0)
	for _, b := range s.Bots.List() {
		rows = append(rows, botRow{ID: b.ID.String(), Name: b.Name, Description: b.Description})
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *APIServer) createBot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "a bot name is required", http.StatusBadRequest)
		return
	}
	bot, key, err := s.Bots.CreateBot(req.Name, req.Description)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	s.Log.WithField("bot", bot.ID).Info("bot registered")
	if s.Store != nil {
		if err := s.Store.SaveBot(r.Context(), bot); err != nil {
			s.Log.WithError(err).Warn("could not persist bot")
		}
	}
	// The plaintext key is shown exactly once.
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":     bot.ID.String(),
		"name":   bot.Name,
		"apikey": key,
	})
}

func (s *APIServer) createTournament(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Game string `json:"game"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.Game == "" {
		http.Error(w, "tournament name and game are required", http.StatusBadRequest)
		return
	}
	apiKey, err := auth.GenerateKey()
	if err != nil {
		http.Error(w, "could not issue tournament credential", http.StatusInternalServerError)
		return
	}
	t, err := s.Tournaments.Create(req.Name, req.Game, apiKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if s.Store != nil {
		if err := s.Store.SaveTournament(r.Context(), t); err != nil {
			s.Log.WithError(err).Warn("could not persist tournament")
		}
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":     t.ID.String(),
		"name":   t.Name,
		"game":   t.Game,
		"apikey": t.APIKey,
	})
}

func (s *APIServer) enrollParticipant(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid tournament id", http.StatusBadRequest)
		return
	}
	var req struct {
		BotID string `json:"botid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	botID, err := uuid.Parse(req.BotID)
	if err != nil {
		http.Error(w, "invalid bot id", http.StatusBadRequest)
		return
	}
	if _, ok := s.Bots.Get(botID); !ok {
		http.Error(w, "no such bot", http.StatusNotFound)
		return
	}
	participant, err := s.Tournaments.AddPlayer(botID, tournamentID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if s.Store != nil {
		if err := s.Store.SaveParticipant(r.Context(), participant); err != nil {
			s.Log.WithError(err).Warn("could not persist participant")
		}
		// The join fanned out new pending matches; the upsert makes
		// re-saving existing ones harmless.
		matches := make([]models.Match, 0)
		for _, m := range s.Tournaments.Matches(tournamentID) {
			matches = append(matches, *m)
		}
		if err := s.Store.SaveMatches(r.Context(), matches); err != nil {
			s.Log.WithError(err).Warn("could not persist matches")
		}
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":    participant.ID.String(),
		"botid": participant.BotID.String(),
		"index": participant.Index,
	})
}

type matchRow struct {
	ID      string `json:"id"`
	Index   int    `json:"index"`
	State   string `json:"state"`
	PlayerA string `json:"playera"`
	PlayerB string `json:"playerb"`
	RoomID  string `json:"roomid,omitempty"`
}

func (s *APIServer) listMatches(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid tournament id", http.StatusBadRequest)
		return
	}
	if _, ok := s.Tournaments.Get(tournamentID); !ok {
		http.Error(w, "no such tournament", http.StatusNotFound)
		return
	}
	rows := make([]matchRow, 0)
	for _, m := range s.Tournaments.Matches(tournamentID) {
		row := matchRow{
			ID:      m.ID.String(),
			Index:   m.Index,
			State:   string(m.State),
			PlayerA: m.PlayerA.String(),
			PlayerB: m.PlayerB.String(),
		}
		if m.RoomID != uuid.Nil {
			row.RoomID = m.RoomID.String()
		}
		rows = append(rows, row)
	}
	writeJSON(w, http.StatusOK, rows)
}
