package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/codex-sync/codex/registry"
	"github.com/gosuda/codex-sync/codex/transport"
	"github.com/gosuda/codex-sync/codex/view"
)

type gameLister interface {
	Games() []view.GameRecord
}

// HTTPServer exposes the lobby listing and the websocket transport. The same
// router serves the local port and the relay listener.
type HTTPServer struct {
	reg      *registry.Registry
	games    gameLister
	upgrader *transport.Upgrader
}

func NewHTTPServer(reg *registry.Registry, games gameLister, upgrader *transport.Upgrader) *HTTPServer {
	return &HTTPServer{reg: reg, games: games, upgrader: upgrader}
}

func (s *HTTPServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/games", s.handleGames)
	r.Get("/ws", s.handleWebSocket)
	return r
}

func (s *HTTPServer) handleGames(w http.ResponseWriter, _ *http.Request) {
	games := s.games.Games()
	if games == nil {
		games = []view.GameRecord{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(games); err != nil {
		log.Debug().Err(err).Msg("[codex] write game list")
	}
}

func (s *HTTPServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r)
	if err != nil {
		log.Error().Err(err).Msg("[codex] upgrade websocket")
		return
	}
	s.reg.Accept(conn)
}
