package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	domainCreature "github.com/creaturederby/derby/internal/domain/creature"
	domainSeason "github.com/creaturederby/derby/internal/domain/season"
)

type seasonCreateRequest struct {
	Name     string    `json:"name"`
	StartsAt time.Time `json:"startsAt"`
	EndsAt   time.Time `json:"endsAt"`
}

type creatureRegisterRequest struct {
	CreatureID string `json:"creatureId"`
	Owner      string `json:"owner"`
	Name       string `json:"name,omitempty"`
}

func (s *Server) createSeason(w http.ResponseWriter, r *http.Request) {
	var req seasonCreateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	created, err := s.seasonSvc.Create(r.Context(), req.Name, req.StartsAt, req.EndsAt)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) activeSeason(w http.ResponseWriter, r *http.Request) {
	se, err := s.seasonSvc.Active(r.Context())
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, se)
}

func (s *Server) leaderboard(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "seasonId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid seasonId")
		return
	}
	limit, _ := parseLimitOffset(r, 50, 200)
	board, err := s.seasonSvc.Leaderboard(r.Context(), id, limit)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if board == nil {
		board = []*domainSeason.Standing{}
	}
	respondJSON(w, http.StatusOK, board)
}

// Creature handlers
func (s *Server) getCreature(w http.ResponseWriter, r *http.Request) {
	v, err := s.creatureSvc.Get(r.Context(), chi.URLParam(r, "creatureId"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

func (s *Server) listWalletCreatures(w http.ResponseWriter, r *http.Request) {
	list, err := s.creatureSvc.ListByOwner(r.Context(), chi.URLParam(r, "wallet"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []*domainCreature.Creature{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) registerCreature(w http.ResponseWriter, r *http.Request) {
	var req creatureRegisterRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	c, err := s.creatureSvc.Register(r.Context(), req.CreatureID, req.Owner, req.Name)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}
