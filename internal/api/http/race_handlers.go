package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	appRace "github.com/creaturederby/derby/internal/application/race"
	domainRace "github.com/creaturederby/derby/internal/domain/race"
)

type raceCreateRequest struct {
	SeasonID      string    `json:"seasonId"`
	Name          string    `json:"name"`
	RaceType      string    `json:"raceType"`
	EntryFee      int64     `json:"entryFee"`
	FeeTokenID    string    `json:"feeTokenId,omitempty"`
	MaxEntries    int       `json:"maxEntries"`
	OpensAt       time.Time `json:"opensAt"`
	EntryDeadline time.Time `json:"entryDeadline"`
}

type raceCancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (s *Server) listRaces(w http.ResponseWriter, r *http.Request) {
	var filter domainRace.Filter
	if v := r.URL.Query().Get("seasonId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid seasonId")
			return
		}
		filter.SeasonID = &id
	}
	if v := r.URL.Query().Get("status"); v != "" {
		st := domainRace.Status(v)
		filter.Status = &st
	}
	limit, offset := parseLimitOffset(r, 50, 200)
	races, err := s.raceSvc.List(r.Context(), filter, limit, offset)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if races == nil {
		races = []*domainRace.Race{}
	}
	respondJSON(w, http.StatusOK, races)
}

func (s *Server) getRace(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "raceId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid raceId")
		return
	}
	d, err := s.raceSvc.Get(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (s *Server) createRace(w http.ResponseWriter, r *http.Request) {
	var req raceCreateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	seasonID, err := uuid.Parse(req.SeasonID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid seasonId")
		return
	}
	created, err := s.raceSvc.Create(r.Context(), appRace.CreateInput{
		SeasonID:      seasonID,
		Name:          req.Name,
		RaceType:      req.RaceType,
		EntryFee:      req.EntryFee,
		FeeTokenID:    req.FeeTokenID,
		MaxEntries:    req.MaxEntries,
		OpensAt:       req.OpensAt,
		EntryDeadline: req.EntryDeadline,
	})
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) resolveRace(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "raceId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid raceId")
		return
	}
	res, err := s.raceSvc.Resolve(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondResolution(w, res)
}

func (s *Server) resumeRace(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "raceId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid raceId")
		return
	}
	res, err := s.raceSvc.Resume(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondResolution(w, res)
}

func (s *Server) cancelRace(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "raceId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid raceId")
		return
	}
	var req raceCancelRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
			return
		}
	}
	res, err := s.raceSvc.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// respondResolution answers 202 while another caller holds the lock.
func respondResolution(w http.ResponseWriter, res *domainRace.Resolution) {
	if res.AlreadyResolving {
		respondJSON(w, http.StatusAccepted, res)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
