package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	appCreature "github.com/creaturederby/derby/internal/application/creature"
	appPayment "github.com/creaturederby/derby/internal/application/payment"
	appRace "github.com/creaturederby/derby/internal/application/race"
	appSeason "github.com/creaturederby/derby/internal/application/season"
	"github.com/creaturederby/derby/internal/domain/derr"
	"github.com/creaturederby/derby/internal/infrastructure/sse"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	paymentSvc        *appPayment.Service
	raceSvc           *appRace.Service
	seasonSvc         *appSeason.Service
	creatureSvc       *appCreature.Service
	sseHub            *sse.Hub
	treasuryAddress   string
	adminTokenHash    []byte
	callbackTokenHash []byte
	requestTimeout    time.Duration
	health            func(ctx context.Context) error
	logger            zerolog.Logger
}

func NewServer(
	paymentSvc *appPayment.Service,
	raceSvc *appRace.Service,
	seasonSvc *appSeason.Service,
	creatureSvc *appCreature.Service,
	sseHub *sse.Hub,
	treasuryAddress string,
	adminTokenHash string,
	callbackTokenHash string,
	requestTimeout time.Duration,
	health func(ctx context.Context) error,
	logger zerolog.Logger,
) *Server {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	return &Server{
		paymentSvc:        paymentSvc,
		raceSvc:           raceSvc,
		seasonSvc:         seasonSvc,
		creatureSvc:       creatureSvc,
		sseHub:            sseHub,
		treasuryAddress:   treasuryAddress,
		adminTokenHash:    []byte(adminTokenHash),
		callbackTokenHash: []byte(callbackTokenHash),
		requestTimeout:    requestTimeout,
		health:            health,
		logger:            logger.With().Str("service", "http").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		// The stream is long-lived and sits outside the request timeout.
		r.Get("/stream", s.sseEndpoint)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.requestTimeout))

			r.Route("/actions", func(r chi.Router) {
				r.Post("/", s.createAction)
				r.Get("/{requestId}", s.getAction)
				r.Get("/{requestId}/transitions", s.getActionTransitions)
				r.With(s.requireToken(s.callbackTokenHash)).Post("/{requestId}/signed", s.recordSignedTx)
			})

			r.Route("/races", func(r chi.Router) {
				r.Get("/", s.listRaces)
				r.Get("/{raceId}", s.getRace)
			})

			r.Route("/seasons", func(r chi.Router) {
				r.Get("/active", s.activeSeason)
				r.Get("/{seasonId}/leaderboard", s.leaderboard)
			})

			r.Get("/creatures/{creatureId}", s.getCreature)

			r.Route("/wallets/{wallet}", func(r chi.Router) {
				r.Get("/creatures", s.listWalletCreatures)
				r.Get("/ledger", s.walletLedger)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.requireToken(s.adminTokenHash))
				r.Post("/seasons", s.createSeason)
				r.Post("/creatures", s.registerCreature)
				r.Post("/races", s.createRace)
				r.Post("/races/{raceId}/resolve", s.resolveRace)
				r.Post("/races/{raceId}/resume", s.resumeRace)
				r.Post("/races/{raceId}/cancel", s.cancelRace)
			})
		})
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// respondServiceError maps the domain error taxonomy onto status codes.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *derr.ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", verr.Error())
	case errors.Is(err, derr.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
	case errors.Is(err, derr.ErrPaymentConflict):
		respondError(w, http.StatusConflict, "PAYMENT_CONFLICT", err.Error())
	case errors.Is(err, derr.ErrConcurrencyPending):
		respondError(w, http.StatusConflict, "CONCURRENCY_PENDING", err.Error())
	case errors.Is(err, derr.ErrStuckLock), errors.Is(err, derr.ErrExternalDegraded):
		respondError(w, http.StatusServiceUnavailable, "DEGRADED", err.Error())
	default:
		s.logger.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request failed")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil {
			offset = o
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
