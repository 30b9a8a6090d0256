package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	appPayment "github.com/creaturederby/derby/internal/application/payment"
	domainPayment "github.com/creaturederby/derby/internal/domain/payment"
)

type actionCreateRequest struct {
	Wallet     string          `json:"wallet"`
	ActionType string          `json:"actionType"`
	Payload    json.RawMessage `json:"payload"`
	Currency   string          `json:"currency,omitempty"`
}

type actionCreateResponse struct {
	RequestID       string    `json:"requestId"`
	Status          string    `json:"status"`
	Amount          int64     `json:"amount"`
	TokenID         string    `json:"tokenId,omitempty"`
	TreasuryAddress string    `json:"treasuryAddress"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

type signedTxRequest struct {
	SignedTransactionID string `json:"signedTransactionId"`
}

type actionError struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type actionStatusResponse struct {
	RequestID  string          `json:"requestId"`
	ActionType string          `json:"actionType"`
	Status     string          `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *actionError    `json:"error,omitempty"`
	TxID       *string         `json:"txId,omitempty"`
	ExpiresAt  time.Time       `json:"expiresAt"`
	Degraded   bool            `json:"degraded,omitempty"`
}

func (s *Server) createAction(w http.ResponseWriter, r *http.Request) {
	var req actionCreateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if req.Wallet == "" || req.ActionType == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "wallet and actionType are required")
		return
	}
	if len(req.Payload) == 0 {
		req.Payload = json.RawMessage(`{}`)
	}
	created, err := s.paymentSvc.Create(r.Context(), appPayment.CreateInput{
		Wallet:     req.Wallet,
		ActionType: domainPayment.ActionType(req.ActionType),
		Payload:    req.Payload,
		Currency:   req.Currency,
	})
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, actionCreateResponse{
		RequestID:       created.RequestID.String(),
		Status:          string(created.Status),
		Amount:          created.Amount.Value,
		TokenID:         created.Amount.TokenID,
		TreasuryAddress: s.treasuryAddress,
		ExpiresAt:       created.ExpiresAt,
	})
}

// getAction polls the request, executing it when its payment has landed.
func (s *Server) getAction(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "requestId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid requestId")
		return
	}
	res, err := s.paymentSvc.PollAndExecute(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondAction(w, res)
}

func (s *Server) recordSignedTx(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "requestId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid requestId")
		return
	}
	var req signedTxRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if req.SignedTransactionID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "signedTransactionId required")
		return
	}
	res, err := s.paymentSvc.RecordSignedTx(r.Context(), id, req.SignedTransactionID)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondAction(w, res)
}

func (s *Server) getActionTransitions(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "requestId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid requestId")
		return
	}
	transitions, err := s.paymentSvc.Transitions(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, transitions)
}

func (s *Server) walletLedger(w http.ResponseWriter, r *http.Request) {
	limit, _ := parseLimitOffset(r, 50, 200)
	entries, err := s.paymentSvc.History(r.Context(), chi.URLParam(r, "wallet"), limit)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// respondAction renders a poll result. A request that failed on a consumed
// payment is reported as a conflict.
func respondAction(w http.ResponseWriter, res *appPayment.PollResult) {
	req := res.Request
	body := actionStatusResponse{
		RequestID:  req.RequestID.String(),
		ActionType: string(req.ActionType),
		Status:     string(req.Status),
		Result:     req.Result,
		TxID:       req.TxID,
		ExpiresAt:  req.ExpiresAt,
		Degraded:   res.Degraded,
	}
	status := http.StatusOK
	if req.ErrorCode != nil {
		body.Error = &actionError{Code: *req.ErrorCode}
		if req.ErrorMessage != nil {
			body.Error.Message = *req.ErrorMessage
		}
		if *req.ErrorCode == domainPayment.CodePaymentConflict {
			status = http.StatusConflict
		}
	}
	respondJSON(w, status, body)
}
