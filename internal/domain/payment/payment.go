package payment

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle of a payment-gated request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusExecuting Status = "executing"
	StatusExecuted  Status = "executed"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

// ActionType is the game action a request pays for.
type ActionType string

const (
	ActionTrain          ActionType = "train"
	ActionEnterRace      ActionType = "enter_race"
	ActionStartTreatment ActionType = "start_treatment"
)

// Error codes recorded on failed requests.
const (
	CodePaymentConflict = "PAYMENT_CONFLICT"
	CodeExecutionFailed = "EXECUTION_FAILED"
)

var (
	ErrInvalidTransition = errors.New("invalid payment request status transition")
	ErrTxClaimed         = errors.New("transaction id claimed by another request")
)

// ValidActionType reports whether t is a known action.
func ValidActionType(t ActionType) bool {
	switch t {
	case ActionTrain, ActionEnterRace, ActionStartTreatment:
		return true
	}
	return false
}

// Amount is a required payment. An empty TokenID means the native currency.
type Amount struct {
	Value   int64  `json:"value"`
	TokenID string `json:"tokenId,omitempty"`
}

// IsToken reports whether the amount is denominated in a token.
func (a Amount) IsToken() bool {
	return a.TokenID != ""
}

// Currency returns the token id or "native".
func (a Amount) Currency() string {
	if a.IsToken() {
		return a.TokenID
	}
	return "native"
}

// Request is a payment-gated action request.
type Request struct {
	ID           int64           `json:"id"`
	RequestID    uuid.UUID       `json:"requestId"`
	Wallet       string          `json:"wallet"`
	ActionType   ActionType      `json:"actionType"`
	Amount       Amount          `json:"amount"`
	Payload      json.RawMessage `json:"payload"`
	Status       Status          `json:"status"`
	CallbackTxID *string         `json:"callbackTxId,omitempty"`
	TxID         *string         `json:"txId,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorCode    *string         `json:"errorCode,omitempty"`
	ErrorMessage *string         `json:"errorMessage,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	ExpiresAt    time.Time       `json:"expiresAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// NewRequest creates a pending request expiring after ttl.
func NewRequest(wallet string, actionType ActionType, payload json.RawMessage, amount Amount, now time.Time, ttl time.Duration) *Request {
	now = now.UTC()
	return &Request{
		RequestID:  uuid.New(),
		Wallet:     wallet,
		ActionType: actionType,
		Amount:     amount,
		Payload:    payload,
		Status:     StatusPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		UpdatedAt:  now,
	}
}

// IsTerminal reports whether the request reached a final state.
func (r *Request) IsTerminal() bool {
	switch r.Status {
	case StatusExecuted, StatusFailed, StatusExpired:
		return true
	}
	return false
}

// IsExpired reports whether the payment window closed.
func (r *Request) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// CanTransition validates a status move. executing -> pending is the only
// backward move and is reserved for reverting a claim that could not proceed.
func CanTransition(from, to Status) bool {
	transitions := map[Status][]Status{
		StatusPending:   {StatusExecuting, StatusFailed, StatusExpired},
		StatusExecuting: {StatusExecuted, StatusFailed, StatusPending},
		StatusExecuted:  {},
		StatusFailed:    {},
		StatusExpired:   {},
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StateTransition records a won status change.
type StateTransition struct {
	ID             int64     `json:"id"`
	RequestID      uuid.UUID `json:"requestId"`
	FromStatus     Status    `json:"fromStatus"`
	ToStatus       Status    `json:"toStatus"`
	Reason         *string   `json:"reason,omitempty"`
	TransitionedAt time.Time `json:"transitionedAt"`
}

// NewStateTransition creates a transition record.
func NewStateTransition(requestID uuid.UUID, from, to Status, reason string) *StateTransition {
	t := &StateTransition{
		RequestID:      requestID,
		FromStatus:     from,
		ToStatus:       to,
		TransitionedAt: time.Now().UTC(),
	}
	if reason != "" {
		t.Reason = &reason
	}
	return t
}
