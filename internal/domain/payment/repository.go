package payment

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Repository defines payment request persistence. Every status change is a
// conditional update; the boolean result reports whether this caller won it.
type Repository interface {
	Create(ctx context.Context, req *Request) error
	GetByID(ctx context.Context, requestID uuid.UUID) (*Request, error)
	// ListPending returns pending requests oldest first, including ones past expiry.
	ListPending(ctx context.Context, limit int) ([]*Request, error)

	// Transition moves a request between statuses without side columns.
	Transition(ctx context.Context, requestID uuid.UUID, from, to Status) (bool, error)
	// Claim moves pending -> executing and stamps the detected transaction id.
	// It returns ErrTxClaimed when another request already holds the id.
	Claim(ctx context.Context, requestID uuid.UUID, txID string) (bool, error)
	// Complete moves executing -> executed and persists the result payload.
	Complete(ctx context.Context, requestID uuid.UUID, result json.RawMessage) (bool, error)
	// Fail moves from -> failed recording the error.
	Fail(ctx context.Context, requestID uuid.UUID, from Status, code, message string) (bool, error)

	// SetCallbackTx stores the wallet-reported transaction id while pending.
	SetCallbackTx(ctx context.Context, requestID uuid.UUID, txID string) (bool, error)
	// IsTxClaimed reports whether another in-flight or executed request holds txID.
	IsTxClaimed(ctx context.Context, txID string, exclude uuid.UUID) (bool, error)

	RecordTransition(ctx context.Context, transition *StateTransition) error
	GetTransitions(ctx context.Context, requestID uuid.UUID) ([]*StateTransition, error)
}
