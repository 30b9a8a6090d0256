package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/creaturederby/derby/internal/domain/payment"
	"github.com/creaturederby/derby/internal/domain/state"
)

const paymentColumns = `id, request_id, wallet, action_type, amount, token_id, payload, status, callback_tx_id, tx_id, result, error_code, error_message, created_at, expires_at, updated_at`

// PaymentRepository implements payment.Repository.
type PaymentRepository struct {
	db       dbtx
	register casRegister[payment.Status]
}

func NewPaymentRepository(db dbtx) *PaymentRepository {
	return &PaymentRepository{
		db:       db,
		register: newRegister[payment.Status](db, "payment_requests", "request_id"),
	}
}

func (r *PaymentRepository) Create(ctx context.Context, req *payment.Request) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO payment_requests
		(request_id, wallet, action_type, amount, token_id, payload, status, created_at, expires_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id
	`, req.RequestID, req.Wallet, req.ActionType, req.Amount.Value, req.Amount.TokenID, req.Payload, req.Status, req.CreatedAt, req.ExpiresAt, req.UpdatedAt).Scan(&req.ID)
}

func (r *PaymentRepository) GetByID(ctx context.Context, requestID uuid.UUID) (*payment.Request, error) {
	row := r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payment_requests WHERE request_id=$1`, requestID)
	return scanPaymentRequest(row)
}

func (r *PaymentRepository) ListPending(ctx context.Context, limit int) ([]*payment.Request, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payment_requests
		WHERE status='pending'
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var reqs []*payment.Request
	for rows.Next() {
		req, err := scanPaymentRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

func (r *PaymentRepository) Transition(ctx context.Context, requestID uuid.UUID, from, to payment.Status) (bool, error) {
	if !payment.CanTransition(from, to) {
		return false, payment.ErrInvalidTransition
	}
	return r.register.Transition(ctx, requestID.String(), from, to)
}

func (r *PaymentRepository) Claim(ctx context.Context, requestID uuid.UUID, txID string) (bool, error) {
	won, err := r.register.TransitionWith(ctx, requestID.String(), payment.StatusPending, payment.StatusExecuting, state.Set("tx_id", txID))
	if err != nil {
		if isUniqueViolation(err) {
			return false, payment.ErrTxClaimed
		}
		return false, err
	}
	return won, nil
}

func (r *PaymentRepository) Complete(ctx context.Context, requestID uuid.UUID, result json.RawMessage) (bool, error) {
	return r.register.TransitionWith(ctx, requestID.String(), payment.StatusExecuting, payment.StatusExecuted, state.Set("result", result))
}

func (r *PaymentRepository) Fail(ctx context.Context, requestID uuid.UUID, from payment.Status, code, message string) (bool, error) {
	if !payment.CanTransition(from, payment.StatusFailed) {
		return false, payment.ErrInvalidTransition
	}
	return r.register.TransitionWith(ctx, requestID.String(), from, payment.StatusFailed,
		state.Set("error_code", code),
		state.Set("error_message", message),
	)
}

func (r *PaymentRepository) SetCallbackTx(ctx context.Context, requestID uuid.UUID, txID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE payment_requests SET callback_tx_id=$1, updated_at=now()
		WHERE request_id=$2 AND status='pending'
	`, txID, requestID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PaymentRepository) IsTxClaimed(ctx context.Context, txID string, exclude uuid.UUID) (bool, error) {
	var claimed bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM payment_requests
			WHERE tx_id=$1 AND request_id<>$2 AND status IN ('executing','executed')
		)
	`, txID, exclude).Scan(&claimed)
	return claimed, err
}

func (r *PaymentRepository) RecordTransition(ctx context.Context, transition *payment.StateTransition) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO payment_request_transitions (request_id, from_status, to_status, reason, transitioned_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id
	`, transition.RequestID, transition.FromStatus, transition.ToStatus, transition.Reason, transition.TransitionedAt).Scan(&transition.ID)
}

func (r *PaymentRepository) GetTransitions(ctx context.Context, requestID uuid.UUID) ([]*payment.StateTransition, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, request_id, from_status, to_status, reason, transitioned_at
		FROM payment_request_transitions WHERE request_id=$1 ORDER BY transitioned_at ASC, id ASC
	`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var transitions []*payment.StateTransition
	for rows.Next() {
		var tr payment.StateTransition
		if err := rows.Scan(&tr.ID, &tr.RequestID, &tr.FromStatus, &tr.ToStatus, &tr.Reason, &tr.TransitionedAt); err != nil {
			return nil, err
		}
		transitions = append(transitions, &tr)
	}
	return transitions, rows.Err()
}

func scanPaymentRequest(row pgx.Row) (*payment.Request, error) {
	var req payment.Request
	var result []byte
	if err := row.Scan(&req.ID, &req.RequestID, &req.Wallet, &req.ActionType, &req.Amount.Value, &req.Amount.TokenID, &req.Payload, &req.Status, &req.CallbackTxID, &req.TxID, &result, &req.ErrorCode, &req.ErrorMessage, &req.CreatedAt, &req.ExpiresAt, &req.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) > 0 {
		req.Result = json.RawMessage(result)
	}
	return &req, nil
}
