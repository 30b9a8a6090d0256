// Package payment runs the payment-gated action pipeline: quote and create a
// request, detect its payment, and execute the action exactly once.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/creaturederby/derby/internal/application/executor"
	"github.com/creaturederby/derby/internal/domain/chain"
	"github.com/creaturederby/derby/internal/domain/derr"
	"github.com/creaturederby/derby/internal/domain/event"
	"github.com/creaturederby/derby/internal/domain/ledger"
	domainPayment "github.com/creaturederby/derby/internal/domain/payment"
	"github.com/creaturederby/derby/internal/domain/store"
	"github.com/creaturederby/derby/internal/metrics"
)

// Config holds pipeline settings.
type Config struct {
	RequestTTL time.Duration
	ScanBatch  int
}

// CreateInput is a client's action request.
type CreateInput struct {
	Wallet     string
	ActionType domainPayment.ActionType
	Payload    json.RawMessage
	Currency   string
}

// PollResult is the request as observed by one poll. Degraded is set when the
// chain indexer could not be reached during detection.
type PollResult struct {
	Request  *domainPayment.Request
	Degraded bool
}

// Service handles payment-gated action requests
type Service struct {
	store    store.TxRunner
	registry *executor.Registry
	detector *Detector
	guard    *Guard
	events   event.Publisher
	cfg      Config
	now      func() time.Time
	logger   zerolog.Logger
}

// NewService creates a new payment service
func NewService(
	st store.TxRunner,
	registry *executor.Registry,
	detector *Detector,
	guard *Guard,
	events event.Publisher,
	cfg Config,
	logger zerolog.Logger,
) *Service {
	if events == nil {
		events = event.Discard{}
	}
	if cfg.RequestTTL <= 0 {
		cfg.RequestTTL = 15 * time.Minute
	}
	if cfg.ScanBatch <= 0 {
		cfg.ScanBatch = 50
	}
	return &Service{
		store:    st,
		registry: registry,
		detector: detector,
		guard:    guard,
		events:   events,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With().Str("service", "payment").Logger(),
	}
}

// Create validates the action's preconditions and opens a payment request.
// Nothing is persisted when validation fails.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domainPayment.Request, error) {
	wallet := strings.TrimSpace(in.Wallet)
	if wallet == "" {
		return nil, derr.Invalid("walletAddress", "required")
	}
	if !domainPayment.ValidActionType(in.ActionType) {
		return nil, derr.Invalidf("actionType", "unsupported action %q", in.ActionType)
	}

	now := s.now()
	amount, err := s.registry.Quote(ctx, s.store, in.ActionType, executor.QuoteRequest{
		Wallet:   wallet,
		Payload:  in.Payload,
		Currency: in.Currency,
		Now:      now,
	})
	if err != nil {
		return nil, err
	}

	req := domainPayment.NewRequest(wallet, in.ActionType, in.Payload, amount, now, s.cfg.RequestTTL)
	if err := s.store.Payments().Create(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	s.record(ctx, req.RequestID, "", domainPayment.StatusPending, "created")

	s.logger.Info().
		Str("request_id", req.RequestID.String()).
		Str("wallet", wallet).
		Str("action_type", string(in.ActionType)).
		Int64("amount", amount.Value).
		Str("currency", amount.Currency()).
		Msg("payment request created")
	return req, nil
}

// Get returns a request without polling.
func (s *Service) Get(ctx context.Context, requestID uuid.UUID) (*domainPayment.Request, error) {
	req, err := s.store.Payments().GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, derr.ErrNotFound
	}
	return req, nil
}

// Transitions returns the request's status history.
func (s *Service) Transitions(ctx context.Context, requestID uuid.UUID) ([]*domainPayment.StateTransition, error) {
	if _, err := s.Get(ctx, requestID); err != nil {
		return nil, err
	}
	return s.store.Payments().GetTransitions(ctx, requestID)
}

// History returns the wallet's ledger entries, newest first, including race
// payout projections.
func (s *Service) History(ctx context.Context, wallet string, limit int) ([]*ledger.Entry, error) {
	if strings.TrimSpace(wallet) == "" {
		return nil, derr.Invalid("wallet", "required")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.Ledger().ListByWallet(ctx, wallet, limit)
}

// RecordSignedTx stores the wallet callback's transaction id and polls.
func (s *Service) RecordSignedTx(ctx context.Context, requestID uuid.UUID, signedTxID string) (*PollResult, error) {
	txID, err := chain.NormalizeTxID(signedTxID)
	if err != nil {
		return nil, derr.Invalid("signedTransactionId", err.Error())
	}
	req, err := s.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status == domainPayment.StatusPending {
		won, err := s.store.Payments().SetCallbackTx(ctx, requestID, txID)
		if err != nil {
			return nil, fmt.Errorf("record callback tx: %w", err)
		}
		if won {
			s.logger.Info().Str("request_id", requestID.String()).Str("tx_id", txID).Msg("wallet callback recorded")
		}
	}
	return s.PollAndExecute(ctx, requestID)
}

// PollAndExecute advances a request as far as it can go. It is safe to call
// repeatedly and concurrently: the pending -> executing claim admits exactly
// one executor per request and per transaction id.
func (s *Service) PollAndExecute(ctx context.Context, requestID uuid.UUID) (*PollResult, error) {
	req, err := s.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	res, err := s.poll(ctx, req)
	if err != nil {
		return nil, err
	}
	metrics.PollOutcomes.WithLabelValues(string(res.Request.Status)).Inc()
	return res, nil
}

func (s *Service) poll(ctx context.Context, req *domainPayment.Request) (*PollResult, error) {
	if req.IsTerminal() || req.Status == domainPayment.StatusExecuting {
		return &PollResult{Request: req}, nil
	}

	if req.IsExpired(s.now()) && req.CallbackTxID == nil {
		return s.expire(ctx, req)
	}

	match, err := s.detector.Detect(ctx, req)
	if err != nil {
		if errors.Is(err, derr.ErrExternalDegraded) {
			s.logger.Warn().Err(err).Str("request_id", req.RequestID.String()).Msg("payment detection degraded")
			return &PollResult{Request: req, Degraded: true}, nil
		}
		return nil, err
	}
	if match == nil {
		return &PollResult{Request: req}, nil
	}

	consumed, err := s.guard.IsConsumed(ctx, match.TxID)
	if err != nil {
		return nil, err
	}
	if consumed {
		return s.conflict(ctx, req, domainPayment.StatusPending, match.TxID)
	}

	won, err := s.store.Payments().Claim(ctx, req.RequestID, match.TxID)
	if errors.Is(err, domainPayment.ErrTxClaimed) {
		return s.conflict(ctx, req, domainPayment.StatusPending, match.TxID)
	}
	if err != nil {
		return nil, fmt.Errorf("claim request: %w", err)
	}
	if !won {
		return s.reload(ctx, req.RequestID)
	}
	s.record(ctx, req.RequestID, domainPayment.StatusPending, domainPayment.StatusExecuting, match.Source+" "+match.TxID)

	claimed, err := s.store.Payments().GetByID(ctx, req.RequestID)
	if err != nil || claimed == nil {
		s.revertClaim(ctx, req.RequestID)
		if err == nil {
			err = derr.ErrNotFound
		}
		return nil, fmt.Errorf("reload claimed request: %w", err)
	}
	return s.execute(ctx, claimed, match.TxID)
}

func (s *Service) expire(ctx context.Context, req *domainPayment.Request) (*PollResult, error) {
	won, err := s.store.Payments().Transition(ctx, req.RequestID, domainPayment.StatusPending, domainPayment.StatusExpired)
	if err != nil {
		return nil, fmt.Errorf("expire request: %w", err)
	}
	if won {
		s.record(ctx, req.RequestID, domainPayment.StatusPending, domainPayment.StatusExpired, "payment window closed")
		s.logger.Info().Str("request_id", req.RequestID.String()).Msg("payment request expired")
	}
	res, err := s.reload(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	if res.Request.Status == domainPayment.StatusPending {
		res.Request.Status = domainPayment.StatusExpired
	}
	if won {
		s.publish(res.Request)
	}
	return res, nil
}

// execute runs the action, appends the consuming ledger entry and completes
// the request in one transaction.
func (s *Service) execute(ctx context.Context, req *domainPayment.Request, txID string) (*PollResult, error) {
	log := s.logger.With().
		Str("request_id", req.RequestID.String()).
		Str("action_type", string(req.ActionType)).
		Str("tx_id", txID).
		Logger()

	in := executor.Input{
		RequestID: req.RequestID,
		Wallet:    req.Wallet,
		TxID:      txID,
		Currency:  req.Amount.Currency(),
		Payload:   req.Payload,
		Now:       s.now(),
	}
	in = s.registry.Prepare(ctx, req.ActionType, in)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
		out, err := s.registry.Execute(ctx, tx, req.ActionType, in)
		if err != nil {
			return fmt.Errorf("%w: %v", derr.ErrExecutionFailure, err)
		}
		result, err := json.Marshal(out.Result)
		if err != nil {
			return fmt.Errorf("%w: encode result: %v", derr.ErrExecutionFailure, err)
		}
		entry := s.ledgerEntry(req, txID)
		if out.CreatureID != "" {
			entry.CreatureID = &out.CreatureID
		}
		entry.RaceID = out.RaceID
		entry.SeasonID = out.SeasonID
		if err := tx.Ledger().Append(ctx, entry); err != nil {
			return err
		}
		won, err := tx.Payments().Complete(ctx, req.RequestID, result)
		if err != nil {
			return err
		}
		if !won {
			return fmt.Errorf("request %s left executing state", req.RequestID)
		}
		return tx.Payments().RecordTransition(ctx, domainPayment.NewStateTransition(
			req.RequestID, domainPayment.StatusExecuting, domainPayment.StatusExecuted, ""))
	})

	switch {
	case err == nil:
		log.Info().Msg("action executed")
	case errors.Is(err, ledger.ErrTxConsumed):
		log.Warn().Msg("transaction consumed concurrently")
		return s.conflict(ctx, req, domainPayment.StatusExecuting, txID)
	default:
		log.Error().Err(err).Msg("action failed after payment")
		if ferr := s.failExecution(ctx, req, txID, err); ferr != nil {
			log.Error().Err(ferr).Msg("failed to record execution failure; request left executing")
			return nil, ferr
		}
	}

	res, rerr := s.reload(ctx, req.RequestID)
	if rerr != nil {
		return nil, rerr
	}
	s.publish(res.Request)
	return res, nil
}

// failExecution consumes the transaction id and marks the request failed.
// The payment is not refunded. A unique violation on the append aborts that
// transaction, so a conflict with another request is recorded in a fresh one.
func (s *Service) failExecution(ctx context.Context, req *domainPayment.Request, txID string, cause error) error {
	msg := strings.TrimPrefix(cause.Error(), derr.ErrExecutionFailure.Error()+": ")
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
		if err := tx.Ledger().Append(ctx, s.ledgerEntry(req, txID)); err != nil {
			return err
		}
		return s.markFailed(ctx, tx, req.RequestID, domainPayment.CodeExecutionFailed, msg)
	})
	if !errors.Is(err, ledger.ErrTxConsumed) {
		return err
	}
	return s.store.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
		return s.markFailed(ctx, tx, req.RequestID, domainPayment.CodePaymentConflict, msg)
	})
}

func (s *Service) markFailed(ctx context.Context, tx store.Store, requestID uuid.UUID, code, msg string) error {
	won, err := tx.Payments().Fail(ctx, requestID, domainPayment.StatusExecuting, code, msg)
	if err != nil || !won {
		return err
	}
	return tx.Payments().RecordTransition(ctx, domainPayment.NewStateTransition(
		requestID, domainPayment.StatusExecuting, domainPayment.StatusFailed, code))
}

func (s *Service) conflict(ctx context.Context, req *domainPayment.Request, from domainPayment.Status, txID string) (*PollResult, error) {
	msg := fmt.Sprintf("transaction %s already funded another action", txID)
	won, err := s.store.Payments().Fail(ctx, req.RequestID, from, domainPayment.CodePaymentConflict, msg)
	if err != nil {
		return nil, fmt.Errorf("fail request: %w", err)
	}
	if won {
		s.record(ctx, req.RequestID, from, domainPayment.StatusFailed, domainPayment.CodePaymentConflict)
		s.logger.Warn().
			Str("request_id", req.RequestID.String()).
			Str("tx_id", txID).
			Msg("payment conflict")
	}
	res, err := s.reload(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	if won {
		s.publish(res.Request)
	}
	return res, nil
}

// revertClaim is the compensating executing -> pending move for a claim whose
// request could not be reloaded.
func (s *Service) revertClaim(ctx context.Context, requestID uuid.UUID) {
	won, err := s.store.Payments().Transition(ctx, requestID, domainPayment.StatusExecuting, domainPayment.StatusPending)
	if err != nil {
		s.logger.Error().Err(err).Str("request_id", requestID.String()).Msg("failed to revert claim")
		return
	}
	if won {
		s.record(ctx, requestID, domainPayment.StatusExecuting, domainPayment.StatusPending, "claim reverted")
	}
}

// ScanPending polls a batch of pending requests as a server-side observer.
// It returns how many reached a terminal state.
func (s *Service) ScanPending(ctx context.Context) (int, error) {
	pending, err := s.store.Payments().ListPending(ctx, s.cfg.ScanBatch)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}
	settled := 0
	for _, req := range pending {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		res, err := s.poll(ctx, req)
		if err != nil {
			s.logger.Error().Err(err).Str("request_id", req.RequestID.String()).Msg("scan poll failed")
			continue
		}
		metrics.PollOutcomes.WithLabelValues(string(res.Request.Status)).Inc()
		if res.Request.IsTerminal() {
			settled++
		}
	}
	return settled, nil
}

func (s *Service) ledgerEntry(req *domainPayment.Request, txID string) *ledger.Entry {
	return ledger.NewEntry(txID, req.Wallet, ledger.Kind(req.ActionType), req.Amount.Value, req.Amount.TokenID)
}

func (s *Service) reload(ctx context.Context, requestID uuid.UUID) (*PollResult, error) {
	req, err := s.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return &PollResult{Request: req}, nil
}

func (s *Service) record(ctx context.Context, requestID uuid.UUID, from, to domainPayment.Status, reason string) {
	t := domainPayment.NewStateTransition(requestID, from, to, reason)
	if err := s.store.Payments().RecordTransition(ctx, t); err != nil {
		s.logger.Error().Err(err).Str("request_id", requestID.String()).Msg("failed to record transition")
	}
}

type terminalEvent struct {
	RequestID    uuid.UUID                `json:"requestId"`
	ActionType   domainPayment.ActionType `json:"actionType"`
	Status       domainPayment.Status     `json:"status"`
	TxID         *string                  `json:"txId,omitempty"`
	Result       json.RawMessage          `json:"result,omitempty"`
	ErrorCode    *string                  `json:"errorCode,omitempty"`
	ErrorMessage *string                  `json:"errorMessage,omitempty"`
}

func (s *Service) publish(req *domainPayment.Request) {
	msg, err := event.NewMessage(event.RequestTerminal, req.Wallet, terminalEvent{
		RequestID:    req.RequestID,
		ActionType:   req.ActionType,
		Status:       req.Status,
		TxID:         req.TxID,
		Result:       req.Result,
		ErrorCode:    req.ErrorCode,
		ErrorMessage: req.ErrorMessage,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode event")
		return
	}
	s.events.Publish(msg)
}
