// Package executor holds the domain logic run for each paid action.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/creaturederby/derby/internal/domain/chain"
	"github.com/creaturederby/derby/internal/domain/derr"
	"github.com/creaturederby/derby/internal/domain/payment"
	"github.com/creaturederby/derby/internal/domain/store"
)

// QuoteRequest carries what is known before payment.
type QuoteRequest struct {
	Wallet   string
	Payload  json.RawMessage
	Currency string
	Now      time.Time
}

// Input is handed to an executor once the request's execution lock is held.
type Input struct {
	RequestID  uuid.UUID
	CreatureID string
	Wallet     string
	TxID       string
	Currency   string
	Payload    json.RawMessage
	Now        time.Time
	// Height is the chain tip resolved by Prepare, outside the transaction.
	Height chain.HeightCheck
}

// Outcome is an executor's result plus the references recorded on the ledger.
type Outcome struct {
	Result     interface{}
	CreatureID string
	RaceID     *uuid.UUID
	SeasonID   *uuid.UUID
}

// Executor validates and performs one action type.
type Executor interface {
	Type() payment.ActionType
	Schema() string
	// Quote checks preconditions and prices the action. It must not mutate state.
	Quote(ctx context.Context, st store.Store, req QuoteRequest) (payment.Amount, error)
	// Execute re-checks preconditions and applies the action inside tx.
	Execute(ctx context.Context, tx store.Store, in Input) (*Outcome, error)
}

// Preparer is implemented by executors that need data from outside the
// database. Prepare runs before the execution transaction opens.
type Preparer interface {
	Prepare(ctx context.Context, in *Input)
}

// Registry dispatches by action type and validates payloads against each
// executor's JSON schema.
type Registry struct {
	executors map[payment.ActionType]Executor
	schemas   map[payment.ActionType]*jsonschema.Schema
	logger    zerolog.Logger
}

func NewRegistry(logger zerolog.Logger, executors ...Executor) (*Registry, error) {
	r := &Registry{
		executors: make(map[payment.ActionType]Executor),
		schemas:   make(map[payment.ActionType]*jsonschema.Schema),
		logger:    logger.With().Str("service", "executor").Logger(),
	}
	for _, e := range executors {
		schema, err := jsonschema.CompileString(string(e.Type())+".schema.json", e.Schema())
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", e.Type(), err)
		}
		r.executors[e.Type()] = e
		r.schemas[e.Type()] = schema
	}
	return r, nil
}

// Validate checks the payload shape for actionType.
func (r *Registry) Validate(actionType payment.ActionType, payload json.RawMessage) error {
	schema, ok := r.schemas[actionType]
	if !ok {
		return derr.Invalidf("actionType", "unsupported action %q", actionType)
	}
	var doc interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return derr.Invalid("payload", "must be a JSON object")
	}
	if err := schema.Validate(doc); err != nil {
		return derr.Invalid("payload", err.Error())
	}
	return nil
}

// Quote validates the payload and returns the price of the action.
func (r *Registry) Quote(ctx context.Context, st store.Store, actionType payment.ActionType, req QuoteRequest) (payment.Amount, error) {
	if err := r.Validate(actionType, req.Payload); err != nil {
		return payment.Amount{}, err
	}
	return r.executors[actionType].Quote(ctx, st, req)
}

// Prepare lets the executor for actionType fill in external inputs. It must be
// called before the execution transaction so no row locks are held across
// network calls.
func (r *Registry) Prepare(ctx context.Context, actionType payment.ActionType, in Input) Input {
	if p, ok := r.executors[actionType].(Preparer); ok {
		p.Prepare(ctx, &in)
	}
	return in
}

// Execute runs the executor for actionType.
func (r *Registry) Execute(ctx context.Context, tx store.Store, actionType payment.ActionType, in Input) (*Outcome, error) {
	e, ok := r.executors[actionType]
	if !ok {
		return nil, fmt.Errorf("no executor for %q", actionType)
	}
	if in.CreatureID == "" {
		in.CreatureID = CreatureIDOf(in.Payload)
	}
	r.logger.Debug().
		Str("request_id", in.RequestID.String()).
		Str("action_type", string(actionType)).
		Str("tx_id", in.TxID).
		Msg("executing action")
	return e.Execute(ctx, tx, in)
}

// CreatureIDOf extracts the creatureId every action payload carries.
func CreatureIDOf(payload json.RawMessage) string {
	var p struct {
		CreatureID string `json:"creatureId"`
	}
	_ = json.Unmarshal(payload, &p)
	return p.CreatureID
}

func decode(payload json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return derr.Invalid("payload", err.Error())
	}
	return nil
}
