package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/creaturederby/derby/internal/domain/chain"
	"github.com/creaturederby/derby/internal/domain/derr"
	domainPayment "github.com/creaturederby/derby/internal/domain/payment"
)

// Match sources.
const (
	SourceCallback  = "callback"
	SourceMempool   = "mempool"
	SourceConfirmed = "confirmed"
)

// Match is a transaction accepted as payment for a request.
type Match struct {
	TxID         string
	Source       string
	Verification chain.Verification
}

// DetectorConfig holds the detection policy.
type DetectorConfig struct {
	TreasuryAddress  string
	VerifyCallbackTx bool
	Lookback         int
}

// Detector finds the transaction paying for a pending request: the wallet
// callback first, then the sender's mempool, then recent confirmed history.
type Detector struct {
	chain    chain.Client
	guard    *Guard
	payments domainPayment.Repository
	cfg      DetectorConfig
	logger   zerolog.Logger
}

func NewDetector(client chain.Client, guard *Guard, payments domainPayment.Repository, cfg DetectorConfig, logger zerolog.Logger) *Detector {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 20
	}
	return &Detector{
		chain:    client,
		guard:    guard,
		payments: payments,
		cfg:      cfg,
		logger:   logger.With().Str("service", "detector").Logger(),
	}
}

// Detect returns nil when no payment is found. A chain scan that cannot reach
// the indexer returns an error wrapping derr.ErrExternalDegraded.
func (d *Detector) Detect(ctx context.Context, req *domainPayment.Request) (*Match, error) {
	if req.CallbackTxID != nil {
		if m := d.fromCallback(ctx, req); m != nil {
			return m, nil
		}
	}

	mempool, err := d.chain.GetMempoolTransactionsByAddress(ctx, req.Wallet)
	if err != nil {
		return nil, fmt.Errorf("%w: mempool scan: %v", derr.ErrExternalDegraded, err)
	}
	m, err := d.scan(ctx, req, mempool, SourceMempool)
	if err != nil || m != nil {
		return m, err
	}

	confirmed, err := d.chain.GetConfirmedTransactionsByAddress(ctx, req.Wallet, d.cfg.Lookback, chain.SortDesc)
	if err != nil {
		return nil, fmt.Errorf("%w: confirmed scan: %v", derr.ErrExternalDegraded, err)
	}
	return d.scan(ctx, req, confirmed, SourceConfirmed)
}

func (d *Detector) fromCallback(ctx context.Context, req *domainPayment.Request) *Match {
	txID := *req.CallbackTxID
	v := chain.Unverified("callback verification disabled")
	if d.cfg.VerifyCallbackTx {
		v = d.Verify(ctx, txID, req.Amount)
	}
	if !v.Allowed() {
		d.logger.Warn().
			Str("request_id", req.RequestID.String()).
			Str("tx_id", txID).
			Str("reason", v.Reason).
			Msg("callback transaction rejected, falling back to chain scan")
		return nil
	}
	return &Match{TxID: txID, Source: SourceCallback, Verification: v}
}

// Verify checks that txID pays the treasury at least amount. Indexer errors
// and unknown transactions are Unverified, not Rejected.
func (d *Detector) Verify(ctx context.Context, txID string, amount domainPayment.Amount) chain.Verification {
	tx, err := d.chain.GetTransaction(ctx, txID)
	if errors.Is(err, chain.ErrNotFound) {
		return chain.Unverified("transaction not indexed yet")
	}
	if err != nil {
		return chain.Unverified(err.Error())
	}
	if !d.pays(tx, amount) {
		return chain.Rejected("transaction does not pay the treasury the required amount")
	}
	return chain.Verified()
}

func (d *Detector) scan(ctx context.Context, req *domainPayment.Request, txs []*chain.Transaction, source string) (*Match, error) {
	for _, tx := range txs {
		if tx == nil || tx.CreatedAt.Before(req.CreatedAt) {
			continue
		}
		if !tx.SentFrom(req.Wallet) || !d.pays(tx, req.Amount) {
			continue
		}
		txID, err := chain.NormalizeTxID(tx.ID)
		if err != nil {
			continue
		}
		consumed, err := d.guard.IsConsumed(ctx, txID)
		if err != nil {
			return nil, err
		}
		if consumed {
			continue
		}
		claimed, err := d.payments.IsTxClaimed(ctx, txID, req.RequestID)
		if err != nil {
			return nil, fmt.Errorf("check claims: %w", err)
		}
		if claimed {
			continue
		}
		d.logger.Debug().
			Str("request_id", req.RequestID.String()).
			Str("tx_id", txID).
			Str("source", source).
			Msg("payment detected")
		return &Match{TxID: txID, Source: source, Verification: chain.Verified()}, nil
	}
	return nil, nil
}

// pays requires a strictly positive transfer to the treasury, so a zero
// quote is never satisfied by a transaction that paid someone else.
func (d *Detector) pays(tx *chain.Transaction, amount domainPayment.Amount) bool {
	native, tokens := tx.PaidTo(d.cfg.TreasuryAddress)
	paid := native
	if amount.IsToken() {
		paid = tokens[amount.TokenID]
	}
	return paid > 0 && paid >= amount.Value
}
