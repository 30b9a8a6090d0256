package chain

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_client.go -package=mocks . Client

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
)

var (
	ErrInvalidTxID = errors.New("invalid transaction id")
	ErrNotFound    = errors.New("chain object not found")
	ErrUnavailable = errors.New("chain indexer unavailable")
	txIDPattern    = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

// Asset is a token amount carried by an output.
type Asset struct {
	TokenID string `json:"tokenId"`
	Amount  int64  `json:"amount"`
}

// Output is a transaction output box.
type Output struct {
	Address string  `json:"address"`
	Value   int64   `json:"value"`
	Assets  []Asset `json:"assets,omitempty"`
}

// Input references the spending address of a consumed box.
type Input struct {
	Address string `json:"address"`
}

// Transaction is the indexer view of a transaction.
type Transaction struct {
	ID        string    `json:"id"`
	Inputs    []Input   `json:"inputs,omitempty"`
	Outputs   []Output  `json:"outputs"`
	Confirmed bool      `json:"confirmed"`
	Height    int64     `json:"inclusionHeight,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Block is a block header summary.
type Block struct {
	Hash   string `json:"hash"`
	Height int64  `json:"height"`
}

// SortDirection orders confirmed transaction listings.
type SortDirection string

const (
	SortDesc SortDirection = "desc"
	SortAsc  SortDirection = "asc"
)

// Client is the read-only view of the ledger indexer.
type Client interface {
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	GetMempoolTransactionsByAddress(ctx context.Context, address string) ([]*Transaction, error)
	GetConfirmedTransactionsByAddress(ctx context.Context, address string, limit int, sort SortDirection) ([]*Transaction, error)
	GetLatestBlock(ctx context.Context) (*Block, error)
}

// NormalizeTxID lowercases and validates a transaction id.
func NormalizeTxID(txID string) (string, error) {
	id := strings.ToLower(strings.TrimSpace(txID))
	if !txIDPattern.MatchString(id) {
		return "", ErrInvalidTxID
	}
	return id, nil
}

// PaidTo sums native value and token amounts sent to address.
func (t *Transaction) PaidTo(address string) (int64, map[string]int64) {
	var value int64
	tokens := map[string]int64{}
	for _, out := range t.Outputs {
		if out.Address != address {
			continue
		}
		value += out.Value
		for _, a := range out.Assets {
			tokens[a.TokenID] += a.Amount
		}
	}
	return value, tokens
}

// SentFrom reports whether any input was spent by address.
func (t *Transaction) SentFrom(address string) bool {
	for _, in := range t.Inputs {
		if in.Address == address {
			return true
		}
	}
	return false
}
