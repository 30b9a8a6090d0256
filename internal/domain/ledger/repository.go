package ledger

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import "context"

// Repository is the append-only ledger. Uniqueness of non-shadow transaction
// ids must be enforced by storage; Append returns ErrTxConsumed on conflict.
type Repository interface {
	Append(ctx context.Context, entry *Entry) error
	IsConsumed(ctx context.Context, txID string) (bool, error)
	ListByWallet(ctx context.Context, wallet string, limit int) ([]*Entry, error)
}
