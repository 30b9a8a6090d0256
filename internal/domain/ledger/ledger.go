package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrTxConsumed is returned by Append when a non-shadow entry already holds the transaction id.
var ErrTxConsumed = errors.New("transaction id already consumed")

// Kind labels what a ledger entry accounts for.
type Kind string

const (
	KindTrain          Kind = "train"
	KindEnterRace      Kind = "enter_race"
	KindStartTreatment Kind = "start_treatment"
	KindRacePayout     Kind = "race_payout"
)

// Entry is an append-only accounting record. Shadow entries are projections
// and never count toward transaction id consumption.
type Entry struct {
	ID         int64      `json:"id"`
	TxID       string     `json:"txId"`
	Wallet     string     `json:"wallet"`
	Kind       Kind       `json:"kind"`
	Amount     int64      `json:"amount"`
	TokenID    string     `json:"tokenId,omitempty"`
	CreatureID *string    `json:"creatureId,omitempty"`
	RaceID     *uuid.UUID `json:"raceId,omitempty"`
	SeasonID   *uuid.UUID `json:"seasonId,omitempty"`
	Shadow     bool       `json:"shadow"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// NewEntry creates an authoritative entry consuming txID.
func NewEntry(txID, wallet string, kind Kind, amount int64, tokenID string) *Entry {
	return &Entry{
		TxID:      txID,
		Wallet:    wallet,
		Kind:      kind,
		Amount:    amount,
		TokenID:   tokenID,
		CreatedAt: time.Now().UTC(),
	}
}

// NewShadowEntry creates a projection entry that does not consume txID.
func NewShadowEntry(txID, wallet string, kind Kind, amount int64, tokenID string) *Entry {
	e := NewEntry(txID, wallet, kind, amount, tokenID)
	e.Shadow = true
	return e
}
