package race

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditRecord is the archived, signed account of a resolution. It carries
// everything needed to recompute scores and positions offline.
type AuditRecord struct {
	RaceID     uuid.UUID    `json:"raceId"`
	SeasonID   uuid.UUID    `json:"seasonId"`
	RaceType   string       `json:"raceType"`
	EntryFee   int64        `json:"entryFee"`
	FeeTokenID string       `json:"feeTokenId,omitempty"`
	SeedHash   string       `json:"seedHash"`
	SeedHeight int64        `json:"seedHeight"`
	Entries    []AuditEntry `json:"entries"`
	ResolvedAt time.Time    `json:"resolvedAt"`
	KeyID      string       `json:"keyId,omitempty"`
	Signature  []byte       `json:"signature,omitempty"`
}

// AuditEntry is one competitor in an AuditRecord.
type AuditEntry struct {
	CreatureID string   `json:"creatureId"`
	Owner      string   `json:"owner"`
	Snapshot   Snapshot `json:"snapshot"`
	Score      float64  `json:"score"`
	Position   int      `json:"position"`
	Payout     int64    `json:"payout"`
}

type signaturePayload struct {
	RaceID     string       `json:"raceId"`
	SeasonID   string       `json:"seasonId"`
	RaceType   string       `json:"raceType"`
	EntryFee   int64        `json:"entryFee"`
	FeeTokenID string       `json:"feeTokenId,omitempty"`
	SeedHash   string       `json:"seedHash"`
	SeedHeight int64        `json:"seedHeight"`
	Entries    []AuditEntry `json:"entries"`
	ResolvedAt string       `json:"resolvedAt"`
	KeyID      string       `json:"keyId,omitempty"`
}

func buildSignaturePayload(rec *AuditRecord) signaturePayload {
	return signaturePayload{
		RaceID:     rec.RaceID.String(),
		SeasonID:   rec.SeasonID.String(),
		RaceType:   rec.RaceType,
		EntryFee:   rec.EntryFee,
		FeeTokenID: rec.FeeTokenID,
		SeedHash:   rec.SeedHash,
		SeedHeight: rec.SeedHeight,
		Entries:    rec.Entries,
		ResolvedAt: rec.ResolvedAt.UTC().Format(time.RFC3339Nano),
		KeyID:      rec.KeyID,
	}
}

// SignAuditRecord generates an HMAC signature for the record.
func SignAuditRecord(rec *AuditRecord, key []byte) ([]byte, error) {
	data, err := json.Marshal(buildSignaturePayload(rec))
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(data)
	return mac.Sum(nil), nil
}

// VerifyAuditRecordSignature verifies the HMAC signature for the record.
func VerifyAuditRecordSignature(rec *AuditRecord, key []byte) (bool, error) {
	if len(rec.Signature) == 0 {
		return false, nil
	}
	expected, err := SignAuditRecord(rec, key)
	if err != nil {
		return false, err
	}
	return hmac.Equal(expected, rec.Signature), nil
}
