package race

import (
	"fmt"

	domainRace "github.com/creaturederby/derby/internal/domain/race"
)

// Mismatch is a recorded outcome the engine does not reproduce.
type Mismatch struct {
	CreatureID string
	Field      string
	Recorded   string
	Computed   string
}

// Replay re-ranks an archived race from its snapshots and seed and reports
// every position, score or payout that differs from the record.
func (e *Engine) Replay(rec *domainRace.AuditRecord) ([]Mismatch, error) {
	entries := make([]*domainRace.Entry, 0, len(rec.Entries))
	recorded := make(map[string]domainRace.AuditEntry, len(rec.Entries))
	for _, ae := range rec.Entries {
		entries = append(entries, &domainRace.Entry{
			RaceID:     rec.RaceID,
			CreatureID: ae.CreatureID,
			Owner:      ae.Owner,
			Snapshot:   ae.Snapshot,
		})
		recorded[ae.CreatureID] = ae
	}
	ranked, err := e.Rank(rec.RaceType, rec.SeedHash, rec.EntryFee, entries)
	if err != nil {
		return nil, err
	}

	var out []Mismatch
	for _, rk := range ranked {
		ae := recorded[rk.Entry.CreatureID]
		if ae.Position != rk.Position {
			out = append(out, Mismatch{rk.Entry.CreatureID, "position", fmt.Sprint(ae.Position), fmt.Sprint(rk.Position)})
		}
		if ae.Score != rk.Score {
			out = append(out, Mismatch{rk.Entry.CreatureID, "score", fmt.Sprint(ae.Score), fmt.Sprint(rk.Score)})
		}
		if ae.Payout != rk.Payout {
			out = append(out, Mismatch{rk.Entry.CreatureID, "payout", fmt.Sprint(ae.Payout), fmt.Sprint(rk.Payout)})
		}
	}
	return out, nil
}
