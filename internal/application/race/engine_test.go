package race

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creaturederby/derby/internal/domain/creature"
	domainRace "github.com/creaturederby/derby/internal/domain/race"
	"github.com/creaturederby/derby/internal/tuning"
)

func testTuning(t *testing.T, jitter string) *tuning.Tuning {
	t.Helper()
	tn, err := tuning.Parse([]byte(`
race:
  fatigue_penalty: 0.5
  sharpness_bonus: 0.1
  jitter: ` + jitter + `
  payouts: [0.5, 0.3, 0.2]
  profiles:
    sprint:
      speed: 1
rewards:
  bonus_actions: 1
  boosts: [0.15, 0.10, 0.05]
  boost_expiry_blocks: 720
  recovery: 10
  recovery_expiry_blocks: 720
`))
	require.NoError(t, err)
	return tn
}

func entry(id string, speed float64) *domainRace.Entry {
	return &domainRace.Entry{
		CreatureID: id,
		Owner:      "owner-" + id,
		Snapshot:   domainRace.Snapshot{Stats: creature.Stats{Speed: speed}, Sharpness: 50},
	}
}

func TestPayouts(t *testing.T) {
	shares := []float64{0.5, 0.3, 0.2}

	t.Run("three entrants", func(t *testing.T) {
		assert.Equal(t, []int64{150, 90, 60}, Payouts(100, 3, shares))
	})

	t.Run("entrants beyond the table get nothing", func(t *testing.T) {
		assert.Equal(t, []int64{200, 120, 80, 0}, Payouts(100, 4, shares))
	})

	t.Run("fractions round down", func(t *testing.T) {
		assert.Equal(t, []int64{49, 29, 19}, Payouts(33, 3, shares))
	})

	t.Run("fewer entrants than shares", func(t *testing.T) {
		assert.Equal(t, []int64{100, 60}, Payouts(100, 2, shares))
	})

	t.Run("free race", func(t *testing.T) {
		assert.Equal(t, []int64{0, 0}, Payouts(0, 2, shares))
	})
}

func TestJitter(t *testing.T) {
	a := Jitter("seed", "token-1")
	assert.Equal(t, a, Jitter("seed", "token-1"))
	assert.NotEqual(t, a, Jitter("seed", "token-2"))
	assert.NotEqual(t, a, Jitter("other", "token-1"))
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		j := Jitter("seed", id)
		assert.GreaterOrEqual(t, j, -1.0)
		assert.Less(t, j, 1.0)
	}
}

func TestEngine_Rank(t *testing.T) {
	t.Run("orders by score", func(t *testing.T) {
		e := NewEngine(testTuning(t, "0.02"))
		ranked, err := e.Rank("sprint", "blockhash", 100, []*domainRace.Entry{
			entry("slow", 20), entry("fast", 80), entry("mid", 50),
		})
		require.NoError(t, err)
		require.Len(t, ranked, 3)
		assert.Equal(t, "fast", ranked[0].Entry.CreatureID)
		assert.Equal(t, "mid", ranked[1].Entry.CreatureID)
		assert.Equal(t, "slow", ranked[2].Entry.CreatureID)
		assert.Equal(t, []int{1, 2, 3}, []int{ranked[0].Position, ranked[1].Position, ranked[2].Position})
		assert.Equal(t, []int64{150, 90, 60}, []int64{ranked[0].Payout, ranked[1].Payout, ranked[2].Payout})
	})

	t.Run("ties break by creature id", func(t *testing.T) {
		e := NewEngine(testTuning(t, "0"))
		ranked, err := e.Rank("sprint", "blockhash", 10, []*domainRace.Entry{
			entry("charlie", 40), entry("alpha", 40), entry("bravo", 40),
		})
		require.NoError(t, err)
		assert.Equal(t, "alpha", ranked[0].Entry.CreatureID)
		assert.Equal(t, "bravo", ranked[1].Entry.CreatureID)
		assert.Equal(t, "charlie", ranked[2].Entry.CreatureID)
	})

	t.Run("independent of entry order", func(t *testing.T) {
		e := NewEngine(testTuning(t, "0.5"))
		first, err := e.Rank("sprint", "seed", 10, []*domainRace.Entry{entry("a", 40), entry("b", 41), entry("c", 39)})
		require.NoError(t, err)
		second, err := e.Rank("sprint", "seed", 10, []*domainRace.Entry{entry("c", 39), entry("a", 40), entry("b", 41)})
		require.NoError(t, err)
		for i := range first {
			assert.Equal(t, first[i].Entry.CreatureID, second[i].Entry.CreatureID)
			assert.Equal(t, first[i].Score, second[i].Score)
		}
	})

	t.Run("fatigue penalises", func(t *testing.T) {
		e := NewEngine(testTuning(t, "0"))
		tired := entry("tired", 50)
		tired.Snapshot.Fatigue = 40
		ranked, err := e.Rank("sprint", "seed", 10, []*domainRace.Entry{tired, entry("fresh", 45)})
		require.NoError(t, err)
		assert.Equal(t, "fresh", ranked[0].Entry.CreatureID)
		assert.InDelta(t, 50-20+5, ranked[1].Score, 1e-9)
	})

	t.Run("unknown race type", func(t *testing.T) {
		e := NewEngine(testTuning(t, "0"))
		_, err := e.Rank("marathon", "seed", 10, []*domainRace.Entry{entry("a", 1)})
		assert.Error(t, err)
	})
}

func TestEngine_Replay(t *testing.T) {
	e := NewEngine(testTuning(t, "0.02"))
	r := &domainRace.Race{RaceType: "sprint", EntryFee: 100}
	ranked, err := e.Rank("sprint", "blockhash", 100, []*domainRace.Entry{
		entry("a", 70), entry("b", 60), entry("c", 50),
	})
	require.NoError(t, err)
	rec := AuditRecord(r, "blockhash", 10, ranked, time.Now())

	t.Run("faithful record", func(t *testing.T) {
		mismatches, err := e.Replay(rec)
		require.NoError(t, err)
		assert.Empty(t, mismatches)
	})

	t.Run("tampered record", func(t *testing.T) {
		rec.Entries[0].Payout = 999
		rec.Entries[1].Score += 1
		mismatches, err := e.Replay(rec)
		require.NoError(t, err)
		require.Len(t, mismatches, 2)
		assert.Equal(t, "payout", mismatches[0].Field)
		assert.Equal(t, "score", mismatches[1].Field)
	})
}
