package tuning

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creaturederby/derby/internal/domain/creature"
)

const sample = `
stats:
  cap: 100
  start:
    speed: 25
fees:
  train:
    native: 1000
    token_id: tok
    token: 3
train:
  cooldown: 6h
  fatigue_limit: 90
  gain_expression: "base * (1 - current / cap)"
  disciplines:
    sprints:
      primary: speed
      secondary: acceleration
      base: 4
      secondary_ratio: 0.5
      fatigue: 12
      sharpness: 8
race:
  profiles:
    sprint:
      speed: 1
`

func TestParse(t *testing.T) {
	tu, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, 6*time.Hour, tu.Train.Cooldown)
	assert.Equal(t, DefaultPayouts, tu.Race.Payouts)
	assert.Equal(t, creature.DefaultModel, tu.Condition)
	assert.Equal(t, 25.0, tu.StartStats().Speed)

	gain, err := tu.Gain(4, 50, 0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, gain, 1e-9)

	_, ok := tu.Profile("sprint")
	assert.True(t, ok)
	_, ok = tu.Profile("marathon")
	assert.False(t, ok)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"payouts exceed pool", "race:\n  payouts: [0.6, 0.5]\n"},
		{"negative share", "race:\n  payouts: [-0.1]\n"},
		{"unknown discipline stat", "train:\n  disciplines:\n    x:\n      primary: luck\n"},
		{"unknown profile stat", "race:\n  profiles:\n    sprint:\n      luck: 1\n"},
		{"bad expression", "train:\n  gain_expression: \"base *\"\n"},
		{"bad yaml", "stats: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestFeeAmount(t *testing.T) {
	fee := Fee{Native: 1000, TokenID: "tok", Token: 3}

	amt, err := fee.Amount("")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), amt.Value)
	assert.False(t, amt.IsToken())

	amt, err = fee.Amount("tok")
	require.NoError(t, err)
	assert.Equal(t, int64(3), amt.Value)
	assert.Equal(t, "tok", amt.TokenID)

	_, err = fee.Amount("other")
	assert.ErrorIs(t, err, ErrUnknownCurrency)
}

func TestLoad_RepositoryDefault(t *testing.T) {
	tu, err := Load(filepath.Join("..", "..", "config", "tuning.yaml"))
	require.NoError(t, err)
	assert.Len(t, tu.Race.Payouts, 3)
	assert.Contains(t, tu.Train.Disciplines, "sprints")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, os.IsNotExist(err))
}
