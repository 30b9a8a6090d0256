//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	httpapi "github.com/creaturederby/derby/internal/api/http"
	appCreature "github.com/creaturederby/derby/internal/application/creature"
	"github.com/creaturederby/derby/internal/application/executor"
	appPayment "github.com/creaturederby/derby/internal/application/payment"
	appRace "github.com/creaturederby/derby/internal/application/race"
	appSeason "github.com/creaturederby/derby/internal/application/season"
	"github.com/creaturederby/derby/internal/domain/creature"
	"github.com/creaturederby/derby/internal/domain/ledger"
	domainPayment "github.com/creaturederby/derby/internal/domain/payment"
	domainRace "github.com/creaturederby/derby/internal/domain/race"
	"github.com/creaturederby/derby/internal/domain/season"
	"github.com/creaturederby/derby/internal/domain/store"
	"github.com/creaturederby/derby/internal/infrastructure/explorer"
	"github.com/creaturederby/derby/internal/infrastructure/postgres"
	"github.com/creaturederby/derby/internal/infrastructure/sse"
	"github.com/creaturederby/derby/internal/metrics"
	"github.com/creaturederby/derby/internal/tuning"
)

const (
	treasury   = "9fTreasury"
	player     = "9hPlayer"
	adminToken = "integration-admin"
)

var paidTx = strings.Repeat("c", 64)

const tuningDoc = `
stats:
  cap: 100
  start_sharpness: 50
  start:
    speed: 20
fees:
  train:
    native: 1000
train:
  cooldown: 0s
  gain_expression: "base"
  disciplines:
    sprints:
      primary: speed
      base: 2
      fatigue: 1
      sharpness: 1
race:
  profiles:
    sprint:
      speed: 1
rewards:
  bonus_actions: 1
  boosts: [0.1]
  boost_expiry_blocks: 100
  recovery: 5
  recovery_expiry_blocks: 100
`

type harness struct {
	pool     *pgxpool.Pool
	store    *postgres.Store
	chain    *explorer.Client
	hub      *sse.Hub
	payments *appPayment.Service
	races    *appRace.Service
	server   *httptest.Server
}

func TestPaymentConsumedOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	registerCreature(t, h)

	ids := make([]uuid.UUID, 6)
	for i := range ids {
		req, err := h.payments.Create(ctx, appPayment.CreateInput{
			Wallet:     player,
			ActionType: domainPayment.ActionTrain,
			Payload:    json.RawMessage(`{"creatureId":"token-1","discipline":"sprints"}`),
		})
		require.NoError(t, err)
		ids[i] = req.RequestID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func(id uuid.UUID) {
				defer wg.Done()
				_, err := h.payments.RecordSignedTx(ctx, id, paidTx)
				assert.NoError(t, err)
			}(id)
		}
	}
	wg.Wait()

	executed := 0
	for _, id := range ids {
		req, err := h.payments.Get(ctx, id)
		require.NoError(t, err)
		switch req.Status {
		case domainPayment.StatusExecuted:
			executed++
		case domainPayment.StatusFailed:
			assert.Equal(t, domainPayment.CodePaymentConflict, *req.ErrorCode)
		default:
			t.Fatalf("request %s left %s", id, req.Status)
		}
	}
	assert.Equal(t, 1, executed)
	assert.Equal(t, 1, count(t, h, `SELECT count(*) FROM ledger_entries WHERE tx_id = $1 AND NOT shadow`, paidTx))

	c, err := h.store.Creatures().GetByID(ctx, "token-1")
	require.NoError(t, err)
	assert.Equal(t, 22.0, c.Stats.Speed)
}

// consumeThenFail spends the transaction id from another connection while the
// execution transaction is open, then fails the action.
type consumeThenFail struct {
	store *postgres.Store
}

func (e *consumeThenFail) Type() domainPayment.ActionType { return domainPayment.ActionTrain }

func (e *consumeThenFail) Schema() string { return `{"type":"object"}` }

func (e *consumeThenFail) Quote(context.Context, store.Store, executor.QuoteRequest) (domainPayment.Amount, error) {
	return domainPayment.Amount{Value: 1000}, nil
}

func (e *consumeThenFail) Execute(ctx context.Context, _ store.Store, in executor.Input) (*executor.Outcome, error) {
	if err := e.store.Ledger().Append(ctx, ledger.NewEntry(in.TxID, "9hSomeoneElse", ledger.KindTrain, 1000, "")); err != nil {
		return nil, err
	}
	return nil, errors.New("stable burned down")
}

func (h *harness) paymentsWith(t *testing.T, executors ...executor.Executor) *appPayment.Service {
	t.Helper()
	logger := zerolog.Nop()
	registry, err := executor.NewRegistry(logger, executors...)
	require.NoError(t, err)
	guard := appPayment.NewGuard(h.store.Ledger())
	detector := appPayment.NewDetector(h.chain, guard, h.store.Payments(), appPayment.DetectorConfig{TreasuryAddress: treasury}, logger)
	return appPayment.NewService(h.store, registry, detector, guard, h.hub, appPayment.Config{RequestTTL: 15 * time.Minute}, logger)
}

func TestExecutionFailureAfterConcurrentConsumption(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payments := h.paymentsWith(t, &consumeThenFail{store: h.store})

	req, err := payments.Create(ctx, appPayment.CreateInput{
		Wallet:     player,
		ActionType: domainPayment.ActionTrain,
		Payload:    json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	res, err := payments.PollAndExecute(ctx, req.RequestID)
	require.NoError(t, err)
	assert.Equal(t, domainPayment.StatusFailed, res.Request.Status)

	stored, err := payments.Get(ctx, req.RequestID)
	require.NoError(t, err)
	require.Equal(t, domainPayment.StatusFailed, stored.Status, "request must not stay executing")
	assert.Equal(t, domainPayment.CodePaymentConflict, *stored.ErrorCode)
	assert.Equal(t, 1, count(t, h, `SELECT count(*) FROM ledger_entries WHERE tx_id = $1 AND NOT shadow`, paidTx))
	assert.Equal(t, 1, count(t, h, `SELECT count(*) FROM payment_request_transitions WHERE request_id = $1 AND to_status = 'failed'`, req.RequestID))
}

func TestExecutionCountsOneTransitionPerStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	registerCreature(t, h)

	attempts := func(to domainPayment.Status) float64 {
		return testutil.ToFloat64(metrics.CASAttempts.WithLabelValues("payment_requests", string(to), "won"))
	}
	executing, executed := attempts(domainPayment.StatusExecuting), attempts(domainPayment.StatusExecuted)

	req, err := h.payments.Create(ctx, appPayment.CreateInput{
		Wallet:     player,
		ActionType: domainPayment.ActionTrain,
		Payload:    json.RawMessage(`{"creatureId":"token-1","discipline":"sprints"}`),
	})
	require.NoError(t, err)
	res, err := h.payments.PollAndExecute(ctx, req.RequestID)
	require.NoError(t, err)
	require.Equal(t, domainPayment.StatusExecuted, res.Request.Status)

	assert.Equal(t, 1.0, attempts(domainPayment.StatusExecuting)-executing)
	assert.Equal(t, 1.0, attempts(domainPayment.StatusExecuted)-executed)
}

func TestRaceResolvedOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	se := season.NewSeason("Spring", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, h.store.Seasons().Create(ctx, se))
	r := domainRace.NewRace(se.SeasonID, "Dash", "sprint", 100, 8, time.Now().Add(-time.Hour), time.Now().Add(-time.Second))
	require.NoError(t, h.store.Races().Create(ctx, r))
	won, err := h.store.Races().Transition(ctx, r.RaceID, domainRace.StatusUpcoming, domainRace.StatusOpen)
	require.NoError(t, err)
	require.True(t, won)

	for i, speed := range []float64{70, 50, 30} {
		id := fmt.Sprintf("token-%d", i)
		c := creature.NewCreature(id, player, id, creature.Stats{Speed: speed}, 50)
		require.NoError(t, h.store.Creatures().Create(ctx, c))
		require.NoError(t, h.store.Races().AddEntry(ctx, &domainRace.Entry{
			RaceID:     r.RaceID,
			CreatureID: id,
			Owner:      player,
			TxID:       strings.Repeat(fmt.Sprint(i+1), 64),
			Snapshot:   domainRace.Snapshot{Stats: c.Stats, Sharpness: 50, TakenAt: time.Now()},
			CreatedAt:  time.Now(),
		}))
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.races.Resolve(ctx, r.RaceID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := h.store.Races().GetByID(ctx, r.RaceID)
	require.NoError(t, err)
	assert.Equal(t, domainRace.StatusResolved, stored.Status)
	assert.Equal(t, 3, count(t, h, `SELECT count(*) FROM ledger_entries WHERE race_id = $1 AND shadow`, r.RaceID))
	assert.Equal(t, 3, count(t, h, `SELECT count(*) FROM season_standings WHERE season_id = $1 AND races = 1`, se.SeasonID))

	res, err := h.races.Resolve(ctx, r.RaceID)
	require.NoError(t, err)
	require.Len(t, res.Results, 3)
	assert.Equal(t, "token-0", res.Results[0].CreatureID)
	assert.Equal(t, int64(150), res.Results[0].Payout)
}

func TestHTTPActionFlow(t *testing.T) {
	h := newHarness(t)

	resp := call(t, h, http.MethodPost, "/v1/admin/creatures", map[string]string{"creatureId": "token-1", "owner": player}, adminToken)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = call(t, h, http.MethodPost, "/v1/actions", map[string]interface{}{
		"wallet":     player,
		"actionType": "train",
		"payload":    map[string]string{"creatureId": "token-1", "discipline": "sprints"},
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	resp = call(t, h, http.MethodGet, "/v1/actions/"+created["requestId"].(string), nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var polled map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&polled))
	resp.Body.Close()
	assert.Equal(t, "executed", polled["status"])
	assert.Equal(t, paidTx, polled["txId"])
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	dsn := testDatabaseURL(t)
	logger := zerolog.Nop()

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, postgres.RunMigrations(ctx, pool, filepath.Join(repoRoot(t), "internal", "migrations")))
	require.NoError(t, resetDatabase(ctx, pool))

	rules, err := tuning.Parse([]byte(tuningDoc))
	require.NoError(t, err)

	indexer := fakeExplorer(t)
	chainClient := explorer.NewClient(indexer.URL, 2*time.Second, logger)
	st := postgres.NewStore(pool)
	hub := sse.NewHub()

	heights := executor.NewHeightSource(chainClient, logger)
	registry, err := executor.NewRegistry(logger,
		executor.NewTrain(rules, heights, logger),
		executor.NewTreatment(rules, logger),
		executor.NewRaceEntry(rules, logger),
	)
	require.NoError(t, err)
	guard := appPayment.NewGuard(st.Ledger())
	detector := appPayment.NewDetector(chainClient, guard, st.Payments(), appPayment.DetectorConfig{TreasuryAddress: treasury}, logger)
	payments := appPayment.NewService(st, registry, detector, guard, hub, appPayment.Config{RequestTTL: 15 * time.Minute}, logger)
	races := appRace.NewService(st, chainClient, rules, nil, hub, logger)

	adminHash, err := bcrypt.GenerateFromPassword([]byte(adminToken), bcrypt.MinCost)
	require.NoError(t, err)
	api := httpapi.NewServer(payments, races, appSeason.NewService(st.Seasons(), logger),
		appCreature.NewService(st.Creatures(), rules, heights, logger), hub, treasury,
		string(adminHash), "", 10*time.Second, st.Ping, logger)
	server := httptest.NewServer(api.Router())

	t.Cleanup(func() {
		server.Close()
		indexer.Close()
		pool.Close()
	})
	return &harness{pool: pool, store: st, chain: chainClient, hub: hub, payments: payments, races: races, server: server}
}

// fakeExplorer serves one paying mempool transaction and a fixed chain tip.
func fakeExplorer(t *testing.T) *httptest.Server {
	t.Helper()
	tx := map[string]interface{}{
		"id":                paidTx,
		"creationTimestamp": time.Now().Add(time.Hour).UnixMilli(),
		"inputs":            []map[string]string{{"address": player}},
		"outputs":           []map[string]interface{}{{"address": treasury, "value": 1000}},
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/v1/mempool/transactions/byAddress/"):
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"items": []interface{}{tx}, "total": 1})
		case strings.HasPrefix(r.URL.Path, "/api/v1/addresses/"):
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"items": []interface{}{}, "total": 0})
		case r.URL.Path == "/api/v1/transactions/"+paidTx:
			_ = json.NewEncoder(w).Encode(tx)
		case r.URL.Path == "/api/v1/blocks":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"items": []map[string]interface{}{{"id": strings.Repeat("f", 64), "height": 500}},
				"total": 1,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func registerCreature(t *testing.T, h *harness) {
	t.Helper()
	c := creature.NewCreature("token-1", player, "Comet", creature.Stats{Speed: 20}, 50)
	require.NoError(t, h.store.Creatures().Create(context.Background(), c))
}

func call(t *testing.T, h *harness, method, path string, body interface{}, token string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, h.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func count(t *testing.T, h *harness, query string, args ...interface{}) int {
	t.Helper()
	var n int
	require.NoError(t, h.pool.QueryRow(context.Background(), query, args...).Scan(&n))
	return n
}

func testDatabaseURL(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		return dsn
	}
	t.Skip("TEST_DATABASE_URL not set; skipping integration tests")
	return ""
}

func repoRoot(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	return filepath.Clean(filepath.Join(wd, "..", ".."))
}

func resetDatabase(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		TRUNCATE TABLE
			payment_request_transitions,
			payment_requests,
			ledger_entries,
			creature_rewards,
			race_entries,
			season_standings,
			races,
			seasons,
			creatures
		RESTART IDENTITY CASCADE
	`)
	return err
}
