package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	appCreature "github.com/creaturederby/derby/internal/application/creature"
	"github.com/creaturederby/derby/internal/application/executor"
	appPayment "github.com/creaturederby/derby/internal/application/payment"
	appRace "github.com/creaturederby/derby/internal/application/race"
	appSeason "github.com/creaturederby/derby/internal/application/season"
	"github.com/creaturederby/derby/internal/domain/chain"
	chainMocks "github.com/creaturederby/derby/internal/domain/chain/mocks"
	"github.com/creaturederby/derby/internal/domain/derr"
	"github.com/creaturederby/derby/internal/domain/event"
	"github.com/creaturederby/derby/internal/domain/store/storetest"
	"github.com/creaturederby/derby/internal/infrastructure/sse"
	"github.com/creaturederby/derby/internal/tuning"
)

const (
	treasury      = "9fTreasury"
	player        = "9hPlayer"
	adminToken    = "admin-secret"
	callbackToken = "callback-secret"
)

var txA = strings.Repeat("a", 64)

const testTuning = `
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
      fatigue: 5
      sharpness: 5
race:
  profiles:
    sprint:
      speed: 1
`

type testServer struct {
	handler http.Handler
	chain   *chainMocks.MockClient
	hub     *sse.Hub
	store   *storetest.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctrl := gomock.NewController(t)
	client := chainMocks.NewMockClient(ctrl)
	st := storetest.New()
	logger := zerolog.Nop()

	tn, err := tuning.Parse([]byte(testTuning))
	require.NoError(t, err)
	registry, err := executor.NewRegistry(logger,
		executor.NewTrain(tn, nil, logger),
		executor.NewTreatment(tn, logger),
		executor.NewRaceEntry(tn, logger),
	)
	require.NoError(t, err)

	hub := sse.NewHub()
	guard := appPayment.NewGuard(st.Ledger())
	detector := appPayment.NewDetector(client, guard, st.Payments(), appPayment.DetectorConfig{
		TreasuryAddress: treasury,
		Lookback:        10,
	}, logger)
	paymentSvc := appPayment.NewService(st, registry, detector, guard, hub, appPayment.Config{RequestTTL: 15 * time.Minute}, logger)
	raceSvc := appRace.NewService(st, client, tn, nil, hub, logger)
	seasonSvc := appSeason.NewService(st.Seasons(), logger)
	creatureSvc := appCreature.NewService(st.Creatures(), tn, nil, logger)

	adminHash, err := bcrypt.GenerateFromPassword([]byte(adminToken), bcrypt.MinCost)
	require.NoError(t, err)
	callbackHash, err := bcrypt.GenerateFromPassword([]byte(callbackToken), bcrypt.MinCost)
	require.NoError(t, err)

	srv := NewServer(paymentSvc, raceSvc, seasonSvc, creatureSvc, hub, treasury,
		string(adminHash), string(callbackHash), 5*time.Second, nil, logger)
	return &testServer{handler: srv.Router(), chain: client, hub: hub, store: st}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (ts *testServer) paidInMempool() {
	tx := &chain.Transaction{
		ID:        txA,
		Inputs:    []chain.Input{{Address: player}},
		Outputs:   []chain.Output{{Address: treasury, Value: 1000}},
		CreatedAt: time.Now().Add(time.Hour),
	}
	ts.chain.EXPECT().GetMempoolTransactionsByAddress(gomock.Any(), player).Return([]*chain.Transaction{tx}, nil).AnyTimes()
	ts.chain.EXPECT().GetConfirmedTransactionsByAddress(gomock.Any(), player, 10, chain.SortDesc).Return(nil, nil).AnyTimes()
}

func (ts *testServer) registerCreature(t *testing.T) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/v1/admin/creatures", map[string]string{
		"creatureId": "token-1",
		"owner":      player,
	}, adminToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (ts *testServer) createTrain(t *testing.T) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/v1/actions", map[string]interface{}{
		"wallet":     player,
		"actionType": "train",
		"payload":    map[string]string{"creatureId": "token-1", "discipline": "sprints"},
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, treasury, body["treasuryAddress"])
	assert.Equal(t, float64(1000), body["amount"])
	assert.Equal(t, "pending", body["status"])
	return body["requestId"].(string)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestActionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ts.paidInMempool()
	ts.registerCreature(t)

	first := ts.createTrain(t)
	rec := ts.do(t, http.MethodGet, "/v1/actions/"+first, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "executed", body["status"])
	assert.Equal(t, txA, body["txId"])
	result := body["result"].(map[string]interface{})
	assert.Equal(t, "token-1", result["creatureId"])

	creature := decode(t, ts.do(t, http.MethodGet, "/v1/creatures/token-1", nil, ""))
	stats := creature["stats"].(map[string]interface{})
	assert.Equal(t, float64(22), stats["speed"])

	second := ts.createTrain(t)
	rec = ts.do(t, http.MethodPost, "/v1/actions/"+second+"/signed", map[string]string{
		"signedTransactionId": txA,
	}, callbackToken)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	body = decode(t, rec)
	assert.Equal(t, "failed", body["status"])
	assert.Equal(t, "PAYMENT_CONFLICT", body["error"].(map[string]interface{})["code"])

	rec = ts.do(t, http.MethodGet, "/v1/actions/"+first+"/transitions", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var transitions []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &transitions))
	assert.GreaterOrEqual(t, len(transitions), 3)

	rec = ts.do(t, http.MethodGet, "/v1/wallets/"+player+"/ledger", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, 1)
}

func TestActionErrors(t *testing.T) {
	ts := newTestServer(t)

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/actions", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown action type", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/actions", map[string]interface{}{
			"wallet": player, "actionType": "fly", "payload": map[string]string{},
		}, "")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "VALIDATION_FAILED", decode(t, rec)["error"])
	})

	t.Run("unregistered creature", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/actions", map[string]interface{}{
			"wallet":     player,
			"actionType": "train",
			"payload":    map[string]string{"creatureId": "ghost", "discipline": "sprints"},
		}, "")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("invalid and unknown ids", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/v1/actions/nope", nil, "").Code)
		assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/v1/actions/"+"5f0c8c2e-8e55-4a52-9f1e-3f7d3c2b1a00", nil, "").Code)
	})

	t.Run("callback requires token", func(t *testing.T) {
		path := "/v1/actions/5f0c8c2e-8e55-4a52-9f1e-3f7d3c2b1a00/signed"
		body := map[string]string{"signedTransactionId": txA}
		assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodPost, path, body, "").Code)
		assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodPost, path, body, "wrong").Code)
		assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodPost, path, body, adminToken).Code)
	})
}

func TestAdminRaceFlow(t *testing.T) {
	ts := newTestServer(t)
	now := time.Now().UTC()

	rec := ts.do(t, http.MethodPost, "/v1/admin/seasons", map[string]interface{}{
		"name": "Spring", "startsAt": now.Add(-time.Hour), "endsAt": now.Add(24 * time.Hour),
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/admin/seasons", map[string]interface{}{
		"name": "Spring", "startsAt": now.Add(-time.Hour), "endsAt": now.Add(24 * time.Hour),
	}, adminToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	seasonID := decode(t, rec)["seasonId"].(string)

	active := decode(t, ts.do(t, http.MethodGet, "/v1/seasons/active", nil, ""))
	assert.Equal(t, seasonID, active["seasonId"])

	race := map[string]interface{}{
		"seasonId":      seasonID,
		"name":          "Morning Sprint",
		"raceType":      "sprint",
		"entryFee":      100,
		"opensAt":       now.Add(-time.Minute),
		"entryDeadline": now.Add(time.Hour),
	}
	rec = ts.do(t, http.MethodPost, "/v1/admin/races", race, adminToken)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "a race without a field size is rejected, not a storage error")

	race["maxEntries"] = 8
	rec = ts.do(t, http.MethodPost, "/v1/admin/races", race, adminToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	raceID := decode(t, rec)["raceId"].(string)

	rec = ts.do(t, http.MethodGet, "/v1/races?seasonId="+seasonID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var races []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &races))
	require.Len(t, races, 1)
	assert.Equal(t, "upcoming", races[0]["status"])

	rec = ts.do(t, http.MethodPost, "/v1/admin/races/"+raceID+"/resolve", nil, adminToken)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/admin/races/"+raceID+"/resume", nil, adminToken)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/races/"+raceID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode(t, rec)
	assert.Equal(t, raceID, detail["race"].(map[string]interface{})["raceId"])

	rec = ts.do(t, http.MethodGet, "/v1/seasons/"+seasonID+"/leaderboard", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/v1/seasons/5f0c8c2e-8e55-4a52-9f1e-3f7d3c2b1a00/leaderboard", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRespondServiceError(t *testing.T) {
	srv := &Server{logger: zerolog.Nop()}
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", derr.Invalid("name", "required"), http.StatusUnprocessableEntity},
		{"not found", fmt.Errorf("load: %w", derr.ErrNotFound), http.StatusNotFound},
		{"conflict", derr.ErrPaymentConflict, http.StatusConflict},
		{"stuck lock", fmt.Errorf("%w: seed", derr.ErrStuckLock), http.StatusServiceUnavailable},
		{"concurrency pending", fmt.Errorf("%w: race r is being resolved", derr.ErrConcurrencyPending), http.StatusConflict},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.respondServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestStream(t *testing.T) {
	ts := newTestServer(t)
	server := httptest.NewServer(ts.handler)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/v1/stream?wallet="+player, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return ts.hub.GetClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	other, err := event.NewMessage(event.RequestTerminal, "9hSomeoneElse", map[string]string{"status": "executed"})
	require.NoError(t, err)
	ts.hub.Publish(other)
	mine, err := event.NewMessage(event.RaceResolved, "", map[string]string{"raceId": "r1"})
	require.NoError(t, err)
	ts.hub.Publish(mine)

	reader := bufio.NewReader(resp.Body)
	var events []string
	for len(events) < 1 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event: ") {
			events = append(events, strings.TrimSpace(strings.TrimPrefix(line, "event: ")))
		}
	}
	assert.Equal(t, []string{event.RaceResolved}, events)
}
