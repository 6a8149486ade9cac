package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"trading-simulator/internal/auth"
	"trading-simulator/internal/execution"
	"trading-simulator/internal/model"
	"trading-simulator/internal/portfolio"
	"trading-simulator/internal/simulation"
	"trading-simulator/internal/store/sqlite"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSimulator struct {
	mock.Mock

	patched model.Settings
}

func (m *MockSimulator) Snapshot(ctx context.Context) (simulation.Snapshot, error) {
	args := m.Called(ctx)
	return args.Get(0).(simulation.Snapshot), args.Error(1)
}

func (m *MockSimulator) Settings(ctx context.Context) (model.Settings, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.Settings), args.Error(1)
}

func (m *MockSimulator) Stats(ctx context.Context) (model.AccountStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.AccountStats), args.Error(1)
}

func (m *MockSimulator) OpenPosition(ctx context.Context, dir model.Direction) (model.Position, error) {
	args := m.Called(ctx, dir)
	return args.Get(0).(model.Position), args.Error(1)
}

func (m *MockSimulator) ClosePosition(ctx context.Context, id string) (model.Position, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Position), args.Error(1)
}

func (m *MockSimulator) Reset(ctx context.Context) (model.ResetNotice, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.ResetNotice), args.Error(1)
}

func (m *MockSimulator) SetAutoTrading(ctx context.Context, on bool) error {
	return m.Called(ctx, on).Error(0)
}

// PatchSettings runs patch against the stubbed current settings, then fails
// with the stubbed apply error or records the result.
func (m *MockSimulator) PatchSettings(ctx context.Context, patch func(model.Settings) (model.Settings, error)) (model.Settings, error) {
	args := m.Called(ctx)
	next, err := patch(args.Get(0).(model.Settings))
	if err != nil {
		return model.Settings{}, err
	}
	if err := args.Error(1); err != nil {
		return model.Settings{}, err
	}
	m.patched = next
	return next, nil
}

func (m *MockSimulator) ConnectBroker(ctx context.Context, endpoint string) error {
	return m.Called(ctx, endpoint).Error(0)
}

func (m *MockSimulator) DisconnectBroker() { m.Called() }

func (m *MockSimulator) BrokerConnected() bool { return m.Called().Bool(0) }

func (m *MockSimulator) SubmitBrokerOrder(ctx context.Context, dir model.Direction) (model.BrokerOrder, error) {
	args := m.Called(ctx, dir)
	return args.Get(0).(model.BrokerOrder), args.Error(1)
}

type stubJournal struct {
	trades []sqlite.TradeRecord
	limit  int
}

func (s *stubJournal) RecentTrades(_ context.Context, limit int) ([]sqlite.TradeRecord, error) {
	s.limit = limit
	return s.trades, nil
}

func (s *stubJournal) Summarize(context.Context) (sqlite.Summary, error) {
	return sqlite.Summary{Trades: len(s.trades)}, nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func do(t *testing.T, r http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthCheck(t *testing.T) {
	r := NewAPIHandler(&MockSimulator{}).SetupRoutes()
	w := do(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ServiceName, decode(t, w)["service"])
}

func TestHealthCheck_Delegates(t *testing.T) {
	hh := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	r := NewAPIHandler(&MockSimulator{}, WithHealth(hh)).SetupRoutes()
	assert.Equal(t, http.StatusServiceUnavailable, do(t, r, http.MethodGet, "/health", "").Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	r := NewAPIHandler(&MockSimulator{}).SetupRoutes()

	w := do(t, r, http.MethodGet, "/health", "", RequestIDHeaderKey, "req-1")
	assert.Equal(t, "req-1", w.Header().Get(RequestIDHeaderKey))

	w = do(t, r, http.MethodGet, "/health", "")
	assert.Len(t, w.Header().Get(RequestIDHeaderKey), 36)
}

func TestCORSPreflight(t *testing.T) {
	r := NewAPIHandler(&MockSimulator{}).SetupRoutes()
	w := do(t, r, http.MethodOptions, "/api/v1/positions", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), TOTPHeaderKey)
}

func TestQueries(t *testing.T) {
	sim := &MockSimulator{}
	snap := simulation.Snapshot{
		Price:      101.5,
		Candles:    []model.Candle{{Close: 101}},
		Indicators: []model.Indicator{{Kind: model.KindRSI, Value: model.Reading{Number: 71.25, Valid: true, Unit: model.UnitOscillator}}},
		Positions:  []model.Position{{ID: "p1"}},
	}
	sim.On("Snapshot", mock.Anything).Return(snap, nil)
	sim.On("Stats", mock.Anything).Return(model.AccountStats{Balance: 10500, Equity: 10600, ProfitFactor: model.NewProfitFactor(10, 0)}, nil)
	sim.On("Settings", mock.Anything).Return(model.DefaultSettings(), nil)
	sim.On("BrokerConnected").Return(true)
	r := NewAPIHandler(sim).SetupRoutes()

	w := do(t, r, http.MethodGet, "/api/v1/candles", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 101.5, decode(t, w)["price"])

	w = do(t, r, http.MethodGet, "/api/v1/indicators", "")
	require.Equal(t, http.StatusOK, w.Code)
	inds := decode(t, w)["indicators"].([]any)
	assert.Equal(t, "71.3", inds[0].(map[string]any)["display"])

	w = do(t, r, http.MethodGet, "/api/v1/positions", "")
	assert.Len(t, decode(t, w)["active"], 1)

	w = do(t, r, http.MethodGet, "/api/v1/stats", "")
	body := decode(t, w)
	assert.Equal(t, "$10500.00", body["balance"])
	assert.Equal(t, "∞", body["profitFactor"])

	w = do(t, r, http.MethodGet, "/api/v1/settings", "")
	assert.Equal(t, "BTCUSD", decode(t, w)["symbol"])

	w = do(t, r, http.MethodGet, "/api/v1/broker", "")
	assert.Equal(t, true, decode(t, w)["connected"])

	w = do(t, r, http.MethodGet, "/api/v1/snapshot", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOpenPosition(t *testing.T) {
	sim := &MockSimulator{}
	sim.On("OpenPosition", mock.Anything, model.Long).Return(model.Position{ID: "p1", Direction: model.Long}, nil).Once()
	sim.On("OpenPosition", mock.Anything, model.Short).Return(model.Position{}, fmt.Errorf("open: %w", portfolio.ErrCapacityExceeded)).Once()
	r := NewAPIHandler(sim).SetupRoutes()

	w := do(t, r, http.MethodPost, "/api/v1/positions", `{"direction":"BUY"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "p1", decode(t, w)["id"])

	w = do(t, r, http.MethodPost, "/api/v1/positions", `{"direction":"short"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/positions", `{"direction":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/positions", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	sim.AssertExpectations(t)
}

func TestClosePosition(t *testing.T) {
	sim := &MockSimulator{}
	sim.On("ClosePosition", mock.Anything, "p1").Return(model.Position{ID: "p1", CloseReason: model.CloseManual}, nil)
	sim.On("ClosePosition", mock.Anything, "nope").Return(model.Position{}, simulation.ErrPositionNotFound)
	r := NewAPIHandler(sim).SetupRoutes()

	assert.Equal(t, http.StatusOK, do(t, r, http.MethodDelete, "/api/v1/positions/p1", "").Code)
	w := do(t, r, http.MethodDelete, "/api/v1/positions/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, decode(t, w)["request_id"])
}

func TestResetAndAutoTrade(t *testing.T) {
	sim := &MockSimulator{}
	sim.On("Reset", mock.Anything).Return(model.ResetNotice{Stats: model.InitialStats(10000)}, nil)
	sim.On("SetAutoTrading", mock.Anything, true).Return(nil)
	r := NewAPIHandler(sim).SetupRoutes()

	assert.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/api/v1/reset", "").Code)

	w := do(t, r, http.MethodPut, "/api/v1/autotrade", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["autoTrading"])

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPut, "/api/v1/autotrade", `{}`).Code)
	sim.AssertExpectations(t)
}

func TestUpdateSettings(t *testing.T) {
	sim := &MockSimulator{}
	sim.On("PatchSettings", mock.Anything).Return(model.DefaultSettings(), nil)
	r := NewAPIHandler(sim).SetupRoutes()

	w := do(t, r, http.MethodPatch, "/api/v1/settings", `{"riskPercentage":2,"tradingIntervalSeconds":30,"indicators":{"psar":false}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2.0, decode(t, w)["riskPercentage"])
	assert.Equal(t, 2.0, sim.patched.RiskPercentage)
	assert.Equal(t, 30*time.Second, sim.patched.TradingInterval)
	assert.False(t, sim.patched.Indicators[model.KindPSAR])

	sim.patched = model.Settings{}
	w = do(t, r, http.MethodPatch, "/api/v1/settings", `{"confirmationCount":9}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "confirmationCount")
	assert.Zero(t, sim.patched.RiskPercentage, "rejected patch must not be applied")

	sim.AssertExpectations(t)
}

func TestUpdateSettings_SymbolLocked(t *testing.T) {
	sim := &MockSimulator{}
	sim.On("PatchSettings", mock.Anything).Return(model.DefaultSettings(), simulation.ErrSymbolLocked)
	r := NewAPIHandler(sim).SetupRoutes()

	w := do(t, r, http.MethodPatch, "/api/v1/settings", `{"symbol":"ethusd"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

// autoTradeOffFirst switches auto-trading off just before every settings
// patch, like a PUT /autotrade that lands while the PATCH is in flight.
type autoTradeOffFirst struct {
	*simulation.Session
}

func (s autoTradeOffFirst) PatchSettings(ctx context.Context, patch func(model.Settings) (model.Settings, error)) (model.Settings, error) {
	if err := s.Session.SetAutoTrading(ctx, false); err != nil {
		return model.Settings{}, err
	}
	return s.Session.PatchSettings(ctx, patch)
}

func TestUpdateSettings_KeepsConcurrentAutoTradeOff(t *testing.T) {
	cfg := simulation.DefaultConfig()
	cfg.CandleInterval = time.Hour
	cfg.IndicatorInterval = time.Hour
	cfg.PositionInterval = time.Hour
	sess, err := simulation.NewSession(cfg, nil)
	require.NoError(t, err)
	sess.Start(context.Background())
	t.Cleanup(sess.Stop)
	require.NoError(t, sess.SetAutoTrading(context.Background(), true))

	r := NewAPIHandler(autoTradeOffFirst{sess}).SetupRoutes()
	w := do(t, r, http.MethodPatch, "/api/v1/settings", `{"riskPercentage":2}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, false, decode(t, w)["autoTrading"])

	st, err := sess.Settings(context.Background())
	require.NoError(t, err)
	assert.False(t, st.AutoTrading)
	assert.Equal(t, 2.0, st.RiskPercentage)
}

func TestBrokerEndpoints(t *testing.T) {
	sim := &MockSimulator{}
	sim.On("ConnectBroker", mock.Anything, "ftp://x").Return(fmt.Errorf("%w: scheme", execution.ErrInvalidEndpoint))
	sim.On("ConnectBroker", mock.Anything, "https://broker.local").Return(nil)
	sim.On("DisconnectBroker").Return()
	sim.On("SubmitBrokerOrder", mock.Anything, model.Long).Return(model.BrokerOrder{Symbol: "BTCUSD", Success: true, OrderID: "PAPER-1"}, nil)
	sim.On("SubmitBrokerOrder", mock.Anything, model.Short).Return(model.BrokerOrder{Symbol: "BTCUSD", Error: "order rejected"}, execution.ErrRejected)
	r := NewAPIHandler(sim).SetupRoutes()

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/api/v1/broker/connect", `{"endpoint":"ftp://x"}`).Code)
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/api/v1/broker/connect", `{"endpoint":"https://broker.local"}`).Code)
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/api/v1/broker/disconnect", "").Code)

	w := do(t, r, http.MethodPost, "/api/v1/broker/orders", `{"direction":"long"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "PAPER-1", decode(t, w)["orderId"])

	w = do(t, r, http.MethodPost, "/api/v1/broker/orders", `{"direction":"sell"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	sim.AssertExpectations(t)
}

func TestBrokerOrder_NoBroker(t *testing.T) {
	sim := &MockSimulator{}
	sim.On("SubmitBrokerOrder", mock.Anything, model.Long).Return(model.BrokerOrder{}, simulation.ErrNoBroker)
	r := NewAPIHandler(sim).SetupRoutes()
	assert.Equal(t, http.StatusNotImplemented, do(t, r, http.MethodPost, "/api/v1/broker/orders", `{"direction":"long"}`).Code)
}

func TestStoppedSession(t *testing.T) {
	sim := &MockSimulator{}
	sim.On("Stats", mock.Anything).Return(model.AccountStats{}, simulation.ErrStopped)
	r := NewAPIHandler(sim).SetupRoutes()
	assert.Equal(t, http.StatusServiceUnavailable, do(t, r, http.MethodGet, "/api/v1/stats", "").Code)
}

func TestTOTPGuard(t *testing.T) {
	const secret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"
	sim := &MockSimulator{}
	sim.On("Reset", mock.Anything).Return(model.ResetNotice{}, nil)
	sim.On("Stats", mock.Anything).Return(model.AccountStats{}, nil)
	r := NewAPIHandler(sim, WithGuard(auth.NewGuard(secret))).SetupRoutes()

	w := do(t, r, http.MethodPost, "/api/v1/reset", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "one-time code required", decode(t, w)["error"])

	assert.Equal(t, http.StatusUnauthorized, do(t, r, http.MethodPost, "/api/v1/reset", "", TOTPHeaderKey, "000000x").Code)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/api/v1/reset", "", TOTPHeaderKey, code).Code)

	// Queries stay open.
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/api/v1/stats", "").Code)
	sim.AssertNumberOfCalls(t, "Reset", 1)
}

func TestJournalEndpoints(t *testing.T) {
	j := &stubJournal{trades: []sqlite.TradeRecord{{PositionID: "p1"}}}
	r := NewAPIHandler(&MockSimulator{}, WithJournal(j)).SetupRoutes()

	w := do(t, r, http.MethodGet, "/api/v1/journal/trades?limit=1000", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, maxJournalLimit, j.limit)

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/v1/journal/trades?limit=-1", "").Code)

	w = do(t, r, http.MethodGet, "/api/v1/journal/summary", "")
	assert.Equal(t, float64(1), decode(t, w)["trades"])
}

func TestJournalEndpoints_AbsentWithoutJournal(t *testing.T) {
	r := NewAPIHandler(&MockSimulator{}).SetupRoutes()
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/api/v1/journal/trades", "").Code)
}

func TestValidator_Direction(t *testing.T) {
	v := NewValidator()
	for in, want := range map[string]model.Direction{"long": model.Long, " Buy ": model.Long, "SHORT": model.Short, "sell": model.Short} {
		got, err := v.Direction(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := v.Direction("hold")
	assert.ErrorIs(t, err, errInvalidDirection)
}

func TestValidator_SettingsKeepsCurrentOnError(t *testing.T) {
	v := NewValidator()
	cur := model.DefaultSettings()
	bad := -1.0
	got, err := v.Settings(cur, SettingsPatch{RiskPercentage: &bad})
	assert.ErrorIs(t, err, model.ErrInvalidSettings)
	assert.Equal(t, cur.RiskPercentage, got.RiskPercentage)

	empty := "  "
	_, err = v.Settings(cur, SettingsPatch{Symbol: &empty})
	assert.ErrorIs(t, err, model.ErrInvalidSettings)

	// The patch never aliases the caller's indicator set.
	off := map[string]bool{"rsi": false}
	_, err = v.Settings(cur, SettingsPatch{Indicators: off})
	require.NoError(t, err)
	assert.True(t, cur.Indicators[model.KindRSI])
}
