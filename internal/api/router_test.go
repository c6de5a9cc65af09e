package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sujun1972/stock-analysis-go/internal/api/handlers"
	"github.com/sujun1972/stock-analysis-go/internal/audit"
	"github.com/sujun1972/stock-analysis-go/internal/backtest"
	"github.com/sujun1972/stock-analysis-go/internal/contracts"
	"github.com/sujun1972/stock-analysis-go/internal/strategies"
	"github.com/sujun1972/stock-analysis-go/internal/strategy"
	"github.com/sujun1972/stock-analysis-go/pkg/logger"
)

type fixedPanel struct {
	data *contracts.MarketData
}

func (s fixedPanel) Panel(_ context.Context, _ []string, _, _ time.Time) (*contracts.MarketData, error) {
	return s.data, nil
}

func testPanel() *contracts.MarketData {
	var a, b []contracts.Bar
	for i := 1; i <= 26; i++ {
		ca := 80 + float64(i-1)
		cb := 50 + float64(i)*0.5
		a = append(a, contracts.Bar{Date: contracts.Day(2024, 1, i), Open: ca, High: ca, Low: ca, Close: ca, Volume: 1e6})
		b = append(b, contracts.Bar{Date: contracts.Day(2024, 1, i), Open: cb, High: cb, Low: cb, Close: cb, Volume: 1e6})
	}
	return contracts.NewMarketData(map[string][]contracts.Bar{"600100": a, "600200": b})
}

type testServer struct {
	store strategy.Store
	runs  *backtest.RunManager
	http  *httptest.Server
}

func newTestServer(t *testing.T, limiter *rate.Limiter) *testServer {
	t.Helper()

	store := strategy.NewMemStore()
	registry := strategies.NewRegistry()
	composer := backtest.NewComposer(registry, store, nil)
	engine := backtest.NewEngine(composer, logger.Nop())
	runs := backtest.NewRunManager(engine, fixedPanel{data: testPanel()}, nil, 2, logger.Nop())
	auditLog := audit.New(logger.Nop(), 100)

	h := handlers.New(store, registry, runs, auditLog, nil, time.Minute, handlers.Defaults{
		InitialCapital: 100_000,
	}, logger.Nop())

	srv := httptest.NewServer(NewRouter(h, limiter, logger.Nop()))
	t.Cleanup(srv.Close)
	return &testServer{store: store, runs: runs, http: srv}
}

func (s *testServer) get(t *testing.T, path string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(s.http.URL + path)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func (s *testServer) post(t *testing.T, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(s.http.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func seedSelector(t *testing.T, store strategy.Store, name string, passed bool) {
	t.Helper()
	rec := &strategy.Strategy{
		Name:      name,
		Code:      "package strategy\n",
		ClassName: "X",
		Role:      contracts.RoleSelector,
	}
	require.NoError(t, store.Create(context.Background(), rec))
	if passed {
		require.NoError(t, store.UpdateValidation(context.Background(), rec.ID,
			strategy.ValidationPassed, nil, strategy.RiskSafe))
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	resp, body := s.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestListSelectorsOnlyValidated(t *testing.T) {
	s := newTestServer(t, nil)
	seedSelector(t, s.store, "good_one", true)
	seedSelector(t, s.store, "pending_one", false)

	resp, body := s.get(t, "/api/strategies/selectors")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	list := body["strategies"].([]interface{})
	require.Len(t, list, 1)
	entry := list[0].(map[string]interface{})
	assert.Equal(t, "good_one", entry["name"])
	if _, leaked := entry["code"]; leaked {
		t.Fatal("catalog must not expose source code")
	}
}

func TestCreateStrategyValidatesCode(t *testing.T) {
	s := newTestServer(t, nil)

	good := `package strategy

import (
	"time"

	"quant/contracts"
)

type Fixed struct{}

func (f *Fixed) Name() string { return "fixed" }

func (f *Fixed) Select(date time.Time, data *contracts.MarketData) ([]string, error) {
	return []string{"600100"}, nil
}

func New(params contracts.Params) contracts.StockSelector { return &Fixed{} }
`

	resp, body := s.post(t, "/api/strategies", map[string]interface{}{
		"name":       "fixed_pick",
		"code":       good,
		"class_name": "Fixed",
		"role":       "selector",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "passed", body["validation_status"])

	// Duplicate slug is rejected.
	resp, _ = s.post(t, "/api/strategies", map[string]interface{}{
		"name":       "fixed_pick",
		"code":       good,
		"class_name": "Fixed",
		"role":       "selector",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCreateStrategyStoresFailedValidation(t *testing.T) {
	s := newTestServer(t, nil)

	resp, body := s.post(t, "/api/strategies", map[string]interface{}{
		"name":       "evil",
		"code":       "package strategy\n\nimport \"os\"\n\nvar _ = os.Getenv\n",
		"class_name": "Evil",
		"role":       "selector",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "failed", body["validation_status"])
	assert.NotEmpty(t, body["validation_errors"])
}

func TestValidateCombination(t *testing.T) {
	s := newTestServer(t, nil)

	resp, body := s.post(t, "/api/combinations/validate", map[string]interface{}{
		"selector":       map[string]interface{}{"name": "momentum"},
		"entry":          map[string]interface{}{"name": ""},
		"exits":          []interface{}{},
		"rebalance_freq": "W",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["valid"])
	assert.NotEmpty(t, body["errors"])
}

func TestValidateCombinationWarnsOnUnknownNames(t *testing.T) {
	s := newTestServer(t, nil)

	_, body := s.post(t, "/api/combinations/validate", map[string]interface{}{
		"selector":       map[string]interface{}{"name": "momentum"},
		"entry":          map[string]interface{}{"name": "no_such_entry"},
		"exits":          []interface{}{map[string]interface{}{"name": "stop_loss"}},
		"rebalance_freq": "W",
	})
	assert.Equal(t, true, body["valid"])
	warnings := body["warnings"].([]interface{})
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "no_such_entry")
}

func backtestBody(async bool) map[string]interface{} {
	return map[string]interface{}{
		"async": async,
		"combination": map[string]interface{}{
			"selector":       map[string]interface{}{"name": "momentum", "params": map[string]interface{}{"lookback": 20, "top_n": 2}},
			"entry":          map[string]interface{}{"name": "immediate"},
			"exits":          []interface{}{map[string]interface{}{"name": "stop_loss"}},
			"rebalance_freq": "W",
		},
		"start_date": "2024-01-22T00:00:00Z",
		"end_date":   "2024-01-26T00:00:00Z",
	}
}

func TestBacktestAsyncLifecycle(t *testing.T) {
	s := newTestServer(t, nil)

	resp, body := s.post(t, "/api/backtest/run", backtestBody(true))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	runID := body["run_id"].(string)
	require.NotEmpty(t, runID)

	require.Eventually(t, func() bool {
		resp, body := s.get(t, "/api/backtest/runs/"+runID)
		return resp.StatusCode == http.StatusOK && body["status"] == "completed"
	}, 5*time.Second, 20*time.Millisecond)

	resp, body = s.get(t, "/api/backtest/runs/"+runID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, body["result"])

	resp, body = s.get(t, "/api/backtest/runs")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["count"])
}

func TestBacktestSyncReturnsResult(t *testing.T) {
	s := newTestServer(t, nil)

	resp, body := s.post(t, "/api/backtest/run", backtestBody(false))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", body["status"])
	require.NotNil(t, body["result"])
}

func TestBacktestRejectsBadCombination(t *testing.T) {
	s := newTestServer(t, nil)

	req := backtestBody(true)
	req["combination"].(map[string]interface{})["exits"] = []interface{}{}
	resp, _ := s.post(t, "/api/backtest/run", req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunNotFound(t *testing.T) {
	s := newTestServer(t, nil)
	resp, _ := s.get(t, "/api/backtest/runs/no-such-id")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = s.post(t, "/api/backtest/runs/no-such-id/cancel", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRateLimitOnBacktestRoutes(t *testing.T) {
	s := newTestServer(t, rate.NewLimiter(0, 0)) // everything throttled

	resp, body := s.post(t, "/api/backtest/run", backtestBody(true))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, body["error"])

	// Non-backtest routes stay open.
	resp, _ = s.get(t, "/api/strategies/selectors")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStreamRunDeliversTerminalEvent(t *testing.T) {
	s := newTestServer(t, nil)

	resp, body := s.post(t, "/api/backtest/run", backtestBody(true))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	runID := body["run_id"].(string)

	wsURL := "ws" + strings.TrimPrefix(s.http.URL, "http") + "/api/backtest/runs/" + runID + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var last map[string]interface{}
	for {
		var ev map[string]interface{}
		if err := conn.ReadJSON(&ev); err != nil {
			break // normal closure after the terminal event
		}
		last = ev
	}
	require.NotNil(t, last)
	assert.Equal(t, "completed", last["status"])
	assert.Equal(t, runID, last["run_id"])
}

func TestStreamUnknownRun(t *testing.T) {
	s := newTestServer(t, nil)
	resp, _ := s.get(t, "/api/backtest/runs/missing/stream")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuditEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	// Creating a strategy records a validation event.
	_, body := s.post(t, "/api/strategies", map[string]interface{}{
		"name":       "tracked",
		"code":       "package strategy\n",
		"class_name": "T",
		"role":       "selector",
	})
	id := int64(body["id"].(float64))

	resp, recent := s.get(t, "/api/audit/recent?n=10")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.GreaterOrEqual(t, recent["count"].(float64), float64(1))

	resp, perStrategy := s.get(t, "/api/audit/strategies/"+strconv.FormatInt(id, 10))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.GreaterOrEqual(t, perStrategy["count"].(float64), float64(1))
}
