package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"savingsbank/core"
	"savingsbank/core/events"
	"savingsbank/core/genesis"
	"savingsbank/gateway/middleware"
	"savingsbank/services/savingsd/audit"
	"savingsbank/storage"
)

const serverGenesis = `
superAdmin = "0x0000000000000000000000000000000000000c01"
vaultSeed = "1_000_000000"

[roles]
ADMIN_ROLE = ["0x0000000000000000000000000000000000000c02"]
PAUSER_ROLE = ["0x0000000000000000000000000000000000000c03"]

[alloc]
"0x0000000000000000000000000000000000000c02" = "10_000_000000"
"0x0000000000000000000000000000000000000c04" = "5_000_000000"

[[plans]]
name = "Standard"
minDeposit = "100_000000"
maxDeposit = "10_000_000000"
minTermDays = 30
maxTermDays = 365
annualRateBps = 500
penaltyRateBps = 1000
`

var (
	srvAdmin  = ethcommon.HexToAddress("0x0000000000000000000000000000000000000c02")
	srvPauser = ethcommon.HexToAddress("0x0000000000000000000000000000000000000c03")
	srvAlice  = ethcommon.HexToAddress("0x0000000000000000000000000000000000000c04")
	srvBob    = ethcommon.HexToAddress("0x0000000000000000000000000000000000000c05")
)

type fixture struct {
	srv   *Server
	store *audit.Store
	now   int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := audit.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{store: store, now: 1_700_000_000}
	hub := NewHub()
	node, err := core.NewNode(storage.NewMemDB(),
		core.WithEmitter(events.Fanout{store, hub}),
		core.WithNowFunc(func() int64 { return f.now }),
		core.WithLogger(logger))
	require.NoError(t, err)
	spec, err := genesis.ParseSpec(serverGenesis)
	require.NoError(t, err)
	_, err = node.InitGenesis(spec)
	require.NoError(t, err)

	f.srv, err = New(Config{
		Auth:          middleware.AuthConfig{Enabled: false},
		Observability: middleware.ObservabilityConfig{Enabled: true},
		RateLimits: map[string]middleware.RateLimit{
			groupMutations: {RatePerSecond: 1000, Burst: 1000},
			groupReads:     {RatePerSecond: 1000, Burst: 1000},
		},
	}, node, store, hub, logger)
	require.NoError(t, err)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, caller ethcommon.Address, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if caller != (ethcommon.Address{}) {
		req.Header.Set("X-Caller", caller.Hex())
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	out := map[string]interface{}{}
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec.Code, out
}

func (f *fixture) openDeposit(t *testing.T, owner ethcommon.Address) map[string]interface{} {
	t.Helper()
	code, _ := f.do(t, http.MethodPost, "/v1/asset/approve", owner, map[string]string{"amount": "1000000000"})
	require.Equal(t, http.StatusOK, code)
	code, body := f.do(t, http.MethodPost, "/v1/deposits", owner, map[string]interface{}{
		"planId": 1, "amount": "1000000000", "termDays": 365,
	})
	require.Equal(t, http.StatusCreated, code, body)
	return body
}

func TestDepositFlowOverHTTP(t *testing.T) {
	f := newFixture(t)

	dep := f.openDeposit(t, srvAlice)
	require.Equal(t, float64(1), dep["id"])
	require.Equal(t, "50000000", dep["expectedInterest"])
	require.Equal(t, "active", dep["status"])

	code, body := f.do(t, http.MethodGet, "/v1/deposits/1", srvAlice, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, srvAlice.Hex(), body["depositor"])

	code, body = f.do(t, http.MethodGet, "/v1/deposits/1/penalty", srvAlice, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "100000000", body["penalty"])

	code, body = f.do(t, http.MethodGet, "/v1/stats", srvAlice, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, float64(1), body["activeDeposits"])
	require.Equal(t, "2000000000", body["vaultBalance"])

	f.now += 365 * 86400
	code, body = f.do(t, http.MethodGet, "/v1/deposits/1/mature", srvAlice, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["mature"])

	code, body = f.do(t, http.MethodPost, "/v1/deposits/1/withdraw", srvAlice, nil)
	require.Equal(t, http.StatusOK, code, body)
	require.Equal(t, "1050000000", body["payout"])
	require.Equal(t, false, body["early"])

	code, body = f.do(t, http.MethodGet, "/v1/users/"+srvAlice.Hex()+"/asset", srvAlice, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "5050000000", body["balance"])

	code, body = f.do(t, http.MethodPost, "/v1/deposits/1/withdraw", srvAlice, nil)
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "state", body["kind"])
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t)
	f.openDeposit(t, srvAlice)

	code, body := f.do(t, http.MethodPost, "/v1/deposits/1/withdraw", srvBob, nil)
	require.Equal(t, http.StatusForbidden, code)
	require.Equal(t, "unauthorized", body["error"])

	code, body = f.do(t, http.MethodPost, "/v1/certificates/1/transfer", srvAlice, map[string]string{"to": srvBob.Hex()})
	require.Equal(t, http.StatusLocked, code)
	require.Equal(t, float64(86400), body["remainingSeconds"])

	code, _ = f.do(t, http.MethodGet, "/v1/deposits/99", srvAlice, nil)
	require.Equal(t, http.StatusNotFound, code)

	code, body = f.do(t, http.MethodPost, "/v1/deposits", srvAlice, map[string]interface{}{
		"planId": 1, "amount": "-5", "termDays": 30,
	})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "invalid amount", body["error"])

	code, _ = f.do(t, http.MethodPost, "/v1/deposits", srvAlice, map[string]interface{}{
		"planId": 1, "amount": "1", "termDays": 30, "extra": true,
	})
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/v1/deposits", ethcommon.Address{}, map[string]interface{}{
		"planId": 1, "amount": "100000000", "termDays": 30,
	})
	require.Equal(t, http.StatusUnauthorized, code)

	code, body = f.do(t, http.MethodPost, "/v1/deposits", srvAlice, map[string]interface{}{
		"planId": 1, "amount": "100000000000", "termDays": 30,
	})
	require.Equal(t, http.StatusBadRequest, code, body)
}

func TestPauseBlocksMutations(t *testing.T) {
	f := newFixture(t)

	code, _ := f.do(t, http.MethodPost, "/v1/admin/pause", srvAlice, nil)
	require.Equal(t, http.StatusForbidden, code)

	code, body := f.do(t, http.MethodPost, "/v1/admin/pause", srvPauser, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["paused"])

	code, body = f.do(t, http.MethodGet, "/healthz", ethcommon.Address{}, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "paused", body["status"])

	code, _ = f.do(t, http.MethodPost, "/v1/asset/approve", srvAlice, map[string]string{"amount": "1000000000"})
	require.Equal(t, http.StatusOK, code)
	code, body = f.do(t, http.MethodPost, "/v1/deposits", srvAlice, map[string]interface{}{
		"planId": 1, "amount": "1000000000", "termDays": 30,
	})
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "paused", body["kind"])

	code, _ = f.do(t, http.MethodPost, "/v1/admin/unpause", srvPauser, nil)
	require.Equal(t, http.StatusOK, code)
	f.openDeposit(t, srvAlice)
}

func TestPlanAdministration(t *testing.T) {
	f := newFixture(t)

	plan := map[string]interface{}{
		"name": "Short", "minDeposit": "1", "maxDeposit": "0",
		"minTermDays": 7, "maxTermDays": 30, "annualRateBps": 250, "penaltyRateBps": 500,
	}
	code, _ := f.do(t, http.MethodPost, "/v1/plans", srvAlice, plan)
	require.Equal(t, http.StatusForbidden, code)

	code, body := f.do(t, http.MethodPost, "/v1/plans", srvAdmin, plan)
	require.Equal(t, http.StatusCreated, code, body)
	require.Equal(t, float64(2), body["id"])
	require.Equal(t, true, body["active"])

	code, body = f.do(t, http.MethodPut, "/v1/plans/2/penalty-receiver", srvAdmin, map[string]string{"receiver": srvBob.Hex()})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, srvBob.Hex(), body["penaltyReceiver"])

	code, body = f.do(t, http.MethodPost, "/v1/plans/2/deactivate", srvAdmin, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, false, body["active"])

	code, body = f.do(t, http.MethodGet, "/v1/plans/1/interest?amount=1000000000&termDays=365", srvAlice, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "50000000", body["interest"])

	code, _ = f.do(t, http.MethodGet, "/v1/plans/1/interest?amount=x&termDays=365", srvAlice, nil)
	require.Equal(t, http.StatusBadRequest, code)

	code, body = f.do(t, http.MethodGet, "/v1/roles/admin_role/members", srvAlice, nil)
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body["members"], srvAdmin.Hex())
}

func TestEventsEndpointPagesAuditLog(t *testing.T) {
	f := newFixture(t)
	f.openDeposit(t, srvAlice)

	code, body := f.do(t, http.MethodGet, "/v1/events?type=savings.deposit", srvAlice, nil)
	require.Equal(t, http.StatusOK, code)
	list, ok := body["events"].([]interface{})
	require.True(t, ok)
	require.Len(t, list, 1)
	first := list[0].(map[string]interface{})
	require.Equal(t, "savings.deposit.created", first["type"])

	code, body = f.do(t, http.MethodGet, "/v1/events?limit=2", srvAlice, nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["events"], 2)
	next := uint64(body["next"].(float64))

	code, body = f.do(t, http.MethodGet, fmt.Sprintf("/v1/events?after=%d", next), srvAlice, nil)
	require.Equal(t, http.StatusOK, code)
	for _, raw := range body["events"].([]interface{}) {
		require.Greater(t, uint64(raw.(map[string]interface{})["sequence"].(float64)), next)
	}

	code, _ = f.do(t, http.MethodGet, "/v1/events?after=abc", srvAlice, nil)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/v1/vault", srvAlice, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "savingsd_requests_total")
}
