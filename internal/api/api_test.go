package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"YieldVault/internal/adaptor"
	"YieldVault/internal/auth"
	"YieldVault/internal/calculator"
	"YieldVault/internal/collector"
	"YieldVault/internal/fund"
	"YieldVault/internal/model"
	"YieldVault/internal/oracle"
	"YieldVault/internal/vault"
)

const testToken = "t0ken"

var noLimit = calculator.Pow10(36).String()

func units(n int64, decimals uint8) math.Int {
	return calculator.Pow10(decimals).MulRaw(n)
}

type reply struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Kind    string          `json:"kind"`
}

type fixture struct {
	fm     *fund.Manager
	v      *vault.Vault
	op     *vault.OperatorCap
	router *mux.Router

	mu  sync.Mutex
	now time.Time
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// advance moves the clock and refreshes prices so they stay fresh.
func (f *fixture) advance(t *testing.T, d time.Duration) {
	t.Helper()
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
	_, err := f.fm.RefreshOracle(context.Background())
	require.NoError(t, err)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: time.UnixMilli(1_700_000_000_000)}

	cache := oracle.NewCache(time.Hour, nil)
	var bindings []collector.Binding
	for _, key := range []string{"USDC", "USDT"} {
		require.NoError(t, cache.AddAsset(oracle.Asset{Key: key, FeedID: key + "-usd", AssetDecimals: 6, MaxFeedAge: time.Hour}))
		feed := collector.NewStaticFeed(key+"-usd", units(1, 8), 8, f.now)
		feed.Clock = f.clock
		bindings = append(bindings, collector.Binding{Key: key, Feed: feed})
	}

	authority, admin := auth.New(nil)
	v, err := vault.New(vault.Config{
		PrincipalAsset: "USDC",
		Params:         vault.DefaultParams(),
		Authority:      authority,
		Oracle:         cache,
		Adaptors:       adaptor.NewSet(adaptor.BalanceAdaptor{}, adaptor.AMMAdaptor{SlippageBps: 50}),
		Clock:          f.clock,
	})
	require.NoError(t, err)
	op, err := v.CreateOperatorCap(admin)
	require.NoError(t, err)

	fm, err := fund.NewManager(fund.Options{
		Vault:     v,
		Oracle:    cache,
		Collector: collector.NewCollector(nil, bindings...),
		Clock:     f.clock,
		Keeper:    op,
	})
	require.NoError(t, err)
	_, err = fm.RefreshOracle(context.Background())
	require.NoError(t, err)

	f.router = mux.NewRouter()
	New(fm, admin, op, testToken, nil).Register(f.router)
	f.fm, f.v, f.op = fm, v, op
	return f
}

func (f *fixture) call(t *testing.T, method, path string, body any) (int, reply) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var out reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func decode[T any](t *testing.T, r reply) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(r.Data, &v))
	return v
}

type depositReply struct {
	RequestID uint64    `json:"request_id"`
	ReceiptID uuid.UUID `json:"receipt_id"`
}

func (f *fixture) deposit(t *testing.T, sender string, amount math.Int) depositReply {
	t.Helper()
	code, r := f.call(t, "POST", "/v1/deposits", map[string]any{"sender": sender, "amount": amount.String()})
	require.Equal(t, http.StatusOK, code, r.Error)
	d := decode[depositReply](t, r)

	f.advance(t, time.Second)
	code, r = f.call(t, "POST", fmt.Sprintf("/v1/deposits/%d/execute", d.RequestID), map[string]any{"max_shares": noLimit})
	require.Equal(t, http.StatusOK, code, r.Error)
	return d
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)

	for name, header := range map[string]string{
		"missing": "",
		"wrong":   "Bearer nope",
		"scheme":  "Basic " + testToken,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/v1/summary", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			f.router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}

	code, r := f.call(t, "GET", "/v1/summary", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, r.Success)
	assert.Equal(t, "NORMAL", decode[model.Summary](t, r).Status)
}

func TestAuthenticate_EmptyTokenRejectsEverything(t *testing.T) {
	f := newFixture(t)
	router := mux.NewRouter()
	New(f.fm, nil, f.op, "", nil).Register(router)

	req := httptest.NewRequest("GET", "/v1/summary", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDepositWithdrawAndCancel(t *testing.T) {
	f := newFixture(t)
	d := f.deposit(t, "alice", units(1_000, 6))

	code, r := f.call(t, "GET", "/v1/summary", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, units(1_000, 9).String(), decode[model.Summary](t, r).TotalShares.String())

	code, r = f.call(t, "POST", "/v1/withdrawals", map[string]any{
		"sender": "alice", "receipt_id": d.ReceiptID.String(), "shares": units(400, 9).String(),
	})
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "state", r.Kind)

	f.advance(t, vault.DefaultParams().LockingTimeForWithdraw)
	code, r = f.call(t, "POST", "/v1/withdrawals", map[string]any{
		"sender": "alice", "receipt_id": d.ReceiptID.String(), "shares": units(400, 9).String(),
	})
	require.Equal(t, http.StatusOK, code, r.Error)
	wid := decode[struct {
		RequestID uint64 `json:"request_id"`
	}](t, r).RequestID

	f.advance(t, time.Second)
	code, r = f.call(t, "POST", fmt.Sprintf("/v1/withdrawals/%d/execute", wid), map[string]any{"max_amount_out": noLimit})
	require.Equal(t, http.StatusOK, code, r.Error)
	p := decode[model.Payout](t, r)
	assert.Equal(t, units(400, 6).String(), p.Amount.String())
	assert.Equal(t, "alice", p.Recipient)

	code, r = f.call(t, "POST", "/v1/deposits", map[string]any{"sender": "bob", "amount": units(50, 6).String()})
	require.Equal(t, http.StatusOK, code, r.Error)
	bob := decode[depositReply](t, r)

	f.advance(t, vault.DefaultParams().LockingTimeForCancel)
	path := fmt.Sprintf("/v1/deposits/%d/cancel", bob.RequestID)
	code, r = f.call(t, "POST", path, map[string]any{"sender": "mallory"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "authorization", r.Kind)

	code, r = f.call(t, "POST", path, map[string]any{"sender": "bob"})
	require.Equal(t, http.StatusOK, code, r.Error)
	refund := decode[struct {
		Refund math.Int `json:"refund"`
	}](t, r).Refund
	assert.Equal(t, units(50, 6).String(), refund.String())
}

func TestOperationLifecycle(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, "alice", units(1_000, 6))

	code, r := f.call(t, "POST", "/v1/items", map[string]any{
		"key": "usdt", "kind": adaptor.KindBalance, "asset": "USDT", "amount": units(500, 6).String(),
	})
	require.Equal(t, http.StatusOK, code, r.Error)

	f.advance(t, time.Second)
	code, r = f.call(t, "POST", "/v1/operations", map[string]any{"keys": []string{"usdt"}, "principal": units(100, 6).String()})
	require.Equal(t, http.StatusOK, code, r.Error)
	view := decode[OperationView](t, r)
	assert.Equal(t, []string{"usdt"}, view.Keys)
	assert.Equal(t, units(100, 6).String(), view.Principal.String())

	f.advance(t, time.Second)
	code, r = f.call(t, "POST", "/v1/operations/current/end-custody", map[string]any{
		"principal": units(100, 6).String(),
		"balances":  map[string]string{"ghost": "1"},
	})
	require.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, r.Error, "item ghost is not in custody")

	code, r = f.call(t, "POST", "/v1/operations/current/end-custody", map[string]any{
		"principal": units(100, 6).String(),
		"balances":  map[string]string{"usdt": units(510, 6).String()},
	})
	require.Equal(t, http.StatusOK, code, r.Error)

	f.advance(t, time.Second)
	code, r = f.call(t, "POST", "/v1/operations/current/enable-valuation", nil)
	require.Equal(t, http.StatusOK, code, r.Error)

	code, r = f.call(t, "POST", "/v1/values/usdt/update", nil)
	require.Equal(t, http.StatusOK, code, r.Error)
	val := decode[struct {
		Value math.Int `json:"value"`
	}](t, r).Value
	assert.Equal(t, units(510, 9).String(), val.String())

	f.advance(t, time.Second)
	code, r = f.call(t, "POST", "/v1/operations/current/complete", map[string]any{"expected_total_shares": units(1_000, 9).String()})
	require.Equal(t, http.StatusOK, code, r.Error)
	res := decode[OperationResultView](t, r)
	assert.True(t, res.Loss.IsZero())
	assert.Equal(t, units(1_510, 9).String(), res.ValueAfter.String())
	assert.Equal(t, model.StatusNormal, f.v.Status())

	code, r = f.call(t, "POST", "/v1/operations/current/complete", map[string]any{"expected_total_shares": units(1_000, 9).String()})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "state", r.Kind)

	code, _ = f.call(t, "POST", "/v1/operations/current/end-custody", map[string]any{"principal": "0"})
	assert.Equal(t, http.StatusConflict, code)
}

func TestAdminRoutes(t *testing.T) {
	f := newFixture(t)

	code, r := f.call(t, "PUT", "/v1/admin/pools/pool-1", map[string]any{
		"kind": adaptor.KindLiquidity, "coin_a": "USDC", "coin_b": "USDT",
		"reserve_a": units(100, 6).String(), "reserve_b": units(100, 6).String(), "total_liquidity": "1000",
	})
	require.Equal(t, http.StatusOK, code, r.Error)

	code, r = f.call(t, "PUT", "/v1/admin/pools/pool-2", map[string]any{"kind": "orderbook"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, r = f.call(t, "POST", "/v1/items", map[string]any{"key": "lp2", "kind": adaptor.KindLiquidity, "pool_id": "pool-2", "liquidity": "1"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", r.Kind)

	code, r = f.call(t, "POST", "/v1/items", map[string]any{"key": "lp", "kind": adaptor.KindLiquidity, "pool_id": "pool-1", "liquidity": "500"})
	require.Equal(t, http.StatusOK, code, r.Error)

	code, r = f.call(t, "POST", "/v1/values/lp/update", nil)
	require.Equal(t, http.StatusOK, code, r.Error)
	val := decode[struct {
		Value math.Int `json:"value"`
	}](t, r).Value
	assert.Equal(t, units(100, 9).String(), val.String())

	freeze := fmt.Sprintf("/v1/admin/operators/%s/freeze", f.op.ID())
	code, r = f.call(t, "POST", freeze, map[string]any{"frozen": true})
	require.Equal(t, http.StatusOK, code, r.Error)
	code, r = f.call(t, "POST", "/v1/values/lp/update", nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "authorization", r.Kind)
	code, r = f.call(t, "POST", freeze, map[string]any{"frozen": false})
	require.Equal(t, http.StatusOK, code, r.Error)

	code, r = f.call(t, "POST", "/v1/admin/loss-tolerance", map[string]any{"bps": 50})
	require.Equal(t, http.StatusOK, code, r.Error)
	code, r = f.call(t, "POST", "/v1/admin/fees", map[string]any{"deposit_bps": 10, "withdraw_bps": 20})
	require.Equal(t, http.StatusOK, code, r.Error)
	p := f.v.Params()
	assert.Equal(t, uint64(50), p.LossToleranceBps)
	assert.Equal(t, uint64(10), p.DepositFeeBps)
	assert.Equal(t, uint64(20), p.WithdrawFeeBps)

	code, r = f.call(t, "POST", "/v1/admin/enabled", map[string]any{"enabled": false})
	require.Equal(t, http.StatusOK, code, r.Error)
	code, r = f.call(t, "POST", "/v1/deposits", map[string]any{"sender": "alice", "amount": "1"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "state", r.Kind)
	code, r = f.call(t, "POST", "/v1/admin/enabled", map[string]any{"enabled": true})
	require.Equal(t, http.StatusOK, code, r.Error)

	code, r = f.call(t, "POST", "/v1/admin/operations/current/abort", nil)
	assert.Equal(t, http.StatusConflict, code)

	code, r = f.call(t, "DELETE", "/v1/admin/items/lp", nil)
	require.Equal(t, http.StatusOK, code, r.Error)
	_, ok := f.v.Item("lp")
	assert.False(t, ok)
}

func TestBadRequests(t *testing.T) {
	f := newFixture(t)

	cases := map[string]struct {
		method, path string
		body         string
	}{
		"malformed json":   {"POST", "/v1/deposits", `{"sender":`},
		"unknown field":    {"POST", "/v1/deposits", `{"sender":"alice","amount":"1","tip":"1"}`},
		"bare number":      {"POST", "/v1/deposits", `{"sender":"alice","amount":1}`},
		"request id":       {"POST", "/v1/deposits/abc/execute", `{"max_shares":"1"}`},
		"receipt id":       {"POST", "/v1/receipts/abc/transfer", `{"sender":"alice","to":"bob"}`},
		"unknown kind":     {"POST", "/v1/items", `{"key":"x","kind":"nft"}`},
		"missing amount":   {"POST", "/v1/deposits", `{"sender":"alice"}`},
		"missing receipt":  {"POST", "/v1/withdrawals", `{"sender":"alice","shares":"1"}`},
		"negative balance": {"POST", "/v1/fees/retrieve", `{"amount":"-1"}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, bytes.NewBufferString(tc.body))
			req.Header.Set("Authorization", "Bearer "+testToken)
			rec := httptest.NewRecorder()
			f.router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			var out reply
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
			assert.False(t, out.Success)
			assert.Equal(t, "invalid_argument", out.Kind)
		})
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{errorsmod.Wrap(model.ErrUnauthorized, "x"), http.StatusForbidden},
		{errorsmod.Wrap(model.ErrInvalidArgument, "x"), http.StatusBadRequest},
		{errorsmod.Wrap(model.ErrNotFound, "x"), http.StatusNotFound},
		{errorsmod.Wrap(model.ErrInvalidStatus, "x"), http.StatusConflict},
		{errorsmod.Wrap(model.ErrSlippage, "x"), http.StatusConflict},
		{errorsmod.Wrap(model.ErrValuationIncomplete, "x"), http.StatusConflict},
		{errorsmod.Wrap(model.ErrStale, "x"), http.StatusServiceUnavailable},
		{errorsmod.Wrap(model.ErrInvariant, "x"), http.StatusUnprocessableEntity},
		{errorsmod.Wrap(model.ErrZeroPrice, "x"), http.StatusUnprocessableEntity},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), "%v", tc.err)
	}
}
