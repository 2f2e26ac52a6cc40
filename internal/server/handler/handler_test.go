package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsworks/parimutuel/internal/domain"
	"github.com/oddsworks/parimutuel/internal/engine"
	"github.com/oddsworks/parimutuel/internal/store/memory"
)

const (
	testAdmin = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testUser  = "0x1111111111111111111111111111111111111111"
	testToken = "uusd"
)

type stubPrices struct {
	obs map[string]domain.Observation
}

func (s *stubPrices) Observe(ctx context.Context, feed string) (domain.Observation, error) {
	obs, ok := s.obs[feed]
	if !ok {
		return domain.Observation{}, domain.ErrNotFound
	}
	return obs, nil
}

func (s *stubPrices) Publish(ctx context.Context, feed string, obs domain.Observation) error {
	s.obs[feed] = obs
	return nil
}

type fixture struct {
	eng    *engine.Engine
	prices *stubPrices
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		prices: &stubPrices{obs: make(map[string]domain.Observation)},
		now:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := domain.ClockFunc(func() time.Time { return f.now })
	f.eng = engine.New(memory.NewLedger(), f.prices, nil, clock, logger)

	err := f.eng.Bootstrap(context.Background(), engine.BootstrapState{
		Params: domain.Params{
			MinStake:      10,
			FeeRateBps:    300,
			Token:         testToken,
			RoundDuration: 5 * time.Minute,
			MaxStaleness:  time.Minute,
		},
		Admin:      testAdmin,
		Assets:     []string{"ubtc"},
		PriceFeeds: map[string]string{"ubtc": "btc-usd"},
	})
	require.NoError(t, err)
	require.NoError(t, f.eng.Advance(context.Background()))
	return f
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func doJSON(t *testing.T, h http.HandlerFunc, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPlaceStake_CreatesPosition(t *testing.T) {
	f := newFixture(t)
	h := NewStakeHandler(f.eng, testLogger())

	rec := doJSON(t, h.PlaceStake, http.MethodPost, "/api/stakes", map[string]any{
		"user":     testUser,
		"round_id": 1,
		"outcome":  "bull",
		"amount":   100,
		"token":    testToken,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var pos domain.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pos))
	assert.Equal(t, uint64(100), pos.Amount)
	assert.Equal(t, domain.SideBull, pos.Outcome)
}

func TestPlaceStake_RejectsBadPayload(t *testing.T) {
	f := newFixture(t)
	h := NewStakeHandler(f.eng, testLogger())

	rec := doJSON(t, h.PlaceStake, http.MethodPost, "/api/stakes", map[string]any{
		"user":     testUser,
		"round_id": 1,
		"outcome":  "sideways",
		"amount":   100,
		"token":    testToken,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceStake_WrongTokenIsBadRequest(t *testing.T) {
	f := newFixture(t)
	h := NewStakeHandler(f.eng, testLogger())

	rec := doJSON(t, h.PlaceStake, http.MethodPost, "/api/stakes", map[string]any{
		"user":     testUser,
		"round_id": 1,
		"outcome":  "bear",
		"amount":   100,
		"token":    "uatom",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClaim_NothingToClaimIsConflict(t *testing.T) {
	f := newFixture(t)
	h := NewStakeHandler(f.eng, testLogger())

	rec := doJSON(t, h.Claim, http.MethodPost, "/api/claims", map[string]any{
		"user": testUser,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetStatus_ReturnsBiddingRound(t *testing.T) {
	f := newFixture(t)
	h := NewStatusHandler(f.eng, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	h.GetStatus(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var st engine.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.NotNil(t, st.Bidding)
	assert.Equal(t, uint64(1), st.Bidding.ID)
	assert.False(t, st.Halted)
}

func TestGetRound_UnknownIsNotFound(t *testing.T) {
	f := newFixture(t)
	h := NewRoundHandler(f.eng, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/rounds/99", nil)
	req.SetPathValue("id", "99")
	rec := httptest.NewRecorder()
	h.GetRound(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdvance_StalePriceIsServiceUnavailable(t *testing.T) {
	f := newFixture(t)
	h := NewRoundHandler(f.eng, testLogger())

	// Jump past the open time with only an outdated observation: promotion
	// needs a fresh price.
	require.NoError(t, f.prices.Publish(context.Background(), "btc-usd", domain.Observation{
		Price:      50_000 * domain.PriceScale,
		ObservedAt: f.now,
	}))
	f.now = f.now.Add(6 * time.Minute)

	rec := doJSON(t, h.Advance, http.MethodPost, "/api/rounds/advance", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUpdateParams_BadRatiosRejected(t *testing.T) {
	f := newFixture(t)
	h := NewAdminHandler(f.eng, nil, nil, testLogger())

	rec := doJSON(t, h.UpdateParams, http.MethodPut, "/api/admin/params", map[string]any{
		"actor":              testAdmin,
		"token":              testToken,
		"round_duration_sec": 300,
		"max_staleness_sec":  60,
		"fee_recipients": []map[string]any{
			{"account": testAdmin, "ratio_bps": 9000},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateParams_NonAdminForbidden(t *testing.T) {
	f := newFixture(t)
	h := NewAdminHandler(f.eng, nil, nil, testLogger())

	rec := doJSON(t, h.UpdateParams, http.MethodPut, "/api/admin/params", map[string]any{
		"actor":              testUser,
		"token":              testToken,
		"round_duration_sec": 300,
		"max_staleness_sec":  60,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHaltThenStakeIsConflict(t *testing.T) {
	f := newFixture(t)
	admin := NewAdminHandler(f.eng, nil, nil, testLogger())
	stakes := NewStakeHandler(f.eng, testLogger())

	rec := doJSON(t, admin.Halt, http.MethodPost, "/api/admin/halt", map[string]any{"actor": testAdmin})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, stakes.PlaceStake, http.MethodPost, "/api/stakes", map[string]any{
		"user":     testUser,
		"round_id": 1,
		"outcome":  "bull",
		"amount":   100,
		"token":    testToken,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateProp_RequiresTwoOptions(t *testing.T) {
	f := newFixture(t)
	h := NewPropHandler(f.eng, testLogger())

	rec := doJSON(t, h.CreateProp, http.MethodPost, "/api/props", map[string]any{
		"actor":   testAdmin,
		"topic":   "league winner",
		"ends_at": f.now.Add(time.Hour).Format(time.RFC3339),
		"options": []map[string]any{{"key": "rma"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPropLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)
	h := NewPropHandler(f.eng, testLogger())

	rec := doJSON(t, h.CreateProp, http.MethodPost, "/api/props", map[string]any{
		"actor":   testAdmin,
		"topic":   "league winner",
		"ends_at": f.now.Add(time.Hour).Format(time.RFC3339),
		"options": []map[string]any{{"key": "rma", "title": "Real Madrid"}, {"key": "mci", "title": "Man City"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var prop domain.Proposition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prop))
	assert.Equal(t, uint64(1), prop.ID)

	rec = doJSON(t, h.PlaceStake, http.MethodPost, "/api/props/stakes", map[string]any{
		"user":    testUser,
		"prop_id": 1,
		"option":  "rma",
		"amount":  200,
		"token":   testToken,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h.PlaceStake, http.MethodPost, "/api/props/stakes", map[string]any{
		"user":    "0x2222222222222222222222222222222222222222",
		"prop_id": 1,
		"option":  "mci",
		"amount":  100,
		"token":   testToken,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	creq := httptest.NewRequest(http.MethodPost, "/api/props/1/complete", bytes.NewBufferString(`{"actor":"`+testAdmin+`","result":"rma"}`))
	creq.SetPathValue("id", "1")
	crec := httptest.NewRecorder()
	h.CompleteProp(crec, creq)
	require.Equal(t, http.StatusOK, crec.Code)

	rec = doJSON(t, h.Claim, http.MethodPost, "/api/props/claims", map[string]any{
		"user": testUser,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result engine.ClaimResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	// Sole winner takes the whole 300 pool, less the 3% fee.
	assert.Equal(t, uint64(291), result.Paid)
	assert.Equal(t, uint64(9), result.Fee)
}

func TestListProps_TopicFilter(t *testing.T) {
	f := newFixture(t)
	h := NewPropHandler(f.eng, testLogger())

	for _, topic := range []string{"league winner", "cup winner", "relegation"} {
		rec := doJSON(t, h.CreateProp, http.MethodPost, "/api/props", map[string]any{
			"actor":   testAdmin,
			"topic":   topic,
			"ends_at": f.now.Add(time.Hour).Format(time.RFC3339),
			"options": []map[string]any{{"key": "yes"}, {"key": "no"}},
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/props?topic=winner", nil)
	rec := httptest.NewRecorder()
	h.ListProps(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Propositions []domain.Proposition `json:"propositions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Propositions, 2)
}

func TestGetRewards_EmptyAccount(t *testing.T) {
	f := newFixture(t)
	h := NewAccountHandler(f.eng, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/accounts/"+testUser+"/rewards", nil)
	req.SetPathValue("address", testUser)
	rec := httptest.NewRecorder()
	h.GetRewards(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Pending     uint64               `json:"pending"`
		PropPending uint64               `json:"prop_pending"`
		Rounds      []domain.RoundPayout `json:"rounds"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Zero(t, body.Pending)
	assert.Zero(t, body.PropPending)
	assert.Empty(t, body.Rounds)
}
