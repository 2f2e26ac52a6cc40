package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oddsworks/parimutuel/internal/domain"
	"github.com/oddsworks/parimutuel/internal/store/memory"
)

const (
	alice = "0x1111111111111111111111111111111111111111"
	bob   = "0x2222222222222222222222222222222222222222"
	carol = "0x3333333333333333333333333333333333333333"
	dave  = "0x4444444444444444444444444444444444444444"
	admin = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

	treasury = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"
	devFund  = "0xffffffffffffffffffffffffffffffffffffffff"

	testToken = "uusd"
	testFeed  = "btc-usd"
	testAsset = "ubtc"
)

type fakePrices struct {
	obs map[string]domain.Observation
}

func (f *fakePrices) Observe(ctx context.Context, feed string) (domain.Observation, error) {
	o, ok := f.obs[feed]
	if !ok {
		return domain.Observation{}, domain.ErrNotFound
	}
	return o, nil
}

func (f *fakePrices) Publish(ctx context.Context, feed string, obs domain.Observation) error {
	f.obs[feed] = obs
	return nil
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) step(d time.Duration) { c.now = c.now.Add(d) }

// harness wires an engine over the in-memory ledger with a controllable
// clock and price source, bootstrapped with one asset on a five-minute
// round cadence and a 3% fee split 70/30.
type harness struct {
	t      *testing.T
	eng    *Engine
	prices *fakePrices
	clock  *testClock
	ledger *memory.Ledger
}

func testParams() domain.Params {
	return domain.Params{
		MinStake:         10,
		FeeRateBps:       300,
		Token:            testToken,
		RoundDuration:    5 * time.Minute,
		MaxStaleness:     time.Minute,
		ExpPerUnitStaked: 1,
		ExpPerUnitWon:    2,
		FeeRecipients: []domain.FeeRecipient{
			{Account: mustAccount(treasury), RatioBps: 7000},
			{Account: mustAccount(devFund), RatioBps: 3000},
		},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	prices := &fakePrices{obs: make(map[string]domain.Observation)}
	ledger := memory.NewLedger()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	eng := New(ledger, prices, nil, clock, logger)
	err := eng.Bootstrap(context.Background(), BootstrapState{
		Params:     testParams(),
		Admin:      admin,
		Assets:     []string{testAsset},
		PriceFeeds: map[string]string{testAsset: testFeed},
	})
	require.NoError(t, err)

	return &harness{t: t, eng: eng, prices: prices, clock: clock, ledger: ledger}
}

func (h *harness) setPrice(price int64) {
	h.t.Helper()
	err := h.prices.Publish(context.Background(), testFeed, domain.Observation{
		Price:      price,
		ObservedAt: h.clock.now,
	})
	require.NoError(h.t, err)
}

func (h *harness) advance() {
	h.t.Helper()
	require.NoError(h.t, h.eng.Advance(context.Background()))
}

func (h *harness) stake(user string, roundID uint64, outcome string, amount uint64) {
	h.t.Helper()
	_, err := h.eng.PlaceStake(context.Background(), StakeRequest{
		User:    user,
		RoundID: roundID,
		Outcome: outcome,
		Amount:  amount,
		Token:   testToken,
	})
	require.NoError(h.t, err)
}

// startRound advances from a cold start to a bidding round and returns it.
func (h *harness) startRound() domain.Round {
	h.t.Helper()
	h.setPrice(50_000 * domain.PriceScale)
	h.advance()
	st, err := h.eng.Status(context.Background())
	require.NoError(h.t, err)
	require.NotNil(h.t, st.Bidding)
	return *st.Bidding
}

// finishRound drives the current bidding round through live to finished at
// the given close price, leaving the next round bidding.
func (h *harness) finishRound(openPrice, closePrice int64) {
	h.t.Helper()
	ctx := context.Background()

	st, err := h.eng.Status(ctx)
	require.NoError(h.t, err)
	require.NotNil(h.t, st.Bidding)

	h.clock.now = st.Bidding.OpenTime
	h.setPrice(openPrice)
	h.advance()

	st, err = h.eng.Status(ctx)
	require.NoError(h.t, err)
	require.NotNil(h.t, st.Live)

	h.clock.now = st.Live.CloseTime
	h.setPrice(closePrice)
	h.advance()
}

func (h *harness) pendingTransfers() []domain.TransferInstruction {
	h.t.Helper()
	var out []domain.TransferInstruction
	err := h.ledger.View(context.Background(), func(s domain.Stores) error {
		var err error
		out, err = s.Outbox.PendingTransfers(context.Background(), 100)
		return err
	})
	require.NoError(h.t, err)
	return out
}

func mustAccount(s string) string {
	a, err := domain.NormalizeAccount(s)
	if err != nil {
		panic(err)
	}
	return a
}
