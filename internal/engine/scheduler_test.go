package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsworks/parimutuel/internal/domain"
)

func TestAdvance_ColdStartCreatesBidding(t *testing.T) {
	h := newHarness(t)
	h.advance()

	st, err := h.eng.Status(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st.Bidding)
	assert.Nil(t, st.Live)

	assert.Equal(t, uint64(1), st.Bidding.ID)
	assert.Equal(t, testAsset, st.Bidding.Asset)
	assert.Equal(t, domain.PhaseBidding, st.Bidding.Phase)
	assert.Equal(t, h.clock.now.Add(5*time.Minute), st.Bidding.OpenTime)
	assert.Equal(t, h.clock.now.Add(10*time.Minute), st.Bidding.CloseTime)
	assert.Zero(t, st.Bidding.Pools[domain.SideBull])
	assert.Zero(t, st.Bidding.Pools[domain.SideBear])
}

func TestAdvance_RedundantCallIsNoop(t *testing.T) {
	h := newHarness(t)
	h.advance()
	h.advance()

	st, err := h.eng.Status(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st.Bidding)
	assert.Equal(t, uint64(1), st.Bidding.ID)
	assert.Nil(t, st.Live)
}

func TestAdvance_NothingHappensBeforeOpenTime(t *testing.T) {
	h := newHarness(t)
	h.advance()
	h.clock.step(4 * time.Minute)
	h.advance()

	st, err := h.eng.Status(context.Background())
	require.NoError(t, err)
	assert.Nil(t, st.Live)
	assert.Equal(t, uint64(1), st.Bidding.ID)
}

func TestAdvance_PromotesBiddingAndChainsNext(t *testing.T) {
	h := newHarness(t)
	h.advance()

	h.clock.step(5 * time.Minute)
	openPrice := int64(50_000 * domain.PriceScale)
	h.setPrice(openPrice)
	h.advance()

	st, err := h.eng.Status(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st.Live)
	require.NotNil(t, st.Bidding)

	assert.Equal(t, uint64(1), st.Live.ID)
	assert.Equal(t, domain.PhaseLive, st.Live.Phase)
	require.NotNil(t, st.Live.OpenPrice)
	assert.Equal(t, openPrice, *st.Live.OpenPrice)
	assert.Equal(t, h.clock.now, st.Live.OpenTime)
	assert.Equal(t, h.clock.now.Add(5*time.Minute), st.Live.CloseTime)

	// The next bidding round chains exactly onto the live round's close.
	assert.Equal(t, uint64(2), st.Bidding.ID)
	assert.Equal(t, st.Live.CloseTime, st.Bidding.OpenTime)
}

func TestAdvance_ClosesLiveAndResolvesBullWinner(t *testing.T) {
	h := newHarness(t)
	h.startRound()
	h.finishRound(100*domain.PriceScale, 110*domain.PriceScale)

	finished, err := h.eng.FinishedRound(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseFinished, finished.Phase)
	require.NotNil(t, finished.ClosePrice)
	assert.Equal(t, int64(110*domain.PriceScale), *finished.ClosePrice)
	require.NotNil(t, finished.Winner)
	assert.Equal(t, domain.SideBull, *finished.Winner)
}

func TestAdvance_ClosesLiveAndResolvesBearWinner(t *testing.T) {
	h := newHarness(t)
	h.startRound()
	h.finishRound(100*domain.PriceScale, 90*domain.PriceScale)

	finished, err := h.eng.FinishedRound(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, finished.Winner)
	assert.Equal(t, domain.SideBear, *finished.Winner)
}

func TestAdvance_EqualPricesIsTie(t *testing.T) {
	h := newHarness(t)
	h.startRound()
	h.finishRound(100*domain.PriceScale, 100*domain.PriceScale)

	finished, err := h.eng.FinishedRound(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, finished.Winner)
	assert.False(t, finished.Cancelled)
}

func TestAdvance_IDsAreSequential(t *testing.T) {
	h := newHarness(t)
	h.startRound()
	h.finishRound(100*domain.PriceScale, 110*domain.PriceScale)

	// Closing round 1 promoted round 2 and created round 3 in one call.
	st, err := h.eng.Status(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st.Live)
	require.NotNil(t, st.Bidding)
	assert.Equal(t, uint64(2), st.Live.ID)
	assert.Equal(t, uint64(3), st.Bidding.ID)
}

func TestAdvance_StalePriceFailsWholeAdvance(t *testing.T) {
	h := newHarness(t)
	h.startRound()

	st, err := h.eng.Status(context.Background())
	require.NoError(t, err)
	h.clock.now = st.Bidding.OpenTime
	h.setPrice(100 * domain.PriceScale)
	h.clock.step(2 * time.Minute) // observation now older than MaxStaleness

	err = h.eng.Advance(context.Background())
	var stale *domain.StalePriceError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, testAsset, stale.Asset)

	// Nothing moved: round 1 still bidding, no live round.
	st, err = h.eng.Status(context.Background())
	require.NoError(t, err)
	assert.Nil(t, st.Live)
	require.NotNil(t, st.Bidding)
	assert.Equal(t, uint64(1), st.Bidding.ID)
}

func TestAdvance_RejectedWhileHalted(t *testing.T) {
	h := newHarness(t)
	h.startRound()
	require.NoError(t, h.eng.Halt(context.Background(), admin))

	err := h.eng.Advance(context.Background())
	assert.ErrorIs(t, err, domain.ErrHalted)
}

func TestAdvance_PoolsCarryIntoLive(t *testing.T) {
	h := newHarness(t)
	round := h.startRound()
	h.stake(alice, round.ID, domain.SideBull, 100)
	h.stake(bob, round.ID, domain.SideBear, 40)

	h.clock.now = round.OpenTime
	h.setPrice(100 * domain.PriceScale)
	h.advance()

	st, err := h.eng.Status(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st.Live)
	assert.Equal(t, uint64(100), st.Live.Pools[domain.SideBull])
	assert.Equal(t, uint64(40), st.Live.Pools[domain.SideBear])
}
