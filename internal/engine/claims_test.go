package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsworks/parimutuel/internal/domain"
)

// seedFinishedRound stakes the given amounts into a fresh round and resolves
// it with a bull win (close above open).
func seedFinishedRound(h *harness, bulls, bears map[string]uint64) domain.Round {
	h.t.Helper()
	round := h.startRound()
	for user, amt := range bulls {
		h.stake(user, round.ID, domain.SideBull, amt)
	}
	for user, amt := range bears {
		h.stake(user, round.ID, domain.SideBear, amt)
	}
	h.finishRound(100*domain.PriceScale, 110*domain.PriceScale)
	return round
}

func TestClaimRound_WinnerPaysProRataMinusFee(t *testing.T) {
	h := newHarness(t)
	round := seedFinishedRound(h,
		map[string]uint64{alice: 30, bob: 270},
		map[string]uint64{carol: 100},
	)

	// Pool 400, winning side 300: alice's 30 entitles her to floor(400*30/300)
	// = 40 gross, 3% fee = 1, net 39.
	result, err := h.eng.ClaimRound(context.Background(), alice, round.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(39), result.Paid)
	assert.Equal(t, uint64(1), result.Fee)
	require.Len(t, result.Rounds, 1)
	assert.Equal(t, uint64(40), result.Rounds[0].Amount)
}

func TestClaimRound_DoubleClaimRejected(t *testing.T) {
	h := newHarness(t)
	round := seedFinishedRound(h,
		map[string]uint64{alice: 100},
		map[string]uint64{carol: 100},
	)

	_, err := h.eng.ClaimRound(context.Background(), alice, round.ID)
	require.NoError(t, err)

	_, err = h.eng.ClaimRound(context.Background(), alice, round.ID)
	assert.ErrorIs(t, err, domain.ErrNothingToClaim)
}

func TestClaimRound_UnresolvedRoundRejected(t *testing.T) {
	h := newHarness(t)
	round := h.startRound()
	h.stake(alice, round.ID, domain.SideBull, 100)

	_, err := h.eng.ClaimRound(context.Background(), alice, round.ID)
	var unresolved *domain.RoundNotResolvedError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, round.ID, unresolved.RoundID)
}

func TestClaimRound_LoserHasNothingAndKeepsNothing(t *testing.T) {
	h := newHarness(t)
	round := seedFinishedRound(h,
		map[string]uint64{alice: 100},
		map[string]uint64{carol: 100},
	)

	_, err := h.eng.ClaimRound(context.Background(), carol, round.ID)
	assert.ErrorIs(t, err, domain.ErrNothingToClaim)

	// The failed claim rolled back, so the loser's position survives and a
	// later cancellation could still refund it.
	positions, err := h.eng.RoundPositions(context.Background(), round.ID, "", 10)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, mustAccount(carol), positions[0].User)
}

func TestClaimRound_TieRefundsWithoutFee(t *testing.T) {
	h := newHarness(t)
	round := h.startRound()
	h.stake(alice, round.ID, domain.SideBull, 100)
	h.stake(carol, round.ID, domain.SideBear, 40)
	h.finishRound(100*domain.PriceScale, 100*domain.PriceScale)

	result, err := h.eng.ClaimRound(context.Background(), alice, round.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), result.Paid)
	assert.Zero(t, result.Fee)

	result, err = h.eng.ClaimRound(context.Background(), carol, round.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), result.Paid)
	assert.Zero(t, result.Fee)
}

func TestClaimRound_OneSidedPoolRefundsWithoutFee(t *testing.T) {
	h := newHarness(t)
	round := h.startRound()
	h.stake(alice, round.ID, domain.SideBull, 100)
	h.finishRound(100*domain.PriceScale, 110*domain.PriceScale)

	// Alice "won" but nobody staked against her: plain refund, no fee.
	result, err := h.eng.ClaimRound(context.Background(), alice, round.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), result.Paid)
	assert.Zero(t, result.Fee)
}

func TestClaimRound_CancelledRoundRefundsEveryone(t *testing.T) {
	h := newHarness(t)
	round := h.startRound()
	h.stake(alice, round.ID, domain.SideBull, 100)
	h.stake(carol, round.ID, domain.SideBear, 40)
	require.NoError(t, h.eng.CancelRound(context.Background(), admin, round.ID))

	result, err := h.eng.ClaimRound(context.Background(), alice, round.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), result.Paid)
	assert.Zero(t, result.Fee)

	result, err = h.eng.ClaimRound(context.Background(), carol, round.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), result.Paid)
	assert.Zero(t, result.Fee)
}

func TestClaimAll_AggregatesAcrossRounds(t *testing.T) {
	h := newHarness(t)

	// Round 1: alice wins 40 gross (pool 400, her 30 of 300).
	seedFinishedRound(h,
		map[string]uint64{alice: 30, bob: 270},
		map[string]uint64{carol: 100},
	)

	// Round 3 is now bidding (round 2 went live when round 1 closed).
	st, err := h.eng.Status(context.Background())
	require.NoError(t, err)
	h.stake(alice, st.Bidding.ID, domain.SideBull, 50)

	// Alice claims: round 1 is resolved, the open position is skipped.
	result, err := h.eng.ClaimAll(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(39), result.Paid)
	assert.Equal(t, uint64(1), result.Fee)
	require.Len(t, result.Rounds, 1)

	// The open position is untouched.
	positions, err := h.eng.UserPositions(context.Background(), alice, nil, 10)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, st.Bidding.ID, positions[0].RoundID)
}

func TestClaimAll_NothingResolvedRejected(t *testing.T) {
	h := newHarness(t)
	round := h.startRound()
	h.stake(alice, round.ID, domain.SideBull, 100)

	_, err := h.eng.ClaimAll(context.Background(), alice)
	assert.ErrorIs(t, err, domain.ErrNothingToClaim)
}

func TestClaimAll_WritesClaimRecords(t *testing.T) {
	h := newHarness(t)
	round := seedFinishedRound(h,
		map[string]uint64{alice: 100},
		map[string]uint64{carol: 100},
	)

	_, err := h.eng.ClaimAll(context.Background(), alice)
	require.NoError(t, err)

	records, err := h.eng.ClaimsByUser(context.Background(), alice, nil, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, round.ID, records[0].RoundID)
	assert.Equal(t, uint64(200), records[0].Amount) // gross, pre-fee

	byRound, err := h.eng.ClaimsByRound(context.Background(), round.ID, "", 10)
	require.NoError(t, err)
	require.Len(t, byRound, 1)
}

func TestClaim_EmitsFeeTransfers(t *testing.T) {
	h := newHarness(t)
	round := seedFinishedRound(h,
		map[string]uint64{alice: 3000},
		map[string]uint64{carol: 1000},
	)

	// Gross 4000, fee 3% = 120, split 70/30 = 84 + 36, net 3880.
	result, err := h.eng.ClaimRound(context.Background(), alice, round.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(3880), result.Paid)
	assert.Equal(t, uint64(120), result.Fee)

	byRecipient := make(map[string]uint64)
	for _, tr := range h.pendingTransfers() {
		byRecipient[tr.Recipient] += tr.Amount
	}
	assert.Equal(t, uint64(84), byRecipient[mustAccount(treasury)])
	assert.Equal(t, uint64(36), byRecipient[mustAccount(devFund)])
	assert.Equal(t, uint64(3880), byRecipient[mustAccount(alice)])
}

func TestPendingReward_MatchesGrossClaim(t *testing.T) {
	h := newHarness(t)
	round := seedFinishedRound(h,
		map[string]uint64{alice: 30, bob: 270},
		map[string]uint64{carol: 100},
	)

	pending, err := h.eng.PendingReward(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), pending)

	perRound, err := h.eng.PendingRewardRound(context.Background(), alice, round.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), perRound)

	// The dry run deleted nothing.
	result, err := h.eng.ClaimRound(context.Background(), alice, round.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(39), result.Paid)

	pending, err = h.eng.PendingReward(context.Background(), alice)
	require.NoError(t, err)
	assert.Zero(t, pending)
}
