package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsworks/parimutuel/internal/domain"
)

func TestPlaceStake_CreatesPosition(t *testing.T) {
	h := newHarness(t)
	round := h.startRound()

	pos, err := h.eng.PlaceStake(context.Background(), StakeRequest{
		User:    alice,
		RoundID: round.ID,
		Outcome: domain.SideBull,
		Amount:  100,
		Token:   testToken,
	})
	require.NoError(t, err)
	assert.Equal(t, round.ID, pos.RoundID)
	assert.Equal(t, mustAccount(alice), pos.User)
	assert.Equal(t, domain.SideBull, pos.Outcome)
	assert.Equal(t, uint64(100), pos.Amount)

	st, err := h.eng.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), st.Bidding.Pools[domain.SideBull])

	spent, err := h.eng.TotalSpent(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), spent)
}

func TestPlaceStake_AggregatesSameOutcome(t *testing.T) {
	h := newHarness(t)
	round := h.startRound()

	h.stake(alice, round.ID, domain.SideBull, 25)
	pos, err := h.eng.PlaceStake(context.Background(), StakeRequest{
		User:    alice,
		RoundID: round.ID,
		Outcome: domain.SideBull,
		Amount:  50,
		Token:   testToken,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(75), pos.Amount)

	st, err := h.eng.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(75), st.Bidding.Pools[domain.SideBull])
}

func TestPlaceStake_RejectsOutcomeSwitch(t *testing.T) {
	h := newHarness(t)
	round := h.startRound()

	h.stake(alice, round.ID, domain.SideBull, 25)
	_, err := h.eng.PlaceStake(context.Background(), StakeRequest{
		User:    alice,
		RoundID: round.ID,
		Outcome: domain.SideBear,
		Amount:  25,
		Token:   testToken,
	})
	assert.ErrorIs(t, err, domain.ErrOutcomeMismatch)

	// The failed stake left nothing behind.
	st, err := h.eng.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(25), st.Bidding.Pools[domain.SideBull])
	assert.Zero(t, st.Bidding.Pools[domain.SideBear])
}

func TestPlaceStake_RejectsStaleRoundID(t *testing.T) {
	h := newHarness(t)
	round := h.startRound()

	_, err := h.eng.PlaceStake(context.Background(), StakeRequest{
		User:    alice,
		RoundID: round.ID + 1,
		Outcome: domain.SideBull,
		Amount:  100,
		Token:   testToken,
	})
	var notCurrent *domain.NotCurrentRoundError
	require.ErrorAs(t, err, &notCurrent)
	assert.Equal(t, round.ID+1, notCurrent.Requested)
	assert.Equal(t, round.ID, notCurrent.Current)
}

func TestPlaceStake_RejectsWrongToken(t *testing.T) {
	h := newHarness(t)
	round := h.startRound()

	_, err := h.eng.PlaceStake(context.Background(), StakeRequest{
		User:    alice,
		RoundID: round.ID,
		Outcome: domain.SideBull,
		Amount:  100,
		Token:   "uatom",
	})
	assert.ErrorIs(t, err, domain.ErrWrongDenom)
}

func TestPlaceStake_RejectsBelowMinimum(t *testing.T) {
	h := newHarness(t)
	round := h.startRound()

	_, err := h.eng.PlaceStake(context.Background(), StakeRequest{
		User:    alice,
		RoundID: round.ID,
		Outcome: domain.SideBull,
		Amount:  9,
		Token:   testToken,
	})
	assert.ErrorIs(t, err, domain.ErrBelowMinimum)
}

func TestPlaceStake_RejectsAfterOpenTime(t *testing.T) {
	h := newHarness(t)
	round := h.startRound()
	h.clock.now = round.OpenTime.Add(time.Second)

	_, err := h.eng.PlaceStake(context.Background(), StakeRequest{
		User:    alice,
		RoundID: round.ID,
		Outcome: domain.SideBull,
		Amount:  100,
		Token:   testToken,
	})
	assert.ErrorIs(t, err, domain.ErrStakingClosed)
}

func TestPlaceStake_AllowedExactlyAtOpenTime(t *testing.T) {
	h := newHarness(t)
	round := h.startRound()
	h.clock.now = round.OpenTime

	_, err := h.eng.PlaceStake(context.Background(), StakeRequest{
		User:    alice,
		RoundID: round.ID,
		Outcome: domain.SideBull,
		Amount:  100,
		Token:   testToken,
	})
	assert.NoError(t, err)
}

func TestPlaceStake_RejectsUnknownOutcome(t *testing.T) {
	h := newHarness(t)
	round := h.startRound()

	_, err := h.eng.PlaceStake(context.Background(), StakeRequest{
		User:    alice,
		RoundID: round.ID,
		Outcome: "sideways",
		Amount:  100,
		Token:   testToken,
	})
	assert.ErrorIs(t, err, domain.ErrUnknownOutcome)
}

func TestPlaceStake_RejectsWhileHalted(t *testing.T) {
	h := newHarness(t)
	round := h.startRound()
	require.NoError(t, h.eng.Halt(context.Background(), admin))

	_, err := h.eng.PlaceStake(context.Background(), StakeRequest{
		User:    alice,
		RoundID: round.ID,
		Outcome: domain.SideBull,
		Amount:  100,
		Token:   testToken,
	})
	assert.ErrorIs(t, err, domain.ErrHalted)
}

func TestPlaceStake_RejectsBadAccount(t *testing.T) {
	h := newHarness(t)
	round := h.startRound()

	_, err := h.eng.PlaceStake(context.Background(), StakeRequest{
		User:    "not-an-address",
		RoundID: round.ID,
		Outcome: domain.SideBull,
		Amount:  100,
		Token:   testToken,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAccount)
}

func TestPlaceStake_AddressSpellingsShareOnePosition(t *testing.T) {
	h := newHarness(t)
	round := h.startRound()

	lower := "0xabcabcabcabcabcabcabcabcabcabcabcabcabca"
	upper := "0xABCABCABCABCABCABCABCABCABCABCABCABCABCA"
	h.stake(lower, round.ID, domain.SideBull, 25)

	// Same address, different casing: grows the same position.
	pos, err := h.eng.PlaceStake(context.Background(), StakeRequest{
		User:    upper,
		RoundID: round.ID,
		Outcome: domain.SideBull,
		Amount:  25,
		Token:   testToken,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(50), pos.Amount)
}

func TestCurrentPosition(t *testing.T) {
	h := newHarness(t)
	round := h.startRound()
	h.stake(alice, round.ID, domain.SideBear, 60)

	pos, err := h.eng.CurrentPosition(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, round.ID, pos.RoundID)
	assert.Equal(t, uint64(60), pos.Amount)

	_, err = h.eng.CurrentPosition(context.Background(), bob)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
