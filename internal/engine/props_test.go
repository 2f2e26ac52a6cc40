package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsworks/parimutuel/internal/domain"
)

func threeWayDraft(h *harness) PropDraft {
	return PropDraft{
		Topic:       "Champions League winner",
		Description: "Which club lifts the trophy this season?",
		EndsAt:      h.clock.now.Add(48 * time.Hour),
		Options: []domain.PropOption{
			{Key: "rma", Title: "Real Madrid"},
			{Key: "mci", Title: "Manchester City"},
			{Key: "bay", Title: "Bayern"},
		},
	}
}

func (h *harness) createProp() domain.Proposition {
	h.t.Helper()
	prop, err := h.eng.CreateProposition(context.Background(), admin, threeWayDraft(h))
	require.NoError(h.t, err)
	return prop
}

func (h *harness) propStake(user string, propID uint64, option string, amount uint64) {
	h.t.Helper()
	_, err := h.eng.PlacePropStake(context.Background(), PropStakeRequest{
		User:   user,
		PropID: propID,
		Option: option,
		Amount: amount,
		Token:  testToken,
	})
	require.NoError(h.t, err)
}

func TestCreateProposition_SeedsAllPools(t *testing.T) {
	h := newHarness(t)
	prop := h.createProp()

	assert.Equal(t, uint64(1), prop.ID)
	require.Len(t, prop.Pools, 3)
	for _, opt := range prop.Options {
		amt, ok := prop.Pools[opt.Key]
		assert.True(t, ok)
		assert.Zero(t, amt)
	}
	assert.Zero(t, prop.NumPlayers)
	assert.Nil(t, prop.Result)
}

func TestCreateProposition_RequiresAdmin(t *testing.T) {
	h := newHarness(t)
	_, err := h.eng.CreateProposition(context.Background(), alice, threeWayDraft(h))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestCreateProposition_RejectsBadDrafts(t *testing.T) {
	h := newHarness(t)

	d := threeWayDraft(h)
	d.Options = d.Options[:1]
	_, err := h.eng.CreateProposition(context.Background(), admin, d)
	assert.ErrorIs(t, err, domain.ErrBadParams, "one option is not a market")

	d = threeWayDraft(h)
	d.Options[2].Key = d.Options[0].Key
	_, err = h.eng.CreateProposition(context.Background(), admin, d)
	assert.ErrorIs(t, err, domain.ErrBadParams, "duplicate option keys")

	d = threeWayDraft(h)
	d.EndsAt = h.clock.now.Add(-time.Hour)
	_, err = h.eng.CreateProposition(context.Background(), admin, d)
	assert.ErrorIs(t, err, domain.ErrBadParams, "deadline in the past")

	d = threeWayDraft(h)
	d.Topic = ""
	_, err = h.eng.CreateProposition(context.Background(), admin, d)
	assert.ErrorIs(t, err, domain.ErrBadParams, "empty topic")
}

func TestPlacePropStake_TracksPoolsAndPlayers(t *testing.T) {
	h := newHarness(t)
	prop := h.createProp()

	h.propStake(alice, prop.ID, "rma", 100)
	h.propStake(bob, prop.ID, "mci", 50)
	h.propStake(alice, prop.ID, "rma", 25) // growth, not a new player

	got, err := h.eng.Proposition(context.Background(), prop.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(125), got.Pools["rma"])
	assert.Equal(t, uint64(50), got.Pools["mci"])
	assert.Zero(t, got.Pools["bay"])
	assert.Equal(t, uint64(2), got.NumPlayers)
}

func TestPlacePropStake_RejectsUndeclaredOption(t *testing.T) {
	h := newHarness(t)
	prop := h.createProp()

	_, err := h.eng.PlacePropStake(context.Background(), PropStakeRequest{
		User: alice, PropID: prop.ID, Option: "psg", Amount: 100, Token: testToken,
	})
	assert.ErrorIs(t, err, domain.ErrUnknownOutcome)
}

func TestPlacePropStake_RejectsAfterDeadline(t *testing.T) {
	h := newHarness(t)
	prop := h.createProp()
	h.clock.now = prop.EndsAt.Add(time.Second)

	_, err := h.eng.PlacePropStake(context.Background(), PropStakeRequest{
		User: alice, PropID: prop.ID, Option: "rma", Amount: 100, Token: testToken,
	})
	assert.ErrorIs(t, err, domain.ErrStakingClosed)
}

func TestPlacePropStake_RejectsOptionSwitch(t *testing.T) {
	h := newHarness(t)
	prop := h.createProp()
	h.propStake(alice, prop.ID, "rma", 100)

	_, err := h.eng.PlacePropStake(context.Background(), PropStakeRequest{
		User: alice, PropID: prop.ID, Option: "mci", Amount: 100, Token: testToken,
	})
	assert.ErrorIs(t, err, domain.ErrOutcomeMismatch)
}

func TestModifyProposition_EditsOpenOnly(t *testing.T) {
	h := newHarness(t)
	prop := h.createProp()

	d := threeWayDraft(h)
	d.Topic = "UCL winner 2026"
	got, err := h.eng.ModifyProposition(context.Background(), admin, prop.ID, d)
	require.NoError(t, err)
	assert.Equal(t, "UCL winner 2026", got.Topic)

	require.NoError(t, h.eng.CompleteProposition(context.Background(), admin, prop.ID, "rma"))
	_, err = h.eng.ModifyProposition(context.Background(), admin, prop.ID, d)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCompleteProposition_RequiresDeclaredResult(t *testing.T) {
	h := newHarness(t)
	prop := h.createProp()

	err := h.eng.CompleteProposition(context.Background(), admin, prop.ID, "psg")
	assert.ErrorIs(t, err, domain.ErrUnknownOutcome)
}

func TestCompleteProposition_MovesToFinished(t *testing.T) {
	h := newHarness(t)
	prop := h.createProp()
	require.NoError(t, h.eng.CompleteProposition(context.Background(), admin, prop.ID, "rma"))

	open, err := h.eng.OpenPropositions(context.Background(), nil, 10)
	require.NoError(t, err)
	assert.Empty(t, open)

	got, err := h.eng.Proposition(context.Background(), prop.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Result)
	assert.Equal(t, "rma", *got.Result)
	assert.True(t, got.Resolved())
}

func TestPropClaim_WinnerPaysProRataMinusFee(t *testing.T) {
	h := newHarness(t)
	prop := h.createProp()

	h.propStake(alice, prop.ID, "rma", 1000)
	h.propStake(bob, prop.ID, "rma", 3000)
	h.propStake(carol, prop.ID, "mci", 2000)
	h.propStake(dave, prop.ID, "bay", 2000)
	require.NoError(t, h.eng.CompleteProposition(context.Background(), admin, prop.ID, "rma"))

	// Pool 8000, winning side 4000: alice's 1000 pays floor(8000*1000/4000)
	// = 2000 gross, 3% fee = 60, net 1940.
	result, err := h.eng.PropClaimRound(context.Background(), alice, prop.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1940), result.Paid)
	assert.Equal(t, uint64(60), result.Fee)

	_, err = h.eng.PropClaimRound(context.Background(), alice, prop.ID)
	assert.ErrorIs(t, err, domain.ErrNothingToClaim)
}

func TestPropClaim_CancelledRefundsEveryone(t *testing.T) {
	h := newHarness(t)
	prop := h.createProp()
	h.propStake(alice, prop.ID, "rma", 500)
	h.propStake(carol, prop.ID, "mci", 700)
	require.NoError(t, h.eng.CancelProposition(context.Background(), admin, prop.ID))

	result, err := h.eng.PropClaimAll(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), result.Paid)
	assert.Zero(t, result.Fee)

	result, err = h.eng.PropClaimAll(context.Background(), carol)
	require.NoError(t, err)
	assert.Equal(t, uint64(700), result.Paid)
	assert.Zero(t, result.Fee)
}

func TestPropClaim_UnresolvedRejected(t *testing.T) {
	h := newHarness(t)
	prop := h.createProp()
	h.propStake(alice, prop.ID, "rma", 500)

	_, err := h.eng.PropClaimRound(context.Background(), alice, prop.ID)
	var unresolved *domain.RoundNotResolvedError
	assert.ErrorAs(t, err, &unresolved)
}

func TestPropPendingReward(t *testing.T) {
	h := newHarness(t)
	prop := h.createProp()
	h.propStake(alice, prop.ID, "rma", 1000)
	h.propStake(carol, prop.ID, "mci", 1000)

	pending, err := h.eng.PropPendingReward(context.Background(), alice)
	require.NoError(t, err)
	assert.Zero(t, pending, "open proposition contributes nothing")

	require.NoError(t, h.eng.CompleteProposition(context.Background(), admin, prop.ID, "rma"))

	pending, err = h.eng.PropPendingReward(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), pending)
}

func TestPropSpend_CountsTowardTotalSpent(t *testing.T) {
	h := newHarness(t)
	round := h.startRound()
	prop := h.createProp()

	h.stake(alice, round.ID, domain.SideBull, 100)
	h.propStake(alice, prop.ID, "rma", 250)

	total, err := h.eng.TotalSpent(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(350), total)
}
