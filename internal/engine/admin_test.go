package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsworks/parimutuel/internal/domain"
)

func TestUpdateParams_RequiresAdmin(t *testing.T) {
	h := newHarness(t)
	err := h.eng.UpdateParams(context.Background(), alice, testParams())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestUpdateParams_RejectsBadRatios(t *testing.T) {
	h := newHarness(t)

	p := testParams()
	p.FeeRecipients = []domain.FeeRecipient{
		{Account: mustAccount(treasury), RatioBps: 7000},
		{Account: mustAccount(devFund), RatioBps: 2000}, // sums to 9000
	}
	err := h.eng.UpdateParams(context.Background(), admin, p)
	assert.ErrorIs(t, err, domain.ErrBadFeeRatios)
}

func TestUpdateParams_Applies(t *testing.T) {
	h := newHarness(t)

	p := testParams()
	p.MinStake = 500
	require.NoError(t, h.eng.UpdateParams(context.Background(), admin, p))

	got, err := h.eng.Params(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(500), got.MinStake)
}

func TestHaltAndResume(t *testing.T) {
	h := newHarness(t)
	round := h.startRound()

	require.NoError(t, h.eng.Halt(context.Background(), admin))
	st, err := h.eng.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Halted)

	require.NoError(t, h.eng.Resume(context.Background(), admin))
	h.stake(alice, round.ID, domain.SideBull, 100)
}

func TestHalt_RequiresAdmin(t *testing.T) {
	h := newHarness(t)
	err := h.eng.Halt(context.Background(), alice)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAddAdmin_GrantsRights(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.eng.AddAdmin(context.Background(), admin, bob))

	// The new admin can act.
	require.NoError(t, h.eng.Halt(context.Background(), bob))

	admins, err := h.eng.Admins(context.Background())
	require.NoError(t, err)
	assert.Len(t, admins, 2)

	// Idempotent.
	require.NoError(t, h.eng.AddAdmin(context.Background(), admin, bob))
	admins, err = h.eng.Admins(context.Background())
	require.NoError(t, err)
	assert.Len(t, admins, 2)
}

func TestRemoveAdmin_KeepsAtLeastOne(t *testing.T) {
	h := newHarness(t)

	err := h.eng.RemoveAdmin(context.Background(), admin, admin)
	assert.ErrorIs(t, err, domain.ErrNeedOneAdmin)

	require.NoError(t, h.eng.AddAdmin(context.Background(), admin, bob))
	require.NoError(t, h.eng.RemoveAdmin(context.Background(), bob, admin))

	// The removed admin lost its rights.
	err = h.eng.Halt(context.Background(), admin)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRemoveAdmin_UnknownAdmin(t *testing.T) {
	h := newHarness(t)
	err := h.eng.RemoveAdmin(context.Background(), admin, bob)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetAssets_RequiresRegisteredFeeds(t *testing.T) {
	h := newHarness(t)

	err := h.eng.SetAssets(context.Background(), admin, []string{"ueth"})
	var unregistered *domain.AssetNotRegisteredError
	require.ErrorAs(t, err, &unregistered)
	assert.Equal(t, "ueth", unregistered.Asset)

	require.NoError(t, h.eng.RegisterPriceFeed(context.Background(), admin, "ueth", "eth-usd"))
	require.NoError(t, h.eng.SetAssets(context.Background(), admin, []string{testAsset, "ueth"}))

	assets, err := h.eng.Assets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{testAsset, "ueth"}, assets)
}

func TestSetAssets_RejectsEmptyList(t *testing.T) {
	h := newHarness(t)
	err := h.eng.SetAssets(context.Background(), admin, nil)
	assert.ErrorIs(t, err, domain.ErrEmptyAssetList)
}

func TestAssetRotation(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.eng.RegisterPriceFeed(context.Background(), admin, "ueth", "eth-usd"))
	require.NoError(t, h.eng.SetAssets(context.Background(), admin, []string{testAsset, "ueth"}))

	h.setPrice(100 * domain.PriceScale)
	h.advance()

	st, err := h.eng.Status(context.Background())
	require.NoError(t, err)
	// Round 1 with two assets: 1 % 2 = 1 selects the second asset.
	assert.Equal(t, "ueth", st.Bidding.Asset)
}

func TestCancelRound_UnknownRound(t *testing.T) {
	h := newHarness(t)
	h.startRound()
	err := h.eng.CancelRound(context.Background(), admin, 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCancelRound_LiveRound(t *testing.T) {
	h := newHarness(t)
	round := h.startRound()
	h.stake(alice, round.ID, domain.SideBull, 100)

	h.clock.now = round.OpenTime
	h.setPrice(100 * domain.PriceScale)
	h.advance()

	require.NoError(t, h.eng.CancelRound(context.Background(), admin, round.ID))

	finished, err := h.eng.FinishedRound(context.Background(), round.ID)
	require.NoError(t, err)
	assert.True(t, finished.Cancelled)

	st, err := h.eng.Status(context.Background())
	require.NoError(t, err)
	assert.Nil(t, st.Live)
}

func TestBootstrap_IsIdempotent(t *testing.T) {
	h := newHarness(t)
	p := testParams()
	p.MinStake = 999

	// A second bootstrap must not clobber live state.
	err := h.eng.Bootstrap(context.Background(), BootstrapState{
		Params:     p,
		Admin:      bob,
		Assets:     []string{testAsset},
		PriceFeeds: map[string]string{testAsset: testFeed},
	})
	require.NoError(t, err)

	got, err := h.eng.Params(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), got.MinStake)

	admins, err := h.eng.Admins(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{mustAccount(admin)}, admins)
}
