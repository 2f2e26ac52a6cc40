package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validParams() Params {
	return Params{
		MinStake:      1,
		FeeRateBps:    300,
		Token:         "uusd",
		RoundDuration: 5 * time.Minute,
		MaxStaleness:  time.Minute,
		FeeRecipients: []FeeRecipient{
			{Account: "0x1", RatioBps: 10_000},
		},
	}
}

func TestParamsValidate_OK(t *testing.T) {
	p := validParams()
	assert.NoError(t, p.Validate())
}

func TestParamsValidate_NoRecipientsIsFine(t *testing.T) {
	p := validParams()
	p.FeeRecipients = nil
	assert.NoError(t, p.Validate())
}

func TestParamsValidate_EmptyToken(t *testing.T) {
	p := validParams()
	p.Token = ""
	assert.ErrorIs(t, p.Validate(), ErrBadParams)
}

func TestParamsValidate_BadDurations(t *testing.T) {
	p := validParams()
	p.RoundDuration = 0
	assert.ErrorIs(t, p.Validate(), ErrBadParams)

	p = validParams()
	p.MaxStaleness = -time.Second
	assert.ErrorIs(t, p.Validate(), ErrBadParams)
}

func TestParamsValidate_RateAboveDenom(t *testing.T) {
	p := validParams()
	p.FeeRateBps = RatioDenom + 1
	assert.ErrorIs(t, p.Validate(), ErrBadParams)
}

func TestParamsValidate_RatiosMustSumToOne(t *testing.T) {
	p := validParams()
	p.FeeRecipients = []FeeRecipient{
		{Account: "0x1", RatioBps: 5000},
		{Account: "0x2", RatioBps: 4999},
	}
	assert.ErrorIs(t, p.Validate(), ErrBadFeeRatios)
}

func TestCheckedAdd(t *testing.T) {
	sum, err := CheckedAdd(1, 2)
	assert.NoError(t, err)
	assert.Equal(t, uint64(3), sum)

	_, err = CheckedAdd(^uint64(0), 1)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultPageLimit, ClampLimit(0))
	assert.Equal(t, DefaultPageLimit, ClampLimit(-5))
	assert.Equal(t, 15, ClampLimit(15))
	assert.Equal(t, MaxPageLimit, ClampLimit(1000))
}

func TestNormalizeAccount(t *testing.T) {
	a, err := NormalizeAccount("0xde709f2102306220921060314715629080e2fb77")
	assert.NoError(t, err)
	b, err2 := NormalizeAccount("0xDE709F2102306220921060314715629080E2FB77")
	assert.NoError(t, err2)
	assert.Equal(t, a, b)

	_, err = NormalizeAccount("nope")
	assert.ErrorIs(t, err, ErrInvalidAccount)
}
