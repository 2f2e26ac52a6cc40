package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrHalted          = errors.New("staking is halted")
	ErrNothingToClaim  = errors.New("nothing to claim")
	ErrWrongDenom      = errors.New("wrong token denomination")
	ErrBelowMinimum    = errors.New("stake below configured minimum")
	ErrOutcomeMismatch = errors.New("position already open on a different outcome")
	ErrUnknownOutcome  = errors.New("outcome key not declared for this round")
	ErrStakingClosed   = errors.New("round no longer accepts stakes")
	ErrNeedOneAdmin    = errors.New("at least one admin must remain")
	ErrEmptyAssetList  = errors.New("asset rotation list must not be empty")
	ErrBadFeeRatios    = errors.New("fee recipient ratios must sum to exactly one")
	ErrBadParams       = errors.New("invalid engine parameters")
	ErrOverflow        = errors.New("amount overflow")
	ErrInvalidAccount  = errors.New("invalid account address")
)

// NotCurrentRoundError reports a stake aimed at a round other than the one
// currently open for bidding.
type NotCurrentRoundError struct {
	Requested uint64
	Current   uint64
}

func (e *NotCurrentRoundError) Error() string {
	return fmt.Sprintf("tried to stake into round %d but round %d is open for bidding", e.Requested, e.Current)
}

// RoundNotResolvedError reports a claim against a round that has not finished.
type RoundNotResolvedError struct {
	RoundID uint64
}

func (e *RoundNotResolvedError) Error() string {
	return fmt.Sprintf("round %d is not resolved yet", e.RoundID)
}

// StalePriceError reports a price observation older than the configured
// staleness bound. The caller should retry once the feed catches up.
type StalePriceError struct {
	Asset      string
	ObservedAt time.Time
	Now        time.Time
	Max        time.Duration
}

func (e *StalePriceError) Error() string {
	return fmt.Sprintf("price for %s observed at %s is older than %s (now %s)",
		e.Asset, e.ObservedAt.Format(time.RFC3339), e.Max, e.Now.Format(time.RFC3339))
}

// AssetNotRegisteredError reports an asset without a price-feed mapping.
type AssetNotRegisteredError struct {
	Asset string
}

func (e *AssetNotRegisteredError) Error() string {
	return fmt.Sprintf("asset %s must be registered with a price feed first", e.Asset)
}
