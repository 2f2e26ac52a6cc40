package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/oddsworks/parimutuel/internal/domain"
	"github.com/oddsworks/parimutuel/internal/engine"
)

// StakeService defines the staking and claiming operations of the binary
// round book.
type StakeService interface {
	PlaceStake(ctx context.Context, req engine.StakeRequest) (domain.Position, error)
	ClaimAll(ctx context.Context, user string) (engine.ClaimResult, error)
	ClaimRound(ctx context.Context, user string, roundID uint64) (engine.ClaimResult, error)
}

// StakeHandler serves the stake and claim endpoints of the round book.
type StakeHandler struct {
	svc    StakeService
	logger *slog.Logger
}

// NewStakeHandler creates a StakeHandler.
func NewStakeHandler(svc StakeService, logger *slog.Logger) *StakeHandler {
	return &StakeHandler{
		svc:    svc,
		logger: logHandler(logger, "stake"),
	}
}

type stakeRequest struct {
	User    string `json:"user" validate:"required"`
	RoundID uint64 `json:"round_id" validate:"required"`
	Outcome string `json:"outcome" validate:"required,oneof=bull bear"`
	Amount  uint64 `json:"amount" validate:"required,gt=0"`
	Token   string `json:"token" validate:"required"`
}

// PlaceStake stakes on one side of the round currently open for bidding.
// POST /api/stakes
func (h *StakeHandler) PlaceStake(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	pos, err := h.svc.PlaceStake(r.Context(), engine.StakeRequest{
		User:    req.User,
		RoundID: req.RoundID,
		Outcome: req.Outcome,
		Amount:  req.Amount,
		Token:   req.Token,
	})
	if err != nil {
		status := engineStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "place stake failed",
				slog.Uint64("round_id", req.RoundID),
				slog.String("error", err.Error()),
			)
			writeError(w, status, "failed to place stake")
			return
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, pos)
}

type claimRequest struct {
	User    string  `json:"user" validate:"required"`
	RoundID *uint64 `json:"round_id"`
}

// Claim settles the caller's resolved positions and pays winnings net of the
// protocol fee. With round_id it settles only that round; without it, every
// resolved position at once.
// POST /api/claims
func (h *StakeHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var (
		result engine.ClaimResult
		err    error
	)
	if req.RoundID != nil {
		result, err = h.svc.ClaimRound(r.Context(), req.User, *req.RoundID)
	} else {
		result, err = h.svc.ClaimAll(r.Context(), req.User)
	}
	if err != nil {
		status := engineStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "claim failed", slog.String("error", err.Error()))
			writeError(w, status, "failed to claim")
			return
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
