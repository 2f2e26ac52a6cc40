package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/oddsworks/parimutuel/internal/domain"
)

// AccountService defines the per-account read operations across both books.
type AccountService interface {
	UserPositions(ctx context.Context, user string, afterRound *uint64, limit int) ([]domain.Position, error)
	CurrentPosition(ctx context.Context, user string) (domain.Position, error)
	PendingReward(ctx context.Context, user string) (uint64, error)
	PendingRewardRounds(ctx context.Context, user string) ([]domain.RoundPayout, error)
	ClaimsByUser(ctx context.Context, user string, afterRound *uint64, limit int) ([]domain.ClaimRecord, error)
	TotalSpent(ctx context.Context, user string) (uint64, error)

	UserPropPositions(ctx context.Context, user string, afterProp *uint64, limit int) ([]domain.Position, error)
	PropPendingReward(ctx context.Context, user string) (uint64, error)
	PropClaimsByUser(ctx context.Context, user string, afterProp *uint64, limit int) ([]domain.ClaimRecord, error)
}

// AccountHandler serves the per-account read endpoints.
type AccountHandler struct {
	svc    AccountService
	logger *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(svc AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		svc:    svc,
		logger: logHandler(logger, "account"),
	}
}

// GetPositions pages through the account's unclaimed round positions,
// ordered by round id with an exclusive after cursor.
// GET /api/accounts/{address}/positions?after=&limit=
func (h *AccountHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.svc.UserPositions(r.Context(), r.PathValue("address"), queryCursor(r, "after"), queryLimit(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

// GetCurrentPosition returns the account's position in the round currently
// open for bidding, if any.
// GET /api/accounts/{address}/positions/current
func (h *AccountHandler) GetCurrentPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := h.svc.CurrentPosition(r.Context(), r.PathValue("address"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// GetRewards returns the account's claimable total (gross of fees) and its
// per-round breakdown across both books.
// GET /api/accounts/{address}/rewards
func (h *AccountHandler) GetRewards(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")

	rounds, err := h.svc.PendingRewardRounds(r.Context(), address)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	total, err := h.svc.PendingReward(r.Context(), address)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	propTotal, err := h.svc.PropPendingReward(r.Context(), address)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if rounds == nil {
		rounds = []domain.RoundPayout{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pending":      total,
		"prop_pending": propTotal,
		"rounds":       rounds,
	})
}

// GetClaims pages through the account's claim history on the round book.
// GET /api/accounts/{address}/claims?after=&limit=
func (h *AccountHandler) GetClaims(w http.ResponseWriter, r *http.Request) {
	claims, err := h.svc.ClaimsByUser(r.Context(), r.PathValue("address"), queryCursor(r, "after"), queryLimit(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if claims == nil {
		claims = []domain.ClaimRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"claims": claims})
}

// GetSpent returns the account's cumulative stake across both books.
// GET /api/accounts/{address}/spent
func (h *AccountHandler) GetSpent(w http.ResponseWriter, r *http.Request) {
	total, err := h.svc.TotalSpent(r.Context(), r.PathValue("address"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"spent": total})
}

// GetPropPositions pages through the account's proposition positions.
// GET /api/accounts/{address}/prop-positions?after=&limit=
func (h *AccountHandler) GetPropPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.svc.UserPropPositions(r.Context(), r.PathValue("address"), queryCursor(r, "after"), queryLimit(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

// GetPropClaims pages through the account's claim history on the
// propositions book.
// GET /api/accounts/{address}/prop-claims?after=&limit=
func (h *AccountHandler) GetPropClaims(w http.ResponseWriter, r *http.Request) {
	claims, err := h.svc.PropClaimsByUser(r.Context(), r.PathValue("address"), queryCursor(r, "after"), queryLimit(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if claims == nil {
		claims = []domain.ClaimRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"claims": claims})
}
