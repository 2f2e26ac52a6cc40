package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/oddsworks/parimutuel/internal/domain"
)

// RoundService defines the round operations the round handler requires.
type RoundService interface {
	FinishedRound(ctx context.Context, id uint64) (domain.Round, error)
	ListFinishedRounds(ctx context.Context, beforeID uint64, limit int) ([]domain.Round, error)
	RoundPositions(ctx context.Context, roundID uint64, afterUser string, limit int) ([]domain.Position, error)
	ClaimsByRound(ctx context.Context, roundID uint64, afterUser string, limit int) ([]domain.ClaimRecord, error)
	Advance(ctx context.Context) error
}

// RoundHandler serves round lifecycle and history endpoints.
type RoundHandler struct {
	svc    RoundService
	logger *slog.Logger
}

// NewRoundHandler creates a RoundHandler.
func NewRoundHandler(svc RoundService, logger *slog.Logger) *RoundHandler {
	return &RoundHandler{
		svc:    svc,
		logger: logHandler(logger, "round"),
	}
}

// ListRounds pages through finished rounds, newest first. The before cursor
// is exclusive; omit it to start from the most recent round.
// GET /api/rounds?before=&limit=
func (h *RoundHandler) ListRounds(w http.ResponseWriter, r *http.Request) {
	rounds, err := h.svc.ListFinishedRounds(r.Context(), queryUint64(r, "before"), queryLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list rounds failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list rounds")
		return
	}
	if rounds == nil {
		rounds = []domain.Round{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rounds": rounds})
}

// GetRound returns one finished round.
// GET /api/rounds/{id}
func (h *RoundHandler) GetRound(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}
	round, err := h.svc.FinishedRound(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

// GetRoundPositions pages through the unclaimed positions of one round,
// ordered by account with an exclusive after cursor.
// GET /api/rounds/{id}/positions?after=&limit=
func (h *RoundHandler) GetRoundPositions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}
	positions, err := h.svc.RoundPositions(r.Context(), id, r.URL.Query().Get("after"), queryLimit(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

// GetRoundClaims pages through the settled claim records of one round.
// GET /api/rounds/{id}/claims?after=&limit=
func (h *RoundHandler) GetRoundClaims(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}
	claims, err := h.svc.ClaimsByRound(r.Context(), id, r.URL.Query().Get("after"), queryLimit(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if claims == nil {
		claims = []domain.ClaimRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"claims": claims})
}

// Advance drives the round state machine: closes the live round when its
// close time has passed, promotes the bidding round, and opens the next one.
// Permissionless; safe to call at any time.
// POST /api/rounds/advance
func (h *RoundHandler) Advance(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Advance(r.Context()); err != nil {
		status := engineStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "advance failed", slog.String("error", err.Error()))
			writeError(w, status, "failed to advance rounds")
			return
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "advanced"})
}
