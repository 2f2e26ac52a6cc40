package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/oddsworks/parimutuel/internal/domain"
	"github.com/oddsworks/parimutuel/internal/engine"
)

// StatusService defines the read operations the status handler requires.
type StatusService interface {
	Status(ctx context.Context) (engine.Status, error)
	Params(ctx context.Context) (domain.Params, error)
	Assets(ctx context.Context) ([]string, error)
	PriceFeeds(ctx context.Context) (map[string]string, error)
}

// StatusHandler serves the engine status and configuration endpoints.
type StatusHandler struct {
	svc    StatusService
	logger *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(svc StatusService, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		svc:    svc,
		logger: logHandler(logger, "status"),
	}
}

// GetStatus returns the current bidding and live rounds and the halt flag.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "status query failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load status")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetParams returns the current engine parameters.
// GET /api/params
func (h *StatusHandler) GetParams(w http.ResponseWriter, r *http.Request) {
	params, err := h.svc.Params(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "params query failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load params")
		return
	}
	writeJSON(w, http.StatusOK, params)
}

// GetAssets returns the asset rotation list and the feed registry.
// GET /api/assets
func (h *StatusHandler) GetAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.svc.Assets(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "assets query failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load assets")
		return
	}
	feeds, err := h.svc.PriceFeeds(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "feeds query failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load price feeds")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"assets":      assets,
		"price_feeds": feeds,
	})
}
