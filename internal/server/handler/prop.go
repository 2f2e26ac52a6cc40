package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/oddsworks/parimutuel/internal/domain"
	"github.com/oddsworks/parimutuel/internal/engine"
)

// PropService defines the proposition operations the prop handler requires.
type PropService interface {
	CreateProposition(ctx context.Context, actor string, draft engine.PropDraft) (domain.Proposition, error)
	ModifyProposition(ctx context.Context, actor string, id uint64, draft engine.PropDraft) (domain.Proposition, error)
	CompleteProposition(ctx context.Context, actor string, id uint64, result string) error
	CancelProposition(ctx context.Context, actor string, id uint64) error

	PlacePropStake(ctx context.Context, req engine.PropStakeRequest) (domain.Position, error)
	PropClaimAll(ctx context.Context, user string) (engine.ClaimResult, error)
	PropClaimRound(ctx context.Context, user string, propID uint64) (engine.ClaimResult, error)

	Proposition(ctx context.Context, id uint64) (domain.Proposition, error)
	OpenPropositions(ctx context.Context, afterID *uint64, limit int) ([]domain.Proposition, error)
	FinishedPropositions(ctx context.Context, afterID *uint64, limit int) ([]domain.Proposition, error)
	PropositionsByTopic(ctx context.Context, topic string, limit int) ([]domain.Proposition, error)
	PropPositions(ctx context.Context, propID uint64, afterUser string, limit int) ([]domain.Position, error)
}

// PropHandler serves the propositions book endpoints.
type PropHandler struct {
	svc    PropService
	logger *slog.Logger
}

// NewPropHandler creates a PropHandler.
func NewPropHandler(svc PropService, logger *slog.Logger) *PropHandler {
	return &PropHandler{
		svc:    svc,
		logger: logHandler(logger, "prop"),
	}
}

type propOptionPayload struct {
	Key   string `json:"key" validate:"required"`
	Title string `json:"title"`
}

type propDraftRequest struct {
	Actor            string              `json:"actor" validate:"required"`
	Topic            string              `json:"topic" validate:"required"`
	Description      string              `json:"description"`
	ImageURL         *string             `json:"image_url"`
	EndsAt           time.Time           `json:"ends_at" validate:"required"`
	ExpectedResultAt *time.Time          `json:"expected_result_at"`
	Options          []propOptionPayload `json:"options" validate:"min=2,dive"`
}

func (p propDraftRequest) draft() engine.PropDraft {
	options := make([]domain.PropOption, 0, len(p.Options))
	for _, opt := range p.Options {
		options = append(options, domain.PropOption{Key: opt.Key, Title: opt.Title})
	}
	return engine.PropDraft{
		Topic:            p.Topic,
		Description:      p.Description,
		ImageURL:         p.ImageURL,
		EndsAt:           p.EndsAt,
		ExpectedResultAt: p.ExpectedResultAt,
		Options:          options,
	}
}

// CreateProp opens a new proposition for staking. Admin only.
// POST /api/props
func (h *PropHandler) CreateProp(w http.ResponseWriter, r *http.Request) {
	var req propDraftRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	prop, err := h.svc.CreateProposition(r.Context(), req.Actor, req.draft())
	if err != nil {
		h.fail(w, r, "create proposition", err)
		return
	}
	writeJSON(w, http.StatusCreated, prop)
}

// ModifyProp edits the descriptive fields of an open proposition. The option
// set is immutable after creation. Admin only.
// PUT /api/props/{id}
func (h *PropHandler) ModifyProp(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid proposition id")
		return
	}
	var req propDraftRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	prop, err := h.svc.ModifyProposition(r.Context(), req.Actor, id, req.draft())
	if err != nil {
		h.fail(w, r, "modify proposition", err)
		return
	}
	writeJSON(w, http.StatusOK, prop)
}

type completePropRequest struct {
	Actor  string `json:"actor" validate:"required"`
	Result string `json:"result" validate:"required"`
}

// CompleteProp declares the winning option and moves the proposition to the
// finished book. Admin only.
// POST /api/props/{id}/complete
func (h *PropHandler) CompleteProp(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid proposition id")
		return
	}
	var req completePropRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.svc.CompleteProposition(r.Context(), req.Actor, id, req.Result); err != nil {
		h.fail(w, r, "complete proposition", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "completed", "prop_id": id})
}

type cancelPropRequest struct {
	Actor string `json:"actor" validate:"required"`
}

// CancelProp cancels a proposition; every stake becomes refundable. Admin only.
// POST /api/props/{id}/cancel
func (h *PropHandler) CancelProp(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid proposition id")
		return
	}
	var req cancelPropRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.svc.CancelProposition(r.Context(), req.Actor, id); err != nil {
		h.fail(w, r, "cancel proposition", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "cancelled", "prop_id": id})
}

type propStakeRequest struct {
	User   string `json:"user" validate:"required"`
	PropID uint64 `json:"prop_id" validate:"required"`
	Option string `json:"option" validate:"required"`
	Amount uint64 `json:"amount" validate:"required,gt=0"`
	Token  string `json:"token" validate:"required"`
}

// PlaceStake stakes on one option of an open proposition.
// POST /api/props/stakes
func (h *PropHandler) PlaceStake(w http.ResponseWriter, r *http.Request) {
	var req propStakeRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	pos, err := h.svc.PlacePropStake(r.Context(), engine.PropStakeRequest{
		User:   req.User,
		PropID: req.PropID,
		Option: req.Option,
		Amount: req.Amount,
		Token:  req.Token,
	})
	if err != nil {
		h.fail(w, r, "place prop stake", err)
		return
	}
	writeJSON(w, http.StatusCreated, pos)
}

type propClaimRequest struct {
	User   string  `json:"user" validate:"required"`
	PropID *uint64 `json:"prop_id"`
}

// Claim settles the caller's resolved proposition positions. With prop_id it
// settles only that proposition.
// POST /api/props/claims
func (h *PropHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req propClaimRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var (
		result engine.ClaimResult
		err    error
	)
	if req.PropID != nil {
		result, err = h.svc.PropClaimRound(r.Context(), req.User, *req.PropID)
	} else {
		result, err = h.svc.PropClaimAll(r.Context(), req.User)
	}
	if err != nil {
		h.fail(w, r, "prop claim", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListProps pages through propositions. status=open (default) or finished;
// a topic filter searches both.
// GET /api/props?status=&topic=&after=&limit=
func (h *PropHandler) ListProps(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		props []domain.Proposition
		err   error
	)
	switch {
	case q.Get("topic") != "":
		props, err = h.svc.PropositionsByTopic(r.Context(), q.Get("topic"), queryLimit(r))
	case q.Get("status") == "finished":
		props, err = h.svc.FinishedPropositions(r.Context(), queryCursor(r, "after"), queryLimit(r))
	default:
		props, err = h.svc.OpenPropositions(r.Context(), queryCursor(r, "after"), queryLimit(r))
	}
	if err != nil {
		h.fail(w, r, "list propositions", err)
		return
	}
	if props == nil {
		props = []domain.Proposition{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"propositions": props})
}

// GetProp returns one proposition by id, open or finished.
// GET /api/props/{id}
func (h *PropHandler) GetProp(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid proposition id")
		return
	}
	prop, err := h.svc.Proposition(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prop)
}

// GetPropPositions pages through the positions of one proposition.
// GET /api/props/{id}/positions?after=&limit=
func (h *PropHandler) GetPropPositions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid proposition id")
		return
	}
	positions, err := h.svc.PropPositions(r.Context(), id, r.URL.Query().Get("after"), queryLimit(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

func (h *PropHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := engineStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), op+" failed", slog.String("error", err.Error()))
		writeError(w, status, "failed to "+op)
		return
	}
	writeError(w, status, err.Error())
}
